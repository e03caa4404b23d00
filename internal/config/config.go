// Пакет config — загрузка и валидация конфигурации Tag Allocator
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды кэша конфигураций.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// EntityTypeDef — тип сущности, участвующий в тегировании (имя + отображаемое название).
type EntityTypeDef struct {
	Name  string
	Label string
}

// Config содержит все параметры конфигурации Tag Allocator.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений (0 — по умолчанию pgxpool)
	DBMaxConns int

	// --- Кэш конфигураций ---

	// CacheEnabled — включён ли кэш (при false каждое чтение идёт в БД)
	CacheEnabled bool
	// CacheBackend — memory или redis
	CacheBackend string
	// CacheTTL — время жизни записи кэша
	CacheTTL time.Duration
	// CacheSize — максимальное число записей in-memory кэша
	CacheSize int

	// --- Redis (кэш и поток событий) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// --- Аллокатор ---

	// MaxRetries — число попыток при конфликте блокировок
	MaxRetries int
	// RetryBackoff — начальная задержка между попытками (удваивается)
	RetryBackoff time.Duration
	// LockTimeout — таймаут ожидания блокировки строки конфигурации
	LockTimeout time.Duration
	// FallbackPrefix — префикс резервного тега
	FallbackPrefix string
	// Debug — ошибки генерации пробрасываются вызывающему коду
	Debug bool

	// --- Сущности и события ---

	// EntityTypes — типы сущностей, регистрируемые при старте
	EntityTypes []EntityTypeDef
	// EventsStream — имя Redis stream для публикации событий (пусто — отключено)
	EventsStream string

	// --- JWT ---

	// JWTJWKSURL — URL JWKS endpoint (пусто — аутентификация отключена)
	JWTJWKSURL string
	// JWTIssuer — ожидаемый issuer JWT (опционально)
	JWTIssuer string
	// JWTAdminRole — роль, дающая право изменять конфигурации и теги
	JWTAdminRole string
	// JWTLeeway — допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg, err := LoadDatabase()
	if err != nil {
		return nil, err
	}

	// --- Сервер ---

	// TA_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("TA_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("TA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("TA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("TA_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("TA_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("TA_HTTP_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("TA_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("TA_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("TA_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Кэш ---

	// TA_CACHE_ENABLED — включение кэша (по умолчанию true)
	if cfg.CacheEnabled, err = getEnvBool("TA_CACHE_ENABLED", true); err != nil {
		return nil, fmt.Errorf("TA_CACHE_ENABLED: %w", err)
	}

	// TA_CACHE_BACKEND — memory или redis (по умолчанию memory)
	cfg.CacheBackend = getEnvDefault("TA_CACHE_BACKEND", CacheBackendMemory)
	if cfg.CacheBackend != CacheBackendMemory && cfg.CacheBackend != CacheBackendRedis {
		return nil, fmt.Errorf("TA_CACHE_BACKEND: недопустимое значение %q, допустимые: memory, redis", cfg.CacheBackend)
	}

	// TA_CACHE_TTL_SECONDS — TTL записи кэша в секундах (по умолчанию 3600)
	ttlSeconds, err := getEnvInt("TA_CACHE_TTL_SECONDS", 3600)
	if err != nil {
		return nil, fmt.Errorf("TA_CACHE_TTL_SECONDS: %w", err)
	}
	if ttlSeconds < 1 {
		return nil, fmt.Errorf("TA_CACHE_TTL_SECONDS: значение %d должно быть положительным", ttlSeconds)
	}
	cfg.CacheTTL = time.Duration(ttlSeconds) * time.Second

	// TA_CACHE_SIZE — размер in-memory кэша (по умолчанию 1024)
	if cfg.CacheSize, err = getEnvInt("TA_CACHE_SIZE", 1024); err != nil {
		return nil, fmt.Errorf("TA_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("TA_CACHE_SIZE: значение %d должно быть положительным", cfg.CacheSize)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("TA_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("TA_REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvInt("TA_REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("TA_REDIS_DB: %w", err)
	}
	cfg.EventsStream = getEnvDefault("TA_EVENTS_STREAM", "")

	if cfg.RedisAddr == "" {
		if cfg.CacheEnabled && cfg.CacheBackend == CacheBackendRedis {
			return nil, fmt.Errorf("TA_REDIS_ADDR: обязателен при TA_CACHE_BACKEND=redis")
		}
		if cfg.EventsStream != "" {
			return nil, fmt.Errorf("TA_REDIS_ADDR: обязателен при заданном TA_EVENTS_STREAM")
		}
	}

	// --- Аллокатор ---

	// TA_MAX_RETRIES — число попыток (по умолчанию 3)
	if cfg.MaxRetries, err = getEnvInt("TA_MAX_RETRIES", 3); err != nil {
		return nil, fmt.Errorf("TA_MAX_RETRIES: %w", err)
	}
	if cfg.MaxRetries < 1 || cfg.MaxRetries > 20 {
		return nil, fmt.Errorf("TA_MAX_RETRIES: значение %d вне допустимого диапазона 1-20", cfg.MaxRetries)
	}

	// TA_RETRY_BACKOFF — начальная задержка (по умолчанию 10ms)
	if cfg.RetryBackoff, err = getEnvDuration("TA_RETRY_BACKOFF", 10*time.Millisecond); err != nil {
		return nil, fmt.Errorf("TA_RETRY_BACKOFF: %w", err)
	}

	// TA_LOCK_TIMEOUT_SECONDS — таймаут блокировки (по умолчанию 10)
	lockSeconds, err := getEnvInt("TA_LOCK_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, fmt.Errorf("TA_LOCK_TIMEOUT_SECONDS: %w", err)
	}
	if lockSeconds < 1 {
		return nil, fmt.Errorf("TA_LOCK_TIMEOUT_SECONDS: значение %d должно быть положительным", lockSeconds)
	}
	cfg.LockTimeout = time.Duration(lockSeconds) * time.Second

	// TA_FALLBACK_PREFIX — префикс резервного тега (по умолчанию TAG)
	cfg.FallbackPrefix = getEnvDefault("TA_FALLBACK_PREFIX", "TAG")

	// TA_DEBUG — режим отладки
	if cfg.Debug, err = getEnvBool("TA_DEBUG", false); err != nil {
		return nil, fmt.Errorf("TA_DEBUG: %w", err)
	}

	// TA_ENTITY_TYPES — "equipment:Оборудование,vehicle:Транспорт"
	cfg.EntityTypes, err = parseEntityTypes(getEnvDefault("TA_ENTITY_TYPES", ""))
	if err != nil {
		return nil, fmt.Errorf("TA_ENTITY_TYPES: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("TA_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("TA_JWT_ISSUER", "")
	cfg.JWTAdminRole = getEnvDefault("TA_JWT_ADMIN_ROLE", "tag-admin")
	if cfg.JWTLeeway, err = getEnvDuration("TA_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("TA_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("TA_DEPHEALTH_GROUP", "goarttag")
	if cfg.DephealthCheckInterval, err = getEnvDuration("TA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("TA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// TA_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	if cfg.ShutdownTimeout, err = getEnvDuration("TA_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("TA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// LoadDatabase загружает только параметры логирования и PostgreSQL.
// Используется утилитой tagctl, которой не нужны настройки HTTP и кэша.
func LoadDatabase() (*Config, error) {
	cfg := &Config{}
	var err error

	// TA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("TA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("TA_LOG_LEVEL: %w", err)
	}

	// TA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("TA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("TA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.DBHost, err = getEnvRequired("TA_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.DBPort, err = getEnvInt("TA_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("TA_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("TA_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("TA_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("TA_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("TA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("TA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	if cfg.DBMaxConns, err = getEnvInt("TA_DB_MAX_CONNS", 0); err != nil {
		return nil, fmt.Errorf("TA_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 0 {
		return nil, fmt.Errorf("TA_DB_MAX_CONNS: значение %d не может быть отрицательным", cfg.DBMaxConns)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
	if c.DBMaxConns > 0 {
		dsn += fmt.Sprintf(" pool_max_conns=%d", c.DBMaxConns)
	}
	return dsn
}

// DatabaseURL возвращает URL PostgreSQL для лейблов topologymetrics (без пароля).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(c.DBUser),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseEntityTypes разбирает список "name:label,name2:label2".
// Label необязателен — по умолчанию совпадает с именем.
func parseEntityTypes(s string) ([]EntityTypeDef, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	result := make([]EntityTypeDef, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, label, _ := strings.Cut(p, ":")
		name = strings.TrimSpace(name)
		label = strings.TrimSpace(label)
		if name == "" {
			return nil, fmt.Errorf("пустое имя типа сущности в %q", p)
		}
		if seen[name] {
			return nil, fmt.Errorf("тип сущности %q указан повторно", name)
		}
		seen[name] = true
		if label == "" {
			label = name
		}
		result = append(result, EntityTypeDef{Name: name, Label: label})
	}
	return result, nil
}
