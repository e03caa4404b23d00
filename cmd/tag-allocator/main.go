// Точка входа Tag Allocator — сервис выдачи тегов сущностям.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и (опционально) Redis, регистрирует типы сущностей, создаёт сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goarttag/internal/api/handlers"
	"github.com/bigkaa/goarttag/internal/api/middleware"
	"github.com/bigkaa/goarttag/internal/cache"
	"github.com/bigkaa/goarttag/internal/config"
	"github.com/bigkaa/goarttag/internal/database"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
	"github.com/bigkaa/goarttag/internal/server"
	"github.com/bigkaa/goarttag/internal/service"
)

// eventsStreamMaxLen — приблизительная длина Redis stream событий.
const eventsStreamMaxLen = 100_000

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Tag Allocator запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("TA_DEPHEALTH_GROUP") == "" {
		logger.Warn("TA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Redis — общий кэш конфигураций и поток событий (если нужны)
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			// Кэш работает в режиме fail-open, поэтому старт не прерывается
			logger.Warn("Redis недоступен при старте",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	// 5.1 Кэш конфигураций
	var configCache cache.ConfigCache
	switch {
	case !cfg.CacheEnabled:
		configCache = cache.Disabled{}
	case cfg.CacheBackend == config.CacheBackendRedis:
		configCache = cache.NewRedis(redisClient, cfg.CacheTTL)
	default:
		configCache = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)
	}
	logger.Info("Кэш конфигураций",
		slog.Bool("enabled", cfg.CacheEnabled),
		slog.String("backend", cfg.CacheBackend),
		slog.String("ttl", cfg.CacheTTL.String()),
	)

	// 6. События: журнал аудита + Redis stream
	notifier := events.NewNotifier(logger)
	notifier.SubscribeAll(events.LogSink(logger))
	if cfg.EventsStream != "" {
		sink := events.NewRedisStreamSink(redisClient, cfg.EventsStream, eventsStreamMaxLen)
		notifier.SubscribeAll(sink.Handle)
		logger.Info("Публикация событий в Redis stream", slog.String("stream", cfg.EventsStream))
	}

	// 7. Реестр типов сущностей
	registry := service.NewRegistry()
	for _, def := range cfg.EntityTypes {
		if _, err := registry.Register(service.EntityType{Name: def.Name, Label: def.Label}); err != nil {
			logger.Error("Ошибка регистрации типа сущности",
				slog.String("entity_type", def.Name),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	logger.Info("Типы сущностей зарегистрированы", slog.Int("count", registry.Len()))

	// 8. Repositories
	configRepo := repository.NewConfigRepository(pool)
	tagRepo := repository.NewTagRepository(pool)
	counterRepo := repository.NewCounterRepository(pool)

	// 9. Services
	configSvc := service.NewConfigService(configRepo, configCache, logger)
	configSvc.SetRegistry(registry)

	allocator := service.NewAllocator(
		configSvc, counterRepo, tagRepo, notifier,
		service.AllocatorOptions{
			MaxRetries:     cfg.MaxRetries,
			BaseBackoff:    cfg.RetryBackoff,
			LockTimeout:    cfg.LockTimeout,
			FallbackPrefix: cfg.FallbackPrefix,
			Debug:          cfg.Debug,
		},
		logger,
	)
	binder := service.NewBinder(allocator, configSvc, tagRepo, notifier, cfg.Debug, logger)
	binder.AttachAll(registry)
	bulkOp := service.NewBulkOperator(tagRepo, allocator, registry, notifier, logger)
	tagSvc := service.NewTagService(tagRepo, logger)

	// 10. Readiness checkers (PostgreSQL + Redis)
	pgChecker := database.NewReadinessChecker(pool)
	var redisChecker handlers.ReadinessChecker
	if redisClient != nil {
		redisChecker = cache.NewReadinessChecker(redisClient)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, redisChecker)

	// 11. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		configSvc,
		tagSvc,
		bulkOp,
		binder,
		registry,
		cfg.Debug,
		logger,
	)

	// 12. Middleware: метрики, логирование, JWT (если задан JWKS URL)
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.AccessLog(logger, "/health/", "/metrics"),
	}
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, cfg.JWTAdminRole, cfg.JWTLeeway, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares,
			server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
			server.JWTAuthWithExclusions(jwtAuth.RequireAdminForWrites(), "/health/", "/metrics"),
		)
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
			slog.String("admin_role", cfg.JWTAdminRole),
		)
	} else {
		logger.Warn("TA_JWT_JWKS_URL не задан, аутентификация API отключена")
	}

	// 13. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "tag-allocator",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 14. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	runErr := srv.Run(ctx)

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Tag Allocator остановлен")
}
