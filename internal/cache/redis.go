package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// Redis — кэш конфигураций в Redis, общий для всех экземпляров сервиса.
// Значения хранятся в JSON с TTL на ключе.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis создаёт кэш поверх готового клиента.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Get читает и декодирует конфигурацию.
func (r *Redis) Get(ctx context.Context, entityType string) (*model.TagConfig, bool, error) {
	data, err := r.client.Get(ctx, Key(entityType)).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheMissesTotal.WithLabelValues(backendRedis).Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения кэша: %w", err)
	}

	var cfg model.TagConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		// Повреждённая запись удаляется, чтение продолжается из хранилища
		_ = r.client.Del(ctx, Key(entityType)).Err()
		cacheMissesTotal.WithLabelValues(backendRedis).Inc()
		return nil, false, nil
	}
	if cfg.EntityType != entityType {
		cacheMissesTotal.WithLabelValues(backendRedis).Inc()
		return nil, false, nil
	}

	cacheHitsTotal.WithLabelValues(backendRedis).Inc()
	return &cfg, true, nil
}

// Set сохраняет конфигурацию с TTL.
func (r *Redis) Set(ctx context.Context, cfg *model.TagConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("ошибка сериализации конфигурации: %w", err)
	}
	if err := r.client.Set(ctx, Key(cfg.EntityType), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи кэша: %w", err)
	}
	return nil
}

// Invalidate удаляет ключ.
func (r *Redis) Invalidate(ctx context.Context, entityType string) error {
	if err := r.client.Del(ctx, Key(entityType)).Err(); err != nil {
		return fmt.Errorf("ошибка инвалидации кэша: %w", err)
	}
	return nil
}

// ReadinessChecker — проверка доступности Redis для health endpoint.
// Кэш работает в режиме fail-open, поэтому недоступность Redis — degraded, а не fail.
type ReadinessChecker struct {
	client redis.UniversalClient
}

// NewReadinessChecker создаёт проверку доступности Redis.
func NewReadinessChecker(client redis.UniversalClient) *ReadinessChecker {
	return &ReadinessChecker{client: client}
}

// CheckReady возвращает статус ("ok", "degraded") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return "degraded", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
