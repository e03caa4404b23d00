// Пакет cache — кэш конфигураций тегов.
// Реализации: in-memory LRU с TTL, Redis (общий для экземпляров) и отключённый кэш.
package cache

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// Имена бэкендов для метрик.
const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_config_cache_hits_total",
		Help: "Общее количество попаданий в кэш конфигураций.",
	}, []string{"backend"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_config_cache_misses_total",
		Help: "Общее количество промахов кэша конфигураций.",
	}, []string{"backend"})
)

// ConfigCache — кэш конфигураций по типу сущности.
// Ошибка возвращается только при сбое бэкенда; отсутствие записи — (nil, false, nil).
type ConfigCache interface {
	Get(ctx context.Context, entityType string) (*model.TagConfig, bool, error)
	Set(ctx context.Context, cfg *model.TagConfig) error
	Invalidate(ctx context.Context, entityType string) error
}

// Key возвращает ключ кэша для типа сущности.
// Хэш стабилен между процессами, поэтому ключ пригоден для общего Redis.
func Key(entityType string) string {
	return fmt.Sprintf("tagalloc:config:%016x", xxhash.Sum64String(entityType))
}

// Disabled — кэш, который ничего не хранит: каждое чтение идёт в хранилище.
type Disabled struct{}

// Get всегда возвращает промах.
func (Disabled) Get(context.Context, string) (*model.TagConfig, bool, error) {
	return nil, false, nil
}

// Set ничего не делает.
func (Disabled) Set(context.Context, *model.TagConfig) error { return nil }

// Invalidate ничего не делает.
func (Disabled) Invalidate(context.Context, string) error { return nil }
