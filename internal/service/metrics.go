// metrics.go — Prometheus-метрики генерации тегов.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты генерации для лейбла result.
const (
	resultOK       = "ok"
	resultFallback = "fallback"
	resultError    = "error"
)

var (
	// allocationsTotal — сгенерированные теги по типу сущности, формату и результату.
	allocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_allocations_total",
		Help: "Общее количество генераций тегов.",
	}, []string{"entity_type", "format", "result"})

	// allocationRetriesTotal — повторы из-за конфликтов блокировок.
	allocationRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_allocation_retries_total",
		Help: "Общее количество повторов генерации из-за конфликтов блокировок.",
	}, []string{"entity_type"})

	// allocationDuration — длительность генерации тега.
	allocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ta_allocation_duration_seconds",
		Help:    "Длительность генерации тега.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"format"})

	// configCacheErrorsTotal — ошибки бэкенда кэша (кэш работает в режиме fail-open).
	configCacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_config_cache_errors_total",
		Help: "Общее количество ошибок кэша конфигураций.",
	}, []string{"operation"})

	// bulkItemsTotal — элементы массовых операций по операции и результату.
	bulkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ta_bulk_items_total",
		Help: "Общее количество обработанных элементов массовых операций.",
	}, []string{"operation", "result"})
)
