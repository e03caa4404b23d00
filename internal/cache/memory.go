package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/goarttag/internal/domain/model"
)

// Memory — LRU-кэш конфигураций в памяти процесса с автоматическим TTL.
// Хранит копии: изменения возвращённой конфигурации не попадают в кэш.
type Memory struct {
	lru *expirable.LRU[string, *model.TagConfig]
}

// NewMemory создаёт in-memory кэш.
// size — максимальное количество записей, ttl — время жизни записи после добавления.
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, *model.TagConfig](size, nil, ttl)}
}

// Get возвращает копию конфигурации при попадании.
func (m *Memory) Get(_ context.Context, entityType string) (*model.TagConfig, bool, error) {
	cfg, ok := m.lru.Get(Key(entityType))
	// Коллизия хэша: чужая запись считается промахом
	if !ok || cfg.EntityType != entityType {
		cacheMissesTotal.WithLabelValues(backendMemory).Inc()
		return nil, false, nil
	}
	cacheHitsTotal.WithLabelValues(backendMemory).Inc()
	return cfg.Clone(), true, nil
}

// Set сохраняет копию конфигурации.
func (m *Memory) Set(_ context.Context, cfg *model.TagConfig) error {
	m.lru.Add(Key(cfg.EntityType), cfg.Clone())
	return nil
}

// Invalidate удаляет запись.
func (m *Memory) Invalidate(_ context.Context, entityType string) error {
	m.lru.Remove(Key(entityType))
	return nil
}

// Len возвращает число записей (включая ещё не вытесненные просроченные).
func (m *Memory) Len() int {
	return m.lru.Len()
}
