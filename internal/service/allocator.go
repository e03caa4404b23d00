// allocator.go — генерация значений тегов по конфигурации типа сущности.
//
// Форматы:
//   - sequential — атомарный счётчик под блокировкой строки конфигурации;
//   - random — префикс + unix timestamp без блокировок. Уникальность не
//     гарантируется: два вызова в одну секунду дают одинаковое значение;
//   - branch_based — отдельный атомарный счётчик на филиал сущности.
//
// Конфликты блокировок повторяются с экспоненциальной задержкой. Если попытки
// исчерпаны или конфигурации нет, выдаётся резервный тег PREFIX-<unix>.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
)

// AllocatorOptions — параметры аллокатора.
type AllocatorOptions struct {
	// MaxRetries — общее число попыток при конфликте блокировок
	MaxRetries int
	// BaseBackoff — задержка перед второй попыткой, далее удваивается
	BaseBackoff time.Duration
	// LockTimeout — таймаут ожидания блокировки в PostgreSQL
	LockTimeout time.Duration
	// FallbackPrefix — префикс резервного тега
	FallbackPrefix string
	// Debug — не подменять ошибки резервным тегом, а возвращать их
	Debug bool
}

// DefaultAllocatorOptions возвращает параметры по умолчанию.
func DefaultAllocatorOptions() AllocatorOptions {
	return AllocatorOptions{
		MaxRetries:     3,
		BaseBackoff:    10 * time.Millisecond,
		LockTimeout:    10 * time.Second,
		FallbackPrefix: "TAG",
	}
}

// Allocator — генератор тегов.
type Allocator struct {
	configs  ConfigProvider
	counters repository.CounterRepository
	tags     repository.TagRepository
	notifier events.Publisher
	opts     AllocatorOptions
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAllocator создаёт аллокатор. Нулевые поля opts заменяются значениями по умолчанию.
func NewAllocator(
	configs ConfigProvider,
	counters repository.CounterRepository,
	tags repository.TagRepository,
	notifier events.Publisher,
	opts AllocatorOptions,
	logger *slog.Logger,
) *Allocator {
	def := DefaultAllocatorOptions()
	if opts.MaxRetries < 1 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.FallbackPrefix == "" {
		opts.FallbackPrefix = def.FallbackPrefix
	}

	return &Allocator{
		configs:  configs,
		counters: counters,
		tags:     tags,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With(slog.String("component", "allocator")),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Allocate возвращает существующий тег сущности или генерирует новое значение.
// Значение не сохраняется — это делает Binder.
func (a *Allocator) Allocate(ctx context.Context, entity model.Entity) (string, error) {
	existing, err := a.tags.GetByOwner(ctx, entity.EntityType(), entity.EntityID())
	if err == nil {
		return existing.Value, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", mapRepoError(err)
	}
	return a.Generate(ctx, entity)
}

// Generate генерирует новое значение без учёта существующего тега.
// Ошибки генерации заменяются резервным тегом (кроме debug-режима
// и недоступности хранилища).
func (a *Allocator) Generate(ctx context.Context, entity model.Entity) (string, error) {
	value, fallback, err := a.run(ctx, entity, !a.opts.Debug)
	if err != nil && fallback != "" {
		return fallback, nil
	}
	return value, err
}

// TryGenerate генерирует новое значение и возвращает ошибку вместо резервного тега.
// Используется массовыми операциями, где ошибка фиксируется по элементу.
func (a *Allocator) TryGenerate(ctx context.Context, entity model.Entity) (string, error) {
	value, _, err := a.run(ctx, entity, false)
	return value, err
}

// run выполняет генерацию, пишет метрики и при ошибке публикует GenerationFailed
// (кроме отсутствия конфигурации, закрытого резервным тегом).
// fallback заполняется, только если allowFallback и хранилище доступно.
func (a *Allocator) run(ctx context.Context, entity model.Entity, allowFallback bool) (value, fallback string, err error) {
	start := a.now()
	cfg, value, err := a.generate(ctx, entity)

	format := "none"
	if cfg != nil {
		format = string(cfg.Format)
	}
	allocationDuration.WithLabelValues(format).Observe(a.now().Sub(start).Seconds())

	if err == nil {
		allocationsTotal.WithLabelValues(entity.EntityType(), format, resultOK).Inc()
		return value, "", nil
	}

	result := resultError
	if allowFallback && !errors.Is(err, ErrStoreUnavailable) {
		fallback = a.fallback()
		result = resultFallback
	}
	allocationsTotal.WithLabelValues(entity.EntityType(), format, result).Inc()

	// Отсутствие конфигурации с выданным резервным тегом - штатная ситуация
	if fallback != "" && errors.Is(err, ErrConfigNotFound) {
		a.logger.Info("Конфигурация тегов не найдена, выдан резервный тег",
			slog.String("entity_type", entity.EntityType()),
			slog.String("entity_id", entity.EntityID()),
			slog.String("fallback", fallback),
		)
		return "", fallback, err
	}

	a.logger.Error("Ошибка генерации тега",
		slog.String("entity_type", entity.EntityType()),
		slog.String("entity_id", entity.EntityID()),
		slog.String("format", format),
		slog.String("fallback", fallback),
		slog.String("error", err.Error()),
	)
	if a.notifier != nil {
		owner := model.EntityRef{Type: entity.EntityType(), ID: entity.EntityID()}
		a.notifier.Publish(ctx, events.NewGenerationFailed(owner, err, fallback))
	}
	return "", fallback, err
}

func (a *Allocator) generate(ctx context.Context, entity model.Entity) (*model.TagConfig, string, error) {
	cfg, err := a.configs.Get(ctx, entity.EntityType())
	if err != nil {
		return nil, "", err
	}

	switch cfg.Format {
	case model.FormatSequential:
		var locked *model.TagConfig
		err := a.withRetry(ctx, entity, func() error {
			var err error
			locked, err = a.counters.NextSequence(ctx, cfg.ID, a.opts.LockTimeout)
			return err
		})
		if err != nil {
			return cfg, "", a.counterError(ctx, cfg, err)
		}
		return locked, locked.Prefix + locked.Separator + padNumber(locked.CurrentNumber, locked.PaddingLength), nil

	case model.FormatRandom:
		return cfg, cfg.Prefix + cfg.Separator + strconv.FormatInt(a.now().Unix(), 10), nil

	case model.FormatBranchBased:
		branch := ""
		if scoped, ok := entity.(model.BranchScoped); ok {
			branch = scoped.BranchID()
		}
		if branch == "" {
			return cfg, "", fmt.Errorf("%w: %s/%s", ErrMissingBranch, entity.EntityType(), entity.EntityID())
		}

		var (
			locked *model.TagConfig
			seq    uint64
		)
		err := a.withRetry(ctx, entity, func() error {
			var err error
			locked, seq, err = a.counters.NextBranchSequence(ctx, cfg.ID, entity.EntityType(), branch, a.opts.LockTimeout)
			return err
		})
		if err != nil {
			return cfg, "", a.counterError(ctx, cfg, err)
		}
		return locked, locked.Prefix + locked.Separator + padNumber(seq, locked.PaddingLength) + locked.Separator + branch, nil

	default:
		return cfg, "", fmt.Errorf("%w: формат %q", ErrInvalidFormat, cfg.Format)
	}
}

// counterError приводит ошибку счётчика к ошибке сервиса.
// Конфигурация, удалённая после чтения из кэша, — это отсутствие конфигурации.
func (a *Allocator) counterError(ctx context.Context, cfg *model.TagConfig, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		a.configs.Invalidate(ctx, cfg.EntityType)
		return fmt.Errorf("%w: %s", ErrConfigNotFound, cfg.EntityType)
	}
	if errors.Is(err, ErrConcurrencyExhausted) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return mapRepoError(err)
}

// withRetry повторяет fn только при конфликте блокировок.
func (a *Allocator) withRetry(ctx context.Context, entity model.Entity, fn func() error) error {
	backoff := a.opts.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= a.opts.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrLockConflict) {
			return err
		}
		lastErr = err

		a.logger.Warn("Конфликт блокировки при генерации тега",
			slog.String("entity_type", entity.EntityType()),
			slog.String("entity_id", entity.EntityID()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", a.opts.MaxRetries),
		)
		if attempt == a.opts.MaxRetries {
			break
		}

		allocationRetriesTotal.WithLabelValues(entity.EntityType()).Inc()
		if err := a.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err) //nolint:errorlint // намеренный двойной wrap
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %d попыток: %w", ErrConcurrencyExhausted, a.opts.MaxRetries, lastErr) //nolint:errorlint // намеренный двойной wrap
}

func (a *Allocator) fallback() string {
	return a.opts.FallbackPrefix + "-" + strconv.FormatInt(a.now().Unix(), 10)
}

// padNumber дополняет номер ведущими нулями до width цифр. Длинные номера не обрезаются.
func padNumber(n uint64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
