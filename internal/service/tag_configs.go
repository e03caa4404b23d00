// tag_configs.go — сервис конфигураций тегов: CRUD, валидация и чтение через кэш.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goarttag/internal/cache"
	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/repository"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// sharedLoadTimeout ограничивает общий запрос конфигурации при промахе кэша.
const sharedLoadTimeout = 5 * time.Second

// ConfigProvider — чтение конфигураций для аллокатора и биндера.
type ConfigProvider interface {
	Get(ctx context.Context, entityType string) (*model.TagConfig, error)
	Invalidate(ctx context.Context, entityType string)
}

// CreateConfigParams — параметры создания конфигурации.
// nil-поля получают значения по умолчанию.
type CreateConfigParams struct {
	EntityType    string
	Prefix        string
	Separator     *string
	Format        model.Format
	AutoGenerate  *bool
	PaddingLength *int
	Description   *string
	CurrentNumber *uint64
}

// UpdateConfigParams — частичное обновление конфигурации.
type UpdateConfigParams struct {
	EntityType    *string
	Prefix        *string
	Separator     *string
	Format        *model.Format
	AutoGenerate  *bool
	PaddingLength *int
	Description   *string
	// CurrentNumber — новое значение счётчика; не может быть меньше текущего
	CurrentNumber *uint64
}

// ConfigService — управление конфигурациями тегов.
type ConfigService struct {
	repo     repository.ConfigRepository
	cache    cache.ConfigCache
	registry *Registry
	group    singleflight.Group
	logger   *slog.Logger
}

// NewConfigService создаёт сервис конфигураций.
func NewConfigService(repo repository.ConfigRepository, c cache.ConfigCache, logger *slog.Logger) *ConfigService {
	if c == nil {
		c = cache.Disabled{}
	}
	return &ConfigService{
		repo:   repo,
		cache:  c,
		logger: logger.With(slog.String("component", "config_service")),
	}
}

// SetRegistry включает проверку entity_type по реестру типов.
// Пустой реестр проверку не выполняет.
func (s *ConfigService) SetRegistry(r *Registry) {
	s.registry = r
}

// Get возвращает конфигурацию типа сущности. Попадание в кэш не обращается
// к хранилищу; промахи по одному ключу объединяются в один запрос.
// Общий запрос не зависит от отмены контекста первого вызывающего:
// каждый вызывающий ждёт результат только до отмены своего ctx.
func (s *ConfigService) Get(ctx context.Context, entityType string) (*model.TagConfig, error) {
	cfg, ok, err := s.cache.Get(ctx, entityType)
	if err != nil {
		configCacheErrorsTotal.WithLabelValues("get").Inc()
		s.logger.Warn("Ошибка чтения кэша, чтение из БД",
			slog.String("entity_type", entityType),
			slog.String("error", err.Error()),
		)
	} else if ok {
		return cfg, nil
	}

	ch := s.group.DoChan(entityType, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		stored, err := s.repo.GetByEntityType(shared, entityType)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(shared, stored); err != nil {
			configCacheErrorsTotal.WithLabelValues("set").Inc()
			s.logger.Warn("Ошибка записи в кэш",
				slog.String("entity_type", entityType),
				slog.String("error", err.Error()),
			)
		}
		return stored, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, entityType)
		}
		return nil, mapRepoError(err)
	}
	return v.(*model.TagConfig).Clone(), nil
}

// Invalidate удаляет конфигурацию из кэша. Ошибки логируются.
func (s *ConfigService) Invalidate(ctx context.Context, entityType string) {
	if err := s.cache.Invalidate(ctx, entityType); err != nil {
		configCacheErrorsTotal.WithLabelValues("invalidate").Inc()
		s.logger.Warn("Ошибка инвалидации кэша",
			slog.String("entity_type", entityType),
			slog.String("error", err.Error()),
		)
	}
}

// GetByID возвращает конфигурацию по идентификатору (всегда из БД).
func (s *ConfigService) GetByID(ctx context.Context, id string) (*model.TagConfig, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return cfg, nil
}

// List возвращает страницу конфигураций и общее количество.
func (s *ConfigService) List(ctx context.Context, limit, offset int) ([]*model.TagConfig, int, error) {
	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, mapRepoError(err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, mapRepoError(err)
	}
	return items, total, nil
}

// Create создаёт конфигурацию.
func (s *ConfigService) Create(ctx context.Context, params CreateConfigParams) (*model.TagConfig, error) {
	cfg := &model.TagConfig{
		ID:            uuid.New().String(),
		EntityType:    params.EntityType,
		Prefix:        params.Prefix,
		Separator:     model.DefaultSeparator,
		Format:        params.Format,
		AutoGenerate:  true,
		PaddingLength: model.DefaultPaddingLength,
		Description:   params.Description,
	}
	if cfg.Format == "" {
		cfg.Format = model.FormatSequential
	}
	if params.Separator != nil {
		cfg.Separator = *params.Separator
	}
	if params.AutoGenerate != nil {
		cfg.AutoGenerate = *params.AutoGenerate
	}
	if params.PaddingLength != nil {
		cfg.PaddingLength = *params.PaddingLength
	}
	if params.CurrentNumber != nil {
		cfg.CurrentNumber = *params.CurrentNumber
	}

	if err := s.validate(cfg); err != nil {
		return nil, err
	}

	err := s.repo.WithinTx(ctx, func(repo repository.ConfigRepository) error {
		if err := repo.Create(ctx, cfg); err != nil {
			return err
		}
		s.Invalidate(ctx, cfg.EntityType)
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.Invalidate(ctx, cfg.EntityType)

	s.logger.Info("Конфигурация тегов создана",
		slog.String("id", cfg.ID),
		slog.String("entity_type", cfg.EntityType),
		slog.String("prefix", cfg.Prefix),
		slog.String("format", string(cfg.Format)),
	)
	return cfg, nil
}

// Update применяет частичное обновление. Счётчик можно только увеличить.
func (s *ConfigService) Update(ctx context.Context, id string, params UpdateConfigParams) (*model.TagConfig, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		cfg     *model.TagConfig
		oldType string
	)
	err := s.repo.WithinTx(ctx, func(repo repository.ConfigRepository) error {
		existing, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldType = existing.EntityType
		cfg = existing

		applyUpdate(cfg, params)
		if err := s.validate(cfg); err != nil {
			return err
		}
		if params.CurrentNumber != nil && *params.CurrentNumber < existing.CurrentNumber {
			return fmt.Errorf("%w: currentNumber: значение %d меньше текущего %d",
				ErrValidation, *params.CurrentNumber, existing.CurrentNumber)
		}

		if err := repo.Update(ctx, cfg); err != nil {
			return err
		}
		if params.CurrentNumber != nil && *params.CurrentNumber != cfg.CurrentNumber {
			if err := repo.Reseed(ctx, id, *params.CurrentNumber); err != nil {
				return err
			}
			cfg.CurrentNumber = *params.CurrentNumber
		}

		s.Invalidate(ctx, oldType)
		s.Invalidate(ctx, cfg.EntityType)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, mapRepoError(err)
	}

	s.Invalidate(ctx, oldType)
	s.Invalidate(ctx, cfg.EntityType)

	s.logger.Info("Конфигурация тегов обновлена",
		slog.String("id", cfg.ID),
		slog.String("entity_type", cfg.EntityType),
	)
	return cfg, nil
}

// Delete удаляет конфигурацию. Счётчики филиалов удаляются каскадно.
func (s *ConfigService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	var entityType string
	err := s.repo.WithinTx(ctx, func(repo repository.ConfigRepository) error {
		existing, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		entityType = existing.EntityType
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		s.Invalidate(ctx, entityType)
		return nil
	})
	if err != nil {
		return mapRepoError(err)
	}
	s.Invalidate(ctx, entityType)

	s.logger.Info("Конфигурация тегов удалена",
		slog.String("id", id),
		slog.String("entity_type", entityType),
	)
	return nil
}

func applyUpdate(cfg *model.TagConfig, params UpdateConfigParams) {
	if params.EntityType != nil {
		cfg.EntityType = *params.EntityType
	}
	if params.Prefix != nil {
		cfg.Prefix = *params.Prefix
	}
	if params.Separator != nil {
		cfg.Separator = *params.Separator
	}
	if params.Format != nil {
		cfg.Format = *params.Format
	}
	if params.AutoGenerate != nil {
		cfg.AutoGenerate = *params.AutoGenerate
	}
	if params.PaddingLength != nil {
		cfg.PaddingLength = *params.PaddingLength
	}
	if params.Description != nil {
		if *params.Description == "" {
			cfg.Description = nil
		} else {
			d := *params.Description
			cfg.Description = &d
		}
	}
}

// validate проверяет конфигурацию после применения значений по умолчанию.
func (s *ConfigService) validate(cfg *model.TagConfig) error {
	formats := make([]any, 0, len(model.Formats()))
	for _, f := range model.Formats() {
		formats = append(formats, f)
	}

	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.EntityType,
			validation.Required,
			validation.Length(1, 255),
			validation.By(s.registeredEntityType),
		),
		validation.Field(&cfg.Prefix,
			validation.Required,
			validation.Length(1, 10),
			validation.Match(prefixPattern).Error("допустимы только латинские буквы, цифры, '_' и '-'"),
		),
		validation.Field(&cfg.Separator, validation.Required, validation.Length(1, 5)),
		validation.Field(&cfg.Format, validation.Required, validation.In(formats...)),
		validation.Field(&cfg.PaddingLength, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&cfg.Description, validation.RuneLength(0, 1000)),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	return nil
}

// registeredEntityType проверяет тип по реестру, если в реестре есть типы.
func (s *ConfigService) registeredEntityType(value any) error {
	if s.registry == nil || s.registry.Len() == 0 {
		return nil
	}
	name, _ := value.(string)
	if _, ok := s.registry.Lookup(name); !ok {
		return ErrUnknownEntityType
	}
	return nil
}
