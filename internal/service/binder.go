// binder.go — связывание тегов с жизненным циклом сущностей:
// генерация при сохранении, удаление при удалении сущности, ручная установка.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
)

// MaxTagValueLength — максимальная длина значения тега, устанавливаемого вручную.
const MaxTagValueLength = 100

var tagValuePattern = regexp.MustCompile(`^[A-Za-z0-9_\-./#]+$`)

// TagGenerator — генерация значений тегов (реализуется Allocator).
type TagGenerator interface {
	Generate(ctx context.Context, entity model.Entity) (string, error)
	TryGenerate(ctx context.Context, entity model.Entity) (string, error)
}

// Binder — управление тегом сущности на протяжении её жизни.
type Binder struct {
	generator TagGenerator
	configs   ConfigProvider
	tags      repository.TagRepository
	notifier  events.Publisher
	debug     bool
	logger    *slog.Logger
}

// NewBinder создаёт Binder. В debug-режиме ошибки генерации при сохранении
// сущности возвращаются вызывающему коду.
func NewBinder(
	generator TagGenerator,
	configs ConfigProvider,
	tags repository.TagRepository,
	notifier events.Publisher,
	debug bool,
	logger *slog.Logger,
) *Binder {
	return &Binder{
		generator: generator,
		configs:   configs,
		tags:      tags,
		notifier:  notifier,
		debug:     debug,
		logger:    logger.With(slog.String("component", "binder")),
	}
}

// Attach подключает Binder к фазам сохранения и удаления.
func (b *Binder) Attach(h *Hooks) {
	h.On(PhaseAfterSave, b.OnSaved)
	h.On(PhaseBeforeDelete, b.OnDeleting)
}

// AttachAll подключает Binder ко всем типам реестра.
func (b *Binder) AttachAll(r *Registry) {
	for _, t := range r.List() {
		if h, ok := r.Hooks(t.Name); ok {
			b.Attach(h)
		}
	}
}

// OnSaved генерирует и сохраняет тег, если у сущности его нет и для типа
// включена автогенерация (или конфигурации нет — тогда выдаётся резервный тег).
// Ошибки логируются и возвращаются только в debug-режиме; ErrDuplicateTag
// возвращается всегда.
func (b *Binder) OnSaved(ctx context.Context, entity model.Entity) error {
	err := b.onSaved(ctx, entity)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateTag) {
		return err
	}

	b.logger.Error("Ошибка назначения тега при сохранении сущности",
		slog.String("entity_type", entity.EntityType()),
		slog.String("entity_id", entity.EntityID()),
		slog.String("error", err.Error()),
	)
	if b.debug {
		return err
	}
	return nil
}

func (b *Binder) onSaved(ctx context.Context, entity model.Entity) error {
	_, err := b.tags.GetByOwner(ctx, entity.EntityType(), entity.EntityID())
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return mapRepoError(err)
	}

	cfg, err := b.configs.Get(ctx, entity.EntityType())
	switch {
	case errors.Is(err, ErrConfigNotFound):
		cfg = nil
	case err != nil:
		return err
	case !cfg.AutoGenerate:
		return nil
	}

	_, err = b.create(ctx, entity, cfg)
	return err
}

// create генерирует значение, сохраняет тег и публикует TagCreated.
func (b *Binder) create(ctx context.Context, entity model.Entity, cfg *model.TagConfig) (*model.Tag, error) {
	value, err := b.generator.Generate(ctx, entity)
	if err != nil {
		return nil, err
	}
	return b.insert(ctx, entity, value, cfg)
}

func (b *Binder) insert(ctx context.Context, entity model.Entity, value string, cfg *model.TagConfig) (*model.Tag, error) {
	tag := &model.Tag{
		Value:     value,
		OwnerType: entity.EntityType(),
		OwnerID:   entity.EntityID(),
	}
	if err := b.tags.Create(ctx, tag); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateTag, tag.OwnerType, tag.OwnerID)
		}
		return nil, mapRepoError(err)
	}

	b.logger.Info("Тег назначен",
		slog.String("entity_type", tag.OwnerType),
		slog.String("entity_id", tag.OwnerID),
		slog.String("tag", tag.Value),
	)
	b.publish(ctx, events.NewTagCreated(tag, cfg))
	return tag, nil
}

// OnDeleting удаляет тег сущности. Событие TagDeleted публикуется ровно один раз,
// только если тег действительно был удалён.
func (b *Binder) OnDeleting(ctx context.Context, entity model.Entity) error {
	deleted, err := b.tags.DeleteByOwner(ctx, entity.EntityType(), entity.EntityID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return mapRepoError(err)
	}

	b.logger.Info("Тег удалён вместе с сущностью",
		slog.String("entity_type", deleted.OwnerType),
		slog.String("entity_id", deleted.OwnerID),
		slog.String("tag", deleted.Value),
	)
	b.publish(ctx, events.NewTagDeleted(deleted))
	return nil
}

// Ensure возвращает тег сущности, создавая его при отсутствии.
// Повторные вызовы возвращают тот же тег.
func (b *Binder) Ensure(ctx context.Context, entity model.Entity) (*model.Tag, error) {
	existing, err := b.tags.GetByOwner(ctx, entity.EntityType(), entity.EntityID())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, mapRepoError(err)
	}

	cfg, err := b.configs.Get(ctx, entity.EntityType())
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}

	tag, err := b.create(ctx, entity, cfg)
	if errors.Is(err, ErrDuplicateTag) {
		// Параллельный вызов успел сохранить тег первым
		existing, getErr := b.tags.GetByOwner(ctx, entity.EntityType(), entity.EntityID())
		if getErr != nil {
			return nil, mapRepoError(getErr)
		}
		return existing, nil
	}
	return tag, err
}

// Get возвращает тег сущности или ErrNotFound.
func (b *Binder) Get(ctx context.Context, entity model.Entity) (*model.Tag, error) {
	tag, err := b.tags.GetByOwner(ctx, entity.EntityType(), entity.EntityID())
	if err != nil {
		return nil, mapRepoError(err)
	}
	return tag, nil
}

// SetValue устанавливает значение тега вручную. Пустое значение удаляет тег
// (возвращается nil). Публикуется TagCreated, TagUpdated или TagDeleted.
func (b *Binder) SetValue(ctx context.Context, entity model.Entity, value string) (*model.Tag, error) {
	if value == "" {
		return nil, b.OnDeleting(ctx, entity)
	}
	if err := ValidateTagValue(value); err != nil {
		return nil, err
	}

	existing, err := b.tags.GetByOwner(ctx, entity.EntityType(), entity.EntityID())
	if errors.Is(err, repository.ErrNotFound) {
		return b.insert(ctx, entity, value, nil)
	}
	if err != nil {
		return nil, mapRepoError(err)
	}
	if existing.Value == value {
		return existing, nil
	}

	updated, err := b.tags.UpdateValue(ctx, existing.ID, value)
	if err != nil {
		return nil, mapRepoError(err)
	}
	b.publish(ctx, events.NewTagUpdated(updated, existing.Value))
	return updated, nil
}

// ValidateTagValue проверяет значение, задаваемое вручную.
func ValidateTagValue(value string) error {
	if len(value) > MaxTagValueLength {
		return fmt.Errorf("%w: длина %d превышает %d символов", ErrInvalidFormat, len(value), MaxTagValueLength)
	}
	if !tagValuePattern.MatchString(value) {
		return fmt.Errorf("%w: допустимы латинские буквы, цифры и символы _-./#", ErrInvalidFormat)
	}
	return nil
}

func (b *Binder) publish(ctx context.Context, ev events.Event) {
	if b.notifier != nil {
		b.notifier.Publish(ctx, ev)
	}
}
