// bulk.go — массовые операции над тегами: перегенерация и удаление.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
)

// MaxBulkItems — максимальное количество идентификаторов в одной массовой операции.
const MaxBulkItems = 1000

// BulkRegenerated — успешно перегенерированный тег.
type BulkRegenerated struct {
	ID       int64  `json:"id" yaml:"id"`
	OldValue string `json:"oldValue" yaml:"oldValue"`
	NewValue string `json:"newValue" yaml:"newValue"`
}

// BulkFailure — тег, который не удалось перегенерировать.
type BulkFailure struct {
	ID    int64  `json:"id" yaml:"id"`
	Error string `json:"error" yaml:"error"`
}

// BulkResult — итог массовой перегенерации.
type BulkResult struct {
	Regenerated []BulkRegenerated `json:"regenerated" yaml:"regenerated"`
	Failed      []BulkFailure     `json:"failed" yaml:"failed"`
}

// BulkOperator — массовые операции.
type BulkOperator struct {
	tags      repository.TagRepository
	generator TagGenerator
	registry  *Registry
	notifier  events.Publisher
	logger    *slog.Logger
}

// NewBulkOperator создаёт BulkOperator. registry может быть nil.
func NewBulkOperator(
	tags repository.TagRepository,
	generator TagGenerator,
	registry *Registry,
	notifier events.Publisher,
	logger *slog.Logger,
) *BulkOperator {
	return &BulkOperator{
		tags:      tags,
		generator: generator,
		registry:  registry,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "bulk")),
	}
}

// Regenerate перегенерирует теги в два шага. Сначала вычисляются новые
// значения: генерация вне транзакции, счётчик берёт своё соединение пула.
// Затем значения записываются в одной транзакции, каждый тег в отдельном
// savepoint. Ошибка по тегу попадает в Failed и не отменяет остальные;
// недоступность хранилища прерывает операцию. События TagUpdated
// публикуются после фиксации транзакции.
func (b *BulkOperator) Regenerate(ctx context.Context, ids []int64) (*BulkResult, error) {
	result := &BulkResult{Regenerated: []BulkRegenerated{}, Failed: []BulkFailure{}}

	pending := make([]BulkRegenerated, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		oldValue, value, err := b.nextValue(ctx, id)
		if err != nil {
			if isUnavailable(err) {
				return nil, storeError(err)
			}
			b.fail(result, id, err)
			continue
		}
		pending = append(pending, BulkRegenerated{ID: id, OldValue: oldValue, NewValue: value})
	}

	var updatedTags []*model.Tag
	err := b.tags.WithinTx(ctx, func(tx repository.TagRepository) error {
		for _, p := range pending {
			var updated *model.Tag
			err := tx.WithinTx(ctx, func(sp repository.TagRepository) error {
				var err error
				updated, err = sp.UpdateValue(ctx, p.ID, p.NewValue)
				return mapRepoError(err)
			})
			if err != nil {
				if isUnavailable(err) {
					return err
				}
				b.fail(result, p.ID, err)
				continue
			}

			bulkItemsTotal.WithLabelValues("regenerate", "updated").Inc()
			result.Regenerated = append(result.Regenerated, p)
			updatedTags = append(updatedTags, updated)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	for i, tag := range updatedTags {
		b.publish(ctx, events.NewTagUpdated(tag, result.Regenerated[i].OldValue))
	}

	b.logger.Info("Массовая перегенерация тегов завершена",
		slog.Int("requested", len(ids)),
		slog.Int("regenerated", len(result.Regenerated)),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// nextValue читает тег, восстанавливает владельца и генерирует новое значение.
func (b *BulkOperator) nextValue(ctx context.Context, id int64) (oldValue, value string, err error) {
	tag, err := b.tags.GetByID(ctx, id)
	if err != nil {
		return "", "", mapRepoError(err)
	}
	entity, err := b.registry.Resolve(ctx, tag.OwnerType, tag.OwnerID)
	if err != nil {
		return "", "", err
	}
	value, err = b.generator.TryGenerate(ctx, entity)
	if err != nil {
		return "", "", err
	}
	return tag.Value, value, nil
}

func (b *BulkOperator) fail(result *BulkResult, id int64, err error) {
	bulkItemsTotal.WithLabelValues("regenerate", "failed").Inc()
	b.logger.Warn("Не удалось перегенерировать тег",
		slog.Int64("tag_id", id),
		slog.String("error", err.Error()),
	)
	result.Failed = append(result.Failed, BulkFailure{ID: id, Error: err.Error()})
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, repository.ErrUnavailable)
}

// storeError переводит ошибку в ошибку сервисного слоя, не оборачивая повторно.
func storeError(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return mapRepoError(err)
}

// Delete удаляет теги одним запросом и возвращает количество удалённых.
// TagDeleted публикуется для каждого удалённого тега.
func (b *BulkOperator) Delete(ctx context.Context, ids []int64) (int, error) {
	deleted, err := b.tags.DeleteByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return 0, mapRepoError(err)
	}

	bulkItemsTotal.WithLabelValues("delete", "deleted").Add(float64(len(deleted)))
	for _, tag := range deleted {
		b.publish(ctx, events.NewTagDeleted(tag))
	}

	b.logger.Info("Массовое удаление тегов завершено",
		slog.Int("requested", len(ids)),
		slog.Int("deleted", len(deleted)),
	)
	return len(deleted), nil
}

func (b *BulkOperator) publish(ctx context.Context, ev events.Event) {
	if b.notifier != nil {
		b.notifier.Publish(ctx, ev)
	}
}

// uniqueIDs убирает повторы, сохраняя порядок.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
