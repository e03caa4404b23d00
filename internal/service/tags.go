// tags.go — чтение тегов для API и CLI.
package service

import (
	"context"
	"log/slog"

	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/repository"
)

// TagService — поиск и чтение тегов.
type TagService struct {
	repo   repository.TagRepository
	logger *slog.Logger
}

// NewTagService создаёт сервис чтения тегов.
func NewTagService(repo repository.TagRepository, logger *slog.Logger) *TagService {
	return &TagService{
		repo:   repo,
		logger: logger.With(slog.String("component", "tag_service")),
	}
}

// List возвращает страницу тегов и общее количество по фильтру.
// Value — префикс значения.
func (s *TagService) List(ctx context.Context, params repository.TagSearchParams) ([]*model.Tag, int, error) {
	items, err := s.repo.Search(ctx, params)
	if err != nil {
		return nil, 0, mapRepoError(err)
	}
	total, err := s.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, mapRepoError(err)
	}
	return items, total, nil
}

// GetByID возвращает тег по идентификатору.
func (s *TagService) GetByID(ctx context.Context, id int64) (*model.Tag, error) {
	tag, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return tag, nil
}
