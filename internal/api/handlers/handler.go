// handler.go — основной обработчик API: маршруты, зависимости,
// перевод ошибок сервисного слоя в HTTP-ответы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goarttag/internal/api/errors"
	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/repository"
	"github.com/bigkaa/goarttag/internal/service"
)

// ConfigManager — управление конфигурациями тегов (service.ConfigService).
type ConfigManager interface {
	List(ctx context.Context, limit, offset int) ([]*model.TagConfig, int, error)
	GetByID(ctx context.Context, id string) (*model.TagConfig, error)
	Create(ctx context.Context, params service.CreateConfigParams) (*model.TagConfig, error)
	Update(ctx context.Context, id string, params service.UpdateConfigParams) (*model.TagConfig, error)
	Delete(ctx context.Context, id string) error
}

// TagReader — чтение тегов (service.TagService).
type TagReader interface {
	List(ctx context.Context, params repository.TagSearchParams) ([]*model.Tag, int, error)
	GetByID(ctx context.Context, id int64) (*model.Tag, error)
}

// BulkRunner — массовые операции (service.BulkOperator).
type BulkRunner interface {
	Regenerate(ctx context.Context, ids []int64) (*service.BulkResult, error)
	Delete(ctx context.Context, ids []int64) (int, error)
}

// EntityTagger — тег отдельной сущности (service.Binder).
type EntityTagger interface {
	Get(ctx context.Context, entity model.Entity) (*model.Tag, error)
	Ensure(ctx context.Context, entity model.Entity) (*model.Tag, error)
	SetValue(ctx context.Context, entity model.Entity, value string) (*model.Tag, error)
}

// APIHandler — обработчик API Tag Allocator.
type APIHandler struct {
	health   *HealthHandler
	configs  ConfigManager
	tags     TagReader
	bulk     BulkRunner
	binder   EntityTagger
	registry *service.Registry
	// debug — отдавать клиенту текст внутренних ошибок
	debug  bool
	logger *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	configs ConfigManager,
	tags TagReader,
	bulk BulkRunner,
	binder EntityTagger,
	registry *service.Registry,
	debug bool,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		configs:  configs,
		tags:     tags,
		bulk:     bulk,
		binder:   binder,
		registry: registry,
		debug:    debug,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует маршруты API.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/entity-types", h.ListEntityTypes)

		r.Get("/tag-configs", h.ListTagConfigs)
		r.Post("/tag-configs", h.CreateTagConfig)
		r.Get("/tag-configs/{id}", h.GetTagConfig)
		r.Put("/tag-configs/{id}", h.UpdateTagConfig)
		r.Delete("/tag-configs/{id}", h.DeleteTagConfig)

		r.Get("/tags", h.ListTags)
		r.Get("/tags/{id}", h.GetTag)
		r.Post("/tags/bulk-regenerate", h.BulkRegenerate)
		r.Post("/tags/bulk-delete", h.BulkDelete)

		r.Get("/entities/{type}/{id}/tag", h.GetEntityTag)
		r.Put("/entities/{type}/{id}/tag", h.SetEntityTag)
		r.Post("/entities/{type}/{id}/tag/ensure", h.EnsureEntityTag)
		r.Post("/entities/{type}/{id}/lifecycle/{phase}", h.RunLifecycle)
	})
}

// --- Вспомогательные функции ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.ContentLength == 0 && allowEmpty {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// pagination читает limit/offset: limit 1..1000 (по умолчанию 100), offset ≥ 0.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = 100, 0
	q := r.URL.Query()

	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, errors.New("limit должен быть целым числом")
		}
		limit = min(max(limit, 1), 1000)
	}
	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, errors.New("offset должен быть целым числом")
		}
		offset = max(offset, 0)
	}
	return limit, offset, nil
}

type listResponse[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

func newListResponse[T any](items []T, total, limit, offset int) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Текст внутренних ошибок отдаётся клиенту только в debug-режиме.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrMissingBranch):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidFormat):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeInvalidFormat, err.Error())
	case errors.Is(err, service.ErrConfigNotFound):
		apierrors.WriteError(w, http.StatusNotFound, apierrors.CodeConfigNotFound, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownEntityType):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrDuplicateTag):
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeDuplicateTag, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Конфликт: ресурс уже существует")
	case errors.Is(err, service.ErrConcurrencyExhausted):
		apierrors.WriteError(w, http.StatusServiceUnavailable, apierrors.CodeConcurrencyExhausted,
			h.message("Счётчик занят, повторите запрос позже", err))
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logger.Error("Хранилище недоступно",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.StoreUnavailable(w, h.message("Хранилище недоступно", err))
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, h.message("Внутренняя ошибка", err))
	}
}

func (h *APIHandler) message(public string, err error) string {
	if h.debug {
		return public + ": " + err.Error()
	}
	return public
}
