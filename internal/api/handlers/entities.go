// entities.go — /api/v1/entities/{type}/{id}: тег отдельной сущности
// и вызов фаз жизненного цикла внешним слоем персистентности.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goarttag/internal/api/errors"
	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/service"
)

// entityRequest — необязательное тело ensure/lifecycle.
type entityRequest struct {
	// BranchID — филиал сущности для формата branch_based
	BranchID string `json:"branchId"`
}

type setTagRequest struct {
	Value *string `json:"value"`
}

type entityTypeResponse struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ListEntityTypes — GET /api/v1/entity-types.
func (h *APIHandler) ListEntityTypes(w http.ResponseWriter, _ *http.Request) {
	types := h.registry.List()
	items := make([]entityTypeResponse, len(types))
	for i, t := range types {
		items[i] = entityTypeResponse{Name: t.Name, Label: t.Label}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetEntityTag — GET /api/v1/entities/{type}/{id}/tag.
func (h *APIHandler) GetEntityTag(w http.ResponseWriter, r *http.Request) {
	entity, err := h.entity(r, "")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	tag, err := h.binder.Get(r.Context(), entity)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// SetEntityTag — PUT /api/v1/entities/{type}/{id}/tag.
// Пустое значение удаляет тег (204).
func (h *APIHandler) SetEntityTag(w http.ResponseWriter, r *http.Request) {
	var req setTagRequest
	if err := decodeJSON(r, &req, false); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Value == nil {
		apierrors.ValidationError(w, "value: обязательное поле")
		return
	}

	entity, err := h.entity(r, "")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	tag, err := h.binder.SetValue(r.Context(), entity, *req.Value)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if tag == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// EnsureEntityTag — POST /api/v1/entities/{type}/{id}/tag/ensure.
// Возвращает существующий тег или создаёт новый.
func (h *APIHandler) EnsureEntityTag(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := decodeJSON(r, &req, true); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	entity, err := h.entity(r, req.BranchID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	tag, err := h.binder.Ensure(r.Context(), entity)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// RunLifecycle — POST /api/v1/entities/{type}/{id}/lifecycle/{phase}.
// Вызывает обработчики фазы (after_save назначает тег, before_delete удаляет).
func (h *APIHandler) RunLifecycle(w http.ResponseWriter, r *http.Request) {
	phase, ok := service.ParsePhase(chi.URLParam(r, "phase"))
	if !ok {
		apierrors.ValidationError(w, fmt.Sprintf("Неизвестная фаза %q", chi.URLParam(r, "phase")))
		return
	}

	var req entityRequest
	if err := decodeJSON(r, &req, true); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	entity, err := h.entity(r, req.BranchID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	hooks, _ := h.registry.Hooks(entity.EntityType())
	if err := hooks.Run(r.Context(), phase, entity); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// entity восстанавливает сущность зарегистрированного типа из пути запроса.
// Филиал из запроса имеет приоритет над ResolveFunc типа.
func (h *APIHandler) entity(r *http.Request, branchID string) (model.Entity, error) {
	entityType, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	if _, ok := h.registry.Lookup(entityType); !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrUnknownEntityType, entityType)
	}
	if branchID != "" {
		return model.BranchEntity{
			EntityRef: model.EntityRef{Type: entityType, ID: id},
			Branch:    branchID,
		}, nil
	}
	return h.registry.Resolve(r.Context(), entityType, id)
}
