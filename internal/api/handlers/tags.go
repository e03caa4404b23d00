// tags.go — /api/v1/tags: поиск тегов и массовые операции.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goarttag/internal/api/errors"
	"github.com/bigkaa/goarttag/internal/repository"
	"github.com/bigkaa/goarttag/internal/service"
)

type bulkRequest struct {
	TagIDs []int64 `json:"tagIds"`
}

type bulkDeleteResponse struct {
	DeletedCount int `json:"deletedCount"`
}

// ListTags — GET /api/v1/tags?owner_type=&value=&limit=&offset=.
// value — префикс значения тега.
func (h *APIHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	params := repository.TagSearchParams{
		OwnerType: r.URL.Query().Get("owner_type"),
		Value:     r.URL.Query().Get("value"),
		Limit:     limit,
		Offset:    offset,
	}
	items, total, err := h.tags.List(r.Context(), params)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// GetTag — GET /api/v1/tags/{id}.
func (h *APIHandler) GetTag(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apierrors.NotFound(w, "Тег не найден")
		return
	}

	tag, err := h.tags.GetByID(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// BulkRegenerate — POST /api/v1/tags/bulk-regenerate.
// Ошибки по отдельным тегам возвращаются в failed, ответ — 200.
func (h *APIHandler) BulkRegenerate(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeBulk(w, r)
	if !ok {
		return
	}

	result, err := h.bulk.Regenerate(r.Context(), ids)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkDelete — POST /api/v1/tags/bulk-delete.
func (h *APIHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.decodeBulk(w, r)
	if !ok {
		return
	}

	n, err := h.bulk.Delete(r.Context(), ids)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkDeleteResponse{DeletedCount: n})
}

func (h *APIHandler) decodeBulk(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	var req bulkRequest
	if err := decodeJSON(r, &req, false); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return nil, false
	}
	if len(req.TagIDs) == 0 {
		apierrors.ValidationError(w, "tagIds: список не может быть пустым")
		return nil, false
	}
	if len(req.TagIDs) > service.MaxBulkItems {
		apierrors.ValidationError(w, fmt.Sprintf("tagIds: не более %d идентификаторов", service.MaxBulkItems))
		return nil, false
	}
	return req.TagIDs, true
}
