// tag_configs.go — /api/v1/tag-configs: CRUD конфигураций тегов.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goarttag/internal/api/errors"
	"github.com/bigkaa/goarttag/internal/domain/model"
	"github.com/bigkaa/goarttag/internal/service"
)

// tagConfigRequest — тело POST и PUT. При PUT отсутствующие поля не меняются.
type tagConfigRequest struct {
	EntityType    *string       `json:"entityType"`
	Prefix        *string       `json:"prefix"`
	Separator     *string       `json:"separator"`
	Format        *model.Format `json:"format"`
	AutoGenerate  *bool         `json:"autoGenerate"`
	PaddingLength *int          `json:"paddingLength"`
	Description   *string       `json:"description"`
	CurrentNumber *uint64       `json:"currentNumber"`
}

func (req tagConfigRequest) createParams() service.CreateConfigParams {
	p := service.CreateConfigParams{
		Separator:     req.Separator,
		AutoGenerate:  req.AutoGenerate,
		PaddingLength: req.PaddingLength,
		Description:   req.Description,
		CurrentNumber: req.CurrentNumber,
	}
	if req.EntityType != nil {
		p.EntityType = *req.EntityType
	}
	if req.Prefix != nil {
		p.Prefix = *req.Prefix
	}
	if req.Format != nil {
		p.Format = *req.Format
	}
	return p
}

func (req tagConfigRequest) updateParams() service.UpdateConfigParams {
	return service.UpdateConfigParams{
		EntityType:    req.EntityType,
		Prefix:        req.Prefix,
		Separator:     req.Separator,
		Format:        req.Format,
		AutoGenerate:  req.AutoGenerate,
		PaddingLength: req.PaddingLength,
		Description:   req.Description,
		CurrentNumber: req.CurrentNumber,
	}
}

// ListTagConfigs — GET /api/v1/tag-configs.
func (h *APIHandler) ListTagConfigs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	items, total, err := h.configs.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items, total, limit, offset))
}

// CreateTagConfig — POST /api/v1/tag-configs.
func (h *APIHandler) CreateTagConfig(w http.ResponseWriter, r *http.Request) {
	var req tagConfigRequest
	if err := decodeJSON(r, &req, false); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	cfg, err := h.configs.Create(r.Context(), req.createParams())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// GetTagConfig — GET /api/v1/tag-configs/{id}.
func (h *APIHandler) GetTagConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateTagConfig — PUT /api/v1/tag-configs/{id}. Частичное обновление.
func (h *APIHandler) UpdateTagConfig(w http.ResponseWriter, r *http.Request) {
	var req tagConfigRequest
	if err := decodeJSON(r, &req, false); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	cfg, err := h.configs.Update(r.Context(), chi.URLParam(r, "id"), req.updateParams())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// DeleteTagConfig — DELETE /api/v1/tag-configs/{id}. Выданные теги остаются.
func (h *APIHandler) DeleteTagConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.configs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
