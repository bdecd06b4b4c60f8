package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"clinic-trash/internal/middleware"
	"clinic-trash/internal/model"
	"clinic-trash/internal/service"
	"clinic-trash/pkg/apierror"
)

type TrashHandler struct {
	service *service.TrashService
}

func NewTrashHandler(service *service.TrashService) *TrashHandler {
	return &TrashHandler{service: service}
}

type retentionRequest struct {
	AutoDelete *bool `json:"auto_delete"`
}

type recordView struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Loose      bool           `json:"loose,omitempty"`
	Fields     model.Document `json:"fields"`
}

func (h *TrashHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := h.service.ListTrash(r.Context(), model.TrashFilter{
		Scope:        strings.TrimSpace(query.Get("scope")),
		OriginalType: strings.TrimSpace(query.Get("type")),
		Cursor:       strings.TrimSpace(query.Get("cursor")),
		Limit:        parseIntOrDefault(query.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, page, nil)
}

func (h *TrashHandler) Restore(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	record, err := h.service.Restore(r.Context(), chi.URLParam(r, "trash_id"), principal)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := viewOf(record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, view, nil)
}

func (h *TrashHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	if err := h.service.HardDeleteTrashEntry(r.Context(), chi.URLParam(r, "trash_id"), principal); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deleted": true}, nil)
}

func (h *TrashHandler) Empty(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	removed, err := h.service.EmptyTrash(r.Context(), r.URL.Query().Get("scope"), principal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deleted": removed}, nil)
}

func (h *TrashHandler) SetRetention(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	var payload retentionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.AutoDelete == nil {
		writeError(w, apierror.BadRequest("auto_delete is required", "auto_delete"))
		return
	}

	entry, err := h.service.SetAutoDelete(r.Context(), chi.URLParam(r, "trash_id"), *payload.AutoDelete, principal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entry, nil)
}

func principalOrError(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return model.Principal{}, false
	}
	return principal, true
}

func viewOf(record model.Record) (recordView, error) {
	fields, err := record.Document()
	if err != nil {
		return recordView{}, err
	}
	_, loose := record.(model.LooseRecord)
	return recordView{
		EntityType: record.RecordType(),
		EntityID:   record.RecordID(),
		Loose:      loose,
		Fields:     fields,
	}, nil
}
