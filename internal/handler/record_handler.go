package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinic-trash/internal/model"
	"clinic-trash/internal/service"
)

// RecordHandler is the record-facing side of the trash: moving a live record
// into it and reading live records with trashed duplicates hidden.
type RecordHandler struct {
	service *service.TrashService
}

func NewRecordHandler(service *service.TrashService) *RecordHandler {
	return &RecordHandler{service: service}
}

type softDeleteRequest struct {
	TrashMessage string `json:"trash_message"`
	AuditMessage string `json:"audit_message"`
	Scope        string `json:"scope"`
	Retain       bool   `json:"retain"`
}

func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.FindLive(r.Context(), chi.URLParam(r, "entity_type"), chi.URLParam(r, "entity_id"))
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

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	var payload softDeleteRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.service.SoftDelete(r.Context(), model.SoftDeleteRequest{
		EntityType:   chi.URLParam(r, "entity_type"),
		EntityID:     chi.URLParam(r, "entity_id"),
		Scope:        payload.Scope,
		TrashMessage: payload.TrashMessage,
		AuditMessage: payload.AuditMessage,
		Retain:       payload.Retain,
	}, principal)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, entry, nil)
}
