package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"clinic-trash/internal/model"
	"clinic-trash/pkg/apierror"
)

type auditQuerier interface {
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

type AuditHandler struct {
	audit auditQuerier
}

func NewAuditHandler(audit auditQuerier) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	auditQuery := model.AuditQuery{
		Action:     strings.TrimSpace(query.Get("action")),
		EntityType: strings.TrimSpace(query.Get("entity_type")),
		EntityID:   strings.TrimSpace(query.Get("entity_id")),
		ActorID:    strings.TrimSpace(query.Get("actor_id")),
		From:       strings.TrimSpace(query.Get("from")),
		To:         strings.TrimSpace(query.Get("to")),
		Page:       parseIntOrDefault(query.Get("page"), 1),
		Limit:      parseIntOrDefault(query.Get("limit"), 50),
	}
	for field, raw := range map[string]string{"from": auditQuery.From, "to": auditQuery.To} {
		if raw == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, raw); err != nil {
			writeError(w, apierror.BadRequest(field+" must be an RFC 3339 timestamp", field))
			return
		}
	}
	if auditQuery.Action != "" && !model.AuditAction(strings.ToLower(auditQuery.Action)).Valid() {
		writeError(w, apierror.BadRequest("unknown audit action", "action"))
		return
	}

	items, meta, err := h.audit.Query(r.Context(), auditQuery)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}
