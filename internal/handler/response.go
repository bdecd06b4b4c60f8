package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"clinic-trash/internal/model"
	"clinic-trash/pkg/apierror"
)

const retryAfterSeconds = "5"

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// writeError maps the engine's error taxonomy onto HTTP. Anything gone,
// including a lost race, is reported as "no longer available"; store
// failures are marked retryable.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrRecordNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Record not found"
	case errors.Is(err, model.ErrTrashEntryNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "This item is no longer available"
	case errors.Is(err, model.ErrPrincipalNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Principal not found"
	case errors.Is(err, model.ErrUnknownEntityType):
		status = http.StatusBadRequest
		body.Code = "UNKNOWN_ENTITY_TYPE"
		body.Message = "Unknown entity type"
		body.Details = err.Error()
	case errors.Is(err, model.ErrAlreadyTrashed):
		status = http.StatusConflict
		body.Code = "ALREADY_TRASHED"
		body.Message = "Entity is already in the trash"
	case errors.Is(err, model.ErrRecordExists):
		status = http.StatusConflict
		body.Code = "RECORD_EXISTS"
		body.Message = "A different record now uses this id"
		body.Details = err.Error()
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
		body.Details = err.Error()
	case model.IsRetryable(err):
		status = http.StatusServiceUnavailable
		body.Code = "UNAVAILABLE"
		body.Message = "Storage temporarily unavailable, please retry"
		body.Retryable = true
		w.Header().Set("Retry-After", retryAfterSeconds)
		slog.Warn("retryable store failure", "error", err)
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads an optional JSON body. An empty body leaves target as is.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return apierror.InvalidJSON(err)
	}
	return nil
}

func parseIntOrDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
