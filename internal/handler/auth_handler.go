package handler

import (
	"context"
	"net/http"
)

type principalInvalidator interface {
	Invalidate(ctx context.Context, id string) error
}

type AuthHandler struct {
	directory principalInvalidator
}

func NewAuthHandler(directory principalInvalidator) *AuthHandler {
	return &AuthHandler{directory: directory}
}

// Logout drops the caller's cached principal so the next request reads the
// directory again. Tokens themselves are owned by the login service.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	if err := h.directory.Invalidate(r.Context(), principal.ID); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, principal, nil)
}
