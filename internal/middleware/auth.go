package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"clinic-trash/internal/model"
)

type tokenValidator interface {
	ValidateToken(tokenString string) (*model.AuthClaims, error)
}

type principalLookup interface {
	Lookup(ctx context.Context, id string) (model.Principal, error)
}

type contextKey string

const principalContextKey contextKey = "principal"

// AuthMiddleware turns a bearer token into the acting principal. The token
// only names the principal; role and display name come from the directory so
// a role change applies without reissuing tokens.
type AuthMiddleware struct {
	validator tokenValidator
	directory principalLookup
}

func NewAuthMiddleware(validator tokenValidator, directory principalLookup) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, directory: directory}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.validator.ValidateToken(strings.TrimSpace(header[7:]))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		principal, err := m.directory.Lookup(r.Context(), claims.UserID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown principal")
			return
		case err != nil:
			slog.Error("principal lookup failed", "principal_id", claims.UserID, "error", err)
			writeAuthError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "principal directory unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	roleSet := map[string]struct{}{}
	for _, role := range allowedRoles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			if _, exists := roleSet[strings.ToLower(principal.Role)]; !exists {
				writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	return principal, ok
}

// WithPrincipal attaches principal to ctx the way RequireAuth does.
func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

func writeAuthError(w http.ResponseWriter, status int, code string, message string) {
	writeJSONError(w, status, &model.APIError{Code: code, Message: message})
}
