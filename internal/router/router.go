package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinic-trash/internal/config"
	"clinic-trash/internal/handler"
	"clinic-trash/internal/middleware"
)

type Handlers struct {
	Auth   *handler.AuthHandler
	Trash  *handler.TrashHandler
	Record *handler.RecordHandler
	Audit  *handler.AuditHandler
}

// HealthCheck reports whether the backing stores are reachable. Nil means
// always healthy.
type HealthCheck func(ctx context.Context) error

func New(
	cfg *config.Config,
	logger *slog.Logger,
	gatherer prometheus.Gatherer,
	health HealthCheck,
	authMiddleware *middleware.AuthMiddleware,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.WriteRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(middleware.CORSOptions{
		Origins:          cfg.CORSOrigins,
		MaxAge:           cfg.CORSMaxAge,
		AllowCredentials: cfg.CORSAllowCredentials,
	}))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(req.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	editors := authMiddleware.RequireRoles("editor", "admin")
	admins := authMiddleware.RequireRoles("admin")

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(authMiddleware.RequireAuth)

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/logout", h.Auth.Logout)
			auth.Get("/me", h.Auth.Me)
		})

		api.Route("/trash", func(trash chi.Router) {
			trash.Get("/", h.Trash.List)
			trash.With(admins).Delete("/", h.Trash.Empty)
			trash.With(editors).Post("/{trash_id}/restore", h.Trash.Restore)
			trash.With(admins).Delete("/{trash_id}", h.Trash.Delete)
			trash.With(admins).Put("/{trash_id}/retention", h.Trash.SetRetention)
		})

		api.Get("/records/{entity_type}/{entity_id}", h.Record.Get)
		api.With(editors).Delete("/records/{entity_type}/{entity_id}", h.Record.Delete)

		api.With(admins).Get("/audit", h.Audit.List)
	})

	return r
}
