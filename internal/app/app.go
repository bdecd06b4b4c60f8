package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"clinic-trash/internal/auth"
	"clinic-trash/internal/config"
	"clinic-trash/internal/handler"
	"clinic-trash/internal/metrics"
	"clinic-trash/internal/middleware"
	"clinic-trash/internal/router"
	"clinic-trash/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server       *http.Server
	worker       *service.PurgeWorker
	logger       *slog.Logger
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var b *backends
	switch cfg.Storage {
	case config.StorageMemory:
		b = openMemory(cfg, logger)
	default:
		var err error
		if b, err = openPostgres(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}
	cleanup := []func(){b.close}

	var cache *auth.PrincipalCache
	if cfg.RedisAddr != "" {
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, principal lookups will hit the database", "addr", cfg.RedisAddr, "error", err)
		}
		cache = auth.NewPrincipalCache(client, cfg.PrincipalCacheTTL)
		cleanup = append(cleanup, func() { _ = client.Close() })
	}
	directory := auth.NewDirectory(b.principals, cache, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	trashService := service.NewTrashService(b.records, b.trash, b.audit, service.TrashOptions{
		Retention:    cfg.TrashRetention,
		RestoreLease: cfg.TrashRestoreLease,
		PurgeBatch:   cfg.TrashPurgeBatch,
		Directory:    directory,
		Metrics:      metrics.NewTrash(registry),
		Logger:       logger,
	})

	authMiddleware := middleware.NewAuthMiddleware(auth.NewTokenValidator(cfg.JWTSecret), directory)
	appRouter := router.New(cfg, logger, registry, b.health, authMiddleware, router.Handlers{
		Auth:   handler.NewAuthHandler(directory),
		Trash:  handler.NewTrashHandler(trashService),
		Record: handler.NewRecordHandler(trashService),
		Audit:  handler.NewAuditHandler(b.audit),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		worker:       service.NewPurgeWorker(trashService, cfg.TrashPurgeInterval, logger),
		logger:       logger,
		cleanupFuncs: cleanup,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests and stops
// the purge worker before closing the stores.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(workerCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}

	stopWorker()
	wg.Wait()

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	a.logger.Info("server stopped")
	return runErr
}
