package service

import (
	"context"
	"log/slog"
	"time"
)

type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// PurgeWorker runs the expiry sweep on a fixed interval.
type PurgeWorker struct {
	purger   purger
	interval time.Duration
	logger   *slog.Logger
}

func NewPurgeWorker(p purger, interval time.Duration, logger *slog.Logger) *PurgeWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeWorker{purger: p, interval: interval, logger: logger.With("component", "purge_worker")}
}

// Run sweeps once on start, then every interval until ctx is cancelled.
func (w *PurgeWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("purge worker started", "interval", w.interval)
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("purge worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Failures are logged by the purger and retried on the next tick.
func (w *PurgeWorker) sweep(ctx context.Context) {
	_, _ = w.purger.PurgeExpired(ctx)
}
