package service

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired(context.Context) (int, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestPurgeWorkerRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	purger := &countingPurger{}
	worker := NewPurgeWorker(purger, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return purger.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}

	stopped := purger.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, purger.calls.Load())
}

func TestPurgeWorkerSweepsOnStart(t *testing.T) {
	t.Parallel()

	purger := &countingPurger{}
	worker := NewPurgeWorker(purger, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)
	t.Cleanup(cancel)

	require.Eventually(t, func() bool { return purger.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}
