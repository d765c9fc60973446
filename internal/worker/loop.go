package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// firstWait is how long a worker blocks for the first id of a batch before
// looping to check for cancellation.
const firstWait = 5 * time.Second

// Loop is one worker: it loads its predictor once, then alternates between
// collecting a batch and executing it until the context is cancelled.
type Loop struct {
	ID       int
	Queue    domain.QueueStore
	Executor *Executor

	BatchWindow  time.Duration
	BatchMaxSize int
}

// Run blocks until ctx is cancelled. Transient queue outages back off
// exponentially instead of spinning; a predictor that cannot load is fatal
// and surfaces to the supervisor.
func (l *Loop) Run(ctx domain.Context) error {
	lg := slog.Default().With(slog.Int("worker_id", l.ID))

	if err := l.Executor.Predictor.Load(ctx); err != nil {
		return fmt.Errorf("op=worker.load: %w", err)
	}
	lg.Info("worker started")

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 0
	for {
		if err := ctx.Err(); err != nil {
			lg.Info("worker draining")
			return nil
		}
		ids, err := l.Queue.CollectBatch(ctx, firstWait, l.BatchWindow, l.BatchMaxSize)
		if err != nil {
			if errors.Is(err, domain.ErrUnavailable) {
				wait := expo.NextBackOff()
				lg.Warn("queue unavailable, backing off", slog.Duration("wait", wait), slog.Any("error", err))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			lg.Error("collect failed", slog.Any("error", err))
			continue
		}
		expo.Reset()
		if len(ids) == 0 {
			continue
		}
		// Cancellation applies at the collect boundary only; a popped batch
		// runs to completion under the executor's own deadline, with the
		// supervisor's drain timeout bounding the wait.
		l.Executor.ExecuteBatch(context.WithoutCancel(ctx), ids)
	}
}
