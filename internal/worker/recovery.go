package worker

import (
	"log/slog"
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// Recovery re-dispatches jobs the pipeline lost track of. Two populations:
//
//   - IN_PROGRESS rows not touched for a while belonged to a worker that
//     died after winning the status lock.
//   - QUEUED rows older than a threshold lost their queue entry or image
//     blob, so no worker will ever pop them.
//
// Both go through the retry policy so recovery attempts still count
// against the retry budget and eventually dead-letter.
type Recovery struct {
	Jobs   domain.JobRepository
	Queue  domain.QueueStore
	Policy *RetryPolicy

	StuckInProgressAfter time.Duration
	StuckQueuedAfter     time.Duration
}

// Sweep runs one recovery pass. Failures are logged and the pass continues;
// the next interval retries whatever this one missed.
func (r *Recovery) Sweep(ctx domain.Context) {
	now := time.Now().UTC()

	stuck, err := r.Jobs.StuckInProgress(ctx, now.Add(-r.StuckInProgressAfter))
	if err != nil {
		slog.Error("stuck in-progress query failed", slog.Any("error", err))
	} else {
		for _, job := range stuck {
			slog.Warn("recovering stuck in-progress job",
				slog.Int64("job_id", job.ID), slog.Time("updated_at", job.UpdatedAt))
			observability.JobsRecoveredTotal.WithLabelValues("in_progress").Inc()
			r.Policy.Dispatch(ctx, job, domain.ErrInferenceTimeout)
		}
	}

	orphaned, err := r.Jobs.StuckQueued(ctx, now.Add(-r.StuckQueuedAfter))
	if err != nil {
		slog.Error("stuck queued query failed", slog.Any("error", err))
		return
	}
	for _, job := range orphaned {
		slog.Warn("recovering orphaned queued job",
			slog.Int64("job_id", job.ID), slog.Time("created_at", job.CreatedAt))
		observability.JobsRecoveredTotal.WithLabelValues("queued").Inc()
		r.Policy.Dispatch(ctx, job, domain.ErrBlobMissing)
	}
}
