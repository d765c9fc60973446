package worker

import (
	"log/slog"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// RetryPolicy decides the fate of a failed attempt: re-enqueue while the
// attempt counter allows it, otherwise fail terminally and dead-letter.
type RetryPolicy struct {
	Jobs       domain.JobRepository
	Queue      domain.QueueStore
	MaxRetries int
}

// Dispatch routes a failed job. On re-enqueue the status is reset to QUEUED
// first so a popped id always passes the executor's status lock; an id
// sitting in the queue as IN_PROGRESS would be unlockable and stall until
// recovery.
func (p *RetryPolicy) Dispatch(ctx domain.Context, job domain.Job, cause error) {
	lg := slog.Default().With(slog.Int64("job_id", job.ID), slog.Any("cause", cause))

	attempts, err := p.Queue.IncrRetry(ctx, job.ID)
	if err != nil {
		// Counter store unreachable. The row stays IN_PROGRESS with its
		// budget unspent; stuck-job recovery re-dispatches it once the
		// store answers again.
		lg.Error("retry counter unavailable, deferring to recovery", slog.Any("error", err))
		return
	}

	if attempts <= p.MaxRetries {
		if err := p.Jobs.SetStatus(ctx, job.ID, domain.JobQueued); err != nil {
			// Row untouched; stuck-in-progress recovery re-dispatches it.
			lg.Error("status reset failed, deferring to recovery", slog.Any("error", err))
			return
		}
		if err := p.Queue.Enqueue(ctx, job.ID); err != nil {
			// Left QUEUED with no queue entry; stuck-queued recovery picks
			// it up after the age threshold.
			lg.Error("re-enqueue failed", slog.Any("error", err))
			return
		}
		observability.RetryJob()
		lg.Warn("job re-enqueued", slog.Int("attempt", attempts), slog.Int("max_retries", p.MaxRetries))
		return
	}

	lg.Warn("retries exhausted", slog.Int("attempts", attempts))
	p.fail(ctx, job, lg)
}

func (p *RetryPolicy) fail(ctx domain.Context, job domain.Job, lg *slog.Logger) {
	if err := p.Jobs.SetStatus(ctx, job.ID, domain.JobFailed); err != nil {
		lg.Error("failed-status update failed", slog.Any("error", err))
	}
	if err := p.Queue.PushDLQ(ctx, job.ID); err != nil {
		lg.Error("dead-letter push failed", slog.Any("error", err))
	}
	_ = p.Queue.ClearRetry(ctx, job.ID)
	observability.FailJob()
}
