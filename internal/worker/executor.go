// Package worker implements the batch inference pipeline: collecting queued
// job ids, executing the model over micro-batches, persisting results, and
// retrying or dead-lettering failures. A supervisor keeps a fixed pool of
// workers alive and periodically recovers stuck jobs.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// Executor runs one collected batch end to end.
type Executor struct {
	Jobs      domain.JobRepository
	Results   domain.ResultRepository
	Queue     domain.QueueStore
	Predictor domain.Predictor
	Policy    *RetryPolicy

	// PerJobTimeout scales the forward-pass deadline with the batch size.
	PerJobTimeout time.Duration
	Engine        string
}

// ExecuteBatch processes the ids popped from the queue. Ids whose status
// lock is lost are skipped silently: another worker or recovery owns them.
// The batch survives partial failure; each job fails or completes on its
// own.
func (e *Executor) ExecuteBatch(ctx domain.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	lg := slog.Default().With(slog.Int("batch_size", len(ids)))

	won, err := e.Jobs.LockAndTransition(ctx, ids, domain.JobQueued, domain.JobInProgress)
	if err != nil {
		// The ids stay QUEUED in the table; stuck-queued recovery will
		// re-enqueue them once they age past the threshold.
		lg.Error("batch lock failed", slog.Any("error", err))
		return
	}
	if len(won) < len(ids) {
		lg.Info("lost status race on some ids", slog.Int("won", len(won)))
	}
	if len(won) == 0 {
		return
	}
	observability.StartProcessingJobs(len(won))

	// Load and preprocess. Jobs that cannot produce a tensor go straight to
	// the retry policy; the rest form the forward-pass batch.
	valid := make([]domain.Job, 0, len(won))
	tensors := make([]domain.Tensor, 0, len(won))
	for _, job := range won {
		data, ferr := e.Queue.FetchImage(ctx, job.InputSHA256)
		if ferr != nil {
			lg.Warn("image blob unavailable", slog.Int64("job_id", job.ID), slog.Any("error", ferr))
			e.dispatch(ctx, job, ferr)
			continue
		}
		tensor, perr := e.Predictor.Preprocess(data)
		if perr != nil {
			lg.Warn("preprocess failed", slog.Int64("job_id", job.ID), slog.Any("error", perr))
			e.dispatch(ctx, job, perr)
			continue
		}
		valid = append(valid, job)
		tensors = append(tensors, tensor)
	}
	if len(valid) == 0 {
		return
	}

	deadline := e.PerJobTimeout * time.Duration(len(valid))
	predCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	outputs, err := e.Predictor.PredictBatch(predCtx, tensors)
	observability.ObserveBatch(e.Engine, len(valid), time.Since(start))
	if err != nil {
		if errors.Is(predCtx.Err(), context.DeadlineExceeded) {
			err = errors.Join(domain.ErrInferenceTimeout, err)
		}
		lg.Error("batch inference failed", slog.Int("jobs", len(valid)), slog.Any("error", err))
		for _, job := range valid {
			e.dispatch(ctx, job, err)
		}
		return
	}

	for i, job := range valid {
		e.persist(ctx, job, outputs[i], lg)
	}
}

// dispatch hands a failed job to the retry policy and releases its slot in
// the processing gauge.
func (e *Executor) dispatch(ctx domain.Context, job domain.Job, cause error) {
	observability.JobsProcessing.Dec()
	e.Policy.Dispatch(ctx, job, cause)
}

// persist stores the result and flips the job to COMPLETED. The insert is
// idempotent on job_id, so replaying a job after a crash between insert and
// status update converges instead of duplicating.
func (e *Executor) persist(ctx domain.Context, job domain.Job, output map[string]float64, lg *slog.Logger) {
	top := domain.TopLabel(output)
	if err := e.Results.Insert(ctx, job.ID, output, top); err != nil {
		lg.Error("result insert failed", slog.Int64("job_id", job.ID), slog.Any("error", err))
		e.dispatch(ctx, job, err)
		return
	}
	if err := e.Jobs.SetStatus(ctx, job.ID, domain.JobCompleted); err != nil {
		lg.Error("status update failed", slog.Int64("job_id", job.ID), slog.Any("error", err))
		e.dispatch(ctx, job, err)
		return
	}
	_ = e.Queue.ClearRetry(ctx, job.ID)
	observability.CompleteJob()
	lg.Info("job completed", slog.Int64("job_id", job.ID), slog.String("top_label", top))
}
