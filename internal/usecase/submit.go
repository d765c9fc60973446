// Package usecase wires the domain ports into application services used by
// the HTTP handlers and the worker binary.
package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// SubmitService accepts validated image bytes, deduplicates by fingerprint,
// and enqueues new inference jobs.
type SubmitService struct {
	Models  domain.ModelRepository
	Jobs    domain.JobRepository
	Results domain.ResultRepository
	Queue   domain.QueueStore
}

// NewSubmitService constructs a SubmitService with the given ports.
func NewSubmitService(m domain.ModelRepository, j domain.JobRepository, r domain.ResultRepository, q domain.QueueStore) SubmitService {
	return SubmitService{Models: m, Jobs: j, Results: r, Queue: q}
}

// Submission is the outcome of a submit call. Result is non-nil only when
// dedup found an already-completed job for the same bytes.
type Submission struct {
	Job     domain.Job
	Result  *domain.Result
	Created bool
}

// Fingerprint returns the hex SHA-256 of the image bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Submit deduplicates against the fingerprint cache and the job table, and
// creates a fresh QUEUED job when no active duplicate exists. The blob is
// stored before the id is enqueued so a worker can never observe a queued
// job whose image has not been written yet.
func (s SubmitService) Submit(ctx domain.Context, data []byte) (Submission, error) {
	sha := Fingerprint(data)

	if sub, ok := s.dedup(ctx, sha, data); ok {
		observability.JobsDedupedTotal.Inc()
		return sub, nil
	}

	model, err := s.Models.Latest(ctx)
	if err != nil {
		return Submission{}, err
	}

	job, err := s.Jobs.Create(ctx, model.ID, sha)
	if err != nil {
		return Submission{}, err
	}
	if err := s.Queue.StoreImage(ctx, sha, data); err != nil {
		return Submission{}, err
	}
	if err := s.Queue.Enqueue(ctx, job.ID); err != nil {
		return Submission{}, err
	}
	observability.EnqueueJob()
	if err := s.Queue.SetCachedJob(ctx, sha, job.ID); err != nil {
		// The DB fallback still dedups; losing the cache entry is not fatal.
		slog.Warn("dedup cache write failed", slog.Int64("job_id", job.ID), slog.Any("error", err))
	}
	slog.Info("job submitted", slog.Int64("job_id", job.ID), slog.String("sha256", sha), slog.Int64("model_id", model.ID))
	return Submission{Job: job, Created: true}, nil
}

// dedup resolves the fingerprint through the cache first, then the job
// table. A cache hit pointing at a vanished or failed job falls through to
// a fresh submission.
func (s SubmitService) dedup(ctx domain.Context, sha string, data []byte) (Submission, bool) {
	if id, ok, err := s.Queue.CachedJob(ctx, sha); err == nil && ok {
		job, err := s.Jobs.Get(ctx, id)
		if err == nil && job.Status != domain.JobFailed {
			return s.withResult(ctx, job), true
		}
	}

	job, err := s.Jobs.FindActiveBySHA(ctx, sha)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("dedup lookup failed", slog.String("sha256", sha), slog.Any("error", err))
		}
		return Submission{}, false
	}
	// Repopulate the cache so the next duplicate skips the table scan, and
	// refresh the blob in case its TTL lapsed while the job sat in queue.
	if cerr := s.Queue.SetCachedJob(ctx, sha, job.ID); cerr != nil {
		slog.Debug("dedup cache repopulate failed", slog.Any("error", cerr))
	}
	if !job.Status.Terminal() {
		if serr := s.Queue.StoreImage(ctx, sha, data); serr != nil {
			slog.Debug("dedup blob refresh failed", slog.Any("error", serr))
		}
	}
	return s.withResult(ctx, job), true
}

func (s SubmitService) withResult(ctx domain.Context, job domain.Job) Submission {
	sub := Submission{Job: job}
	if job.Status == domain.JobCompleted {
		if res, err := s.Results.GetByJobID(ctx, job.ID); err == nil {
			sub.Result = &res
		}
	}
	return sub
}
