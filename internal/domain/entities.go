// Package domain holds the core entities, ports, and error taxonomy of the
// inference platform. It has no dependencies on adapters; adapters depend on
// it.
package domain

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTooLarge         = errors.New("payload too large")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrUnprocessable    = errors.New("unprocessable image")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("service unavailable")
	ErrBlobMissing      = errors.New("image blob missing")
	ErrPreprocess       = errors.New("preprocess failed")
	ErrInferenceTimeout = errors.New("inference timed out")
	ErrInference        = errors.New("inference failed")
)

// JobStatus is the closed set of job states. The storage layer encodes the
// variants as short strings for schema compatibility.
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// ModelVersion tracks a seeded model. Read-only after seeding; jobs reference
// it with a RESTRICT foreign key so it cannot be deleted while in use.
type ModelVersion struct {
	ID         int64
	Name       string
	WeightsRef string
	CreatedAt  time.Time
}

// Job is one inference request from submission to terminal status. The DB row
// is the single source of truth for status; the Redis queue only carries the
// job id to a worker.
//
// Allowed transitions: QUEUED → IN_PROGRESS → {COMPLETED, FAILED}.
// IN_PROGRESS → QUEUED is reserved for retry and stuck-job recovery.
type Job struct {
	ID          int64
	ModelID     int64
	Status      JobStatus
	InputSHA256 string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Result holds the per-label scores for a completed job. At most one row per
// job, enforced by the primary key on job_id.
type Result struct {
	JobID     int64
	Output    map[string]float64
	TopLabel  string
	CreatedAt time.Time
}

// TopLabel returns the label with the highest score. Ties break
// lexicographically so the pick is deterministic.
func TopLabel(scores map[string]float64) string {
	labels := make([]string, 0, len(scores))
	for l := range scores {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	best := ""
	bestScore := 0.0
	for _, l := range labels {
		if best == "" || scores[l] > bestScore {
			best = l
			bestScore = scores[l]
		}
	}
	return best
}

// Repositories (ports)

type ModelRepository interface {
	Latest(ctx Context) (ModelVersion, error)
	Seed(ctx Context, name, weightsRef string) (ModelVersion, error)
}

type JobRepository interface {
	Create(ctx Context, modelID int64, inputSHA256 string) (Job, error)
	Get(ctx Context, id int64) (Job, error)
	// FindActiveBySHA returns the newest job for the fingerprint in any
	// status except FAILED, or ErrNotFound.
	FindActiveBySHA(ctx Context, sha string) (Job, error)
	// LockAndTransition atomically moves the subset of ids currently in
	// `from` to `to` and returns only the rows this caller won. Under
	// concurrency each id is returned to at most one caller.
	LockAndTransition(ctx Context, ids []int64, from, to JobStatus) ([]Job, error)
	SetStatus(ctx Context, id int64, status JobStatus) error
	StuckInProgress(ctx Context, olderThan time.Time) ([]Job, error)
	StuckQueued(ctx Context, olderThan time.Time) ([]Job, error)
}

type ResultRepository interface {
	// Insert persists a result. A conflicting insert for the same job_id is
	// not an error: the job is already completed.
	Insert(ctx Context, jobID int64, output map[string]float64, topLabel string) error
	GetByJobID(ctx Context, jobID int64) (Result, error)
}

// WindowStats aggregates the rolling metrics window.
type WindowStats struct {
	Total   int64
	Success int64
	Failed  int64
	P50     float64
	P95     float64
	P99     float64
}

type StatsRepository interface {
	Window(ctx Context, since time.Time) (WindowStats, error)
}

// QueueStore is the Redis-backed ephemeral state: FIFO queue, image blobs,
// dedup cache, retry counters, dead-letter list. Operations return
// ErrUnavailable (wrapped) when the backing store is unreachable.
type QueueStore interface {
	Enqueue(ctx Context, jobID int64) error
	// CollectBatch blocks up to firstWait for the first id, then drains
	// non-blockingly until window elapses or maxSize is reached. Returns an
	// empty batch on timeout. FIFO order is preserved within the batch.
	CollectBatch(ctx Context, firstWait, window time.Duration, maxSize int) ([]int64, error)
	StoreImage(ctx Context, sha string, data []byte) error
	// FetchImage returns ErrBlobMissing when the blob expired or was never
	// written.
	FetchImage(ctx Context, sha string) ([]byte, error)
	// CachedJob returns the last job id recorded for the fingerprint, or
	// ok=false on a cache miss.
	CachedJob(ctx Context, sha string) (jobID int64, ok bool, err error)
	SetCachedJob(ctx Context, sha string, jobID int64) error
	IncrRetry(ctx Context, jobID int64) (int, error)
	ClearRetry(ctx Context, jobID int64) error
	PushDLQ(ctx Context, jobID int64) error
	ListDLQ(ctx Context) ([]int64, error)
	Ping(ctx Context) error
}

// Predictor is the external inference capability. One instance per
// worker; Load is called once at worker startup and may download weights.
// PredictBatch must respect the context deadline or return an error.
type Predictor interface {
	Load(ctx Context) error
	Preprocess(data []byte) (Tensor, error)
	PredictBatch(ctx Context, inputs []Tensor) ([]map[string]float64, error)
}

// Tensor is a preprocessed single-channel image in row-major order.
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

// Context is an alias to keep domain signatures free of the std import at
// call sites; adapters pass context.Context through.
type Context = context.Context
