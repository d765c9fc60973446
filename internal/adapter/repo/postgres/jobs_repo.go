package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// JobRepo persists and loads inference jobs using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, model_id, status, input_sha256, created_at, updated_at`

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.ModelID, &j.Status, &j.InputSHA256, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

// Create inserts a new QUEUED job and returns the stored row.
func (r *JobRepo) Create(ctx domain.Context, modelID int64, inputSHA256 string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	now := time.Now().UTC()
	q := `INSERT INTO inference_jobs (model_id, status, input_sha256, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$4) RETURNING ` + jobColumns
	j, err := scanJob(r.Pool.QueryRow(ctx, q, modelID, domain.JobQueued, inputSHA256, now))
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=job.create: %w", err)
	}
	span.SetAttributes(attribute.Int64("job.id", j.ID))
	return j, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id int64) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM inference_jobs WHERE id=$1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: id=%d: %w", id, domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// FindActiveBySHA returns the newest job for the fingerprint in any status
// except FAILED. Failed jobs are invisible to dedup so a resubmission gets a
// fresh attempt.
func (r *JobRepo) FindActiveBySHA(ctx domain.Context, sha string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FindActiveBySHA")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM inference_jobs
	      WHERE input_sha256=$1 AND status <> $2
	      ORDER BY created_at DESC, id DESC LIMIT 1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, sha, domain.JobFailed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.find_active: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.find_active: %w", err)
	}
	return j, nil
}

// LockAndTransition atomically moves the subset of ids currently in `from`
// to `to` and returns the rows this caller won. The conditional UPDATE is
// the lock: a concurrent caller racing on the same ids matches zero rows.
func (r *JobRepo) LockAndTransition(ctx domain.Context, ids []int64, from, to domain.JobStatus) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.LockAndTransition")
	defer span.End()
	if len(ids) == 0 {
		return nil, nil
	}
	q := `UPDATE inference_jobs SET status=$3, updated_at=$4
	      WHERE id = ANY($1) AND status=$2
	      RETURNING ` + jobColumns
	rows, err := r.Pool.Query(ctx, q, ids, from, to, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("op=job.lock_transition: %w", err)
	}
	defer rows.Close()
	var won []domain.Job
	for rows.Next() {
		j, serr := scanJob(rows)
		if serr != nil {
			return nil, fmt.Errorf("op=job.lock_transition: %w", serr)
		}
		won = append(won, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.lock_transition: %w", err)
	}
	span.SetAttributes(attribute.Int("jobs.requested", len(ids)), attribute.Int("jobs.won", len(won)))
	return won, nil
}

// SetStatus updates a job's status and bumps updated_at.
func (r *JobRepo) SetStatus(ctx domain.Context, id int64, status domain.JobStatus) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.SetStatus")
	defer span.End()
	q := `UPDATE inference_jobs SET status=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.set_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.set_status: id=%d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// StuckInProgress lists IN_PROGRESS jobs whose last update is older than the
// cutoff. These belonged to a worker that died mid-batch.
func (r *JobRepo) StuckInProgress(ctx domain.Context, olderThan time.Time) ([]domain.Job, error) {
	return r.stuck(ctx, "jobs.StuckInProgress",
		`SELECT `+jobColumns+` FROM inference_jobs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC`,
		domain.JobInProgress, olderThan)
}

// StuckQueued lists QUEUED jobs created before the cutoff. Their queue entry
// or image blob was lost, so no worker will ever pick them up.
func (r *JobRepo) StuckQueued(ctx domain.Context, olderThan time.Time) ([]domain.Job, error) {
	return r.stuck(ctx, "jobs.StuckQueued",
		`SELECT `+jobColumns+` FROM inference_jobs WHERE status=$1 AND created_at < $2 ORDER BY created_at ASC`,
		domain.JobQueued, olderThan)
}

func (r *JobRepo) stuck(ctx domain.Context, spanName, q string, status domain.JobStatus, cutoff time.Time) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	rows, err := r.Pool.Query(ctx, q, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("op=job.stuck: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		j, serr := scanJob(rows)
		if serr != nil {
			return nil, fmt.Errorf("op=job.stuck: %w", serr)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.stuck: %w", err)
	}
	return jobs, nil
}
