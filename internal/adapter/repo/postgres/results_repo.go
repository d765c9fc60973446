package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// ResultRepo persists and loads inference results.
type ResultRepo struct{ Pool PgxPool }

// NewResultRepo constructs a ResultRepo with the given pool.
func NewResultRepo(p PgxPool) *ResultRepo { return &ResultRepo{Pool: p} }

// Insert stores the per-label scores for a job. A second insert for the
// same job_id is a no-op so a replayed batch cannot overwrite or duplicate
// an existing result.
func (r *ResultRepo) Insert(ctx domain.Context, jobID int64, output map[string]float64, topLabel string) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Insert")
	defer span.End()
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("op=result.insert: marshal: %w", err)
	}
	q := `INSERT INTO inference_results (job_id, output, top_label, created_at)
	      VALUES ($1,$2,$3,$4) ON CONFLICT (job_id) DO NOTHING`
	if _, err := r.Pool.Exec(ctx, q, jobID, payload, topLabel, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=result.insert: %w", err)
	}
	return nil
}

// GetByJobID loads the result for a job, or ErrNotFound.
func (r *ResultRepo) GetByJobID(ctx domain.Context, jobID int64) (domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.GetByJobID")
	defer span.End()
	q := `SELECT job_id, output, top_label, created_at FROM inference_results WHERE job_id=$1`
	var res domain.Result
	var payload []byte
	err := r.Pool.QueryRow(ctx, q, jobID).Scan(&res.JobID, &payload, &res.TopLabel, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Result{}, fmt.Errorf("op=result.get: job_id=%d: %w", jobID, domain.ErrNotFound)
		}
		return domain.Result{}, fmt.Errorf("op=result.get: %w", err)
	}
	if err := json.Unmarshal(payload, &res.Output); err != nil {
		return domain.Result{}, fmt.Errorf("op=result.get: unmarshal: %w", err)
	}
	return res, nil
}
