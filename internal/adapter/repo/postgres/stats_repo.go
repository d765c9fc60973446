package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// StatsRepo computes rolling-window job statistics for the ops surface.
type StatsRepo struct{ Pool PgxPool }

// NewStatsRepo constructs a StatsRepo with the given pool.
func NewStatsRepo(p PgxPool) *StatsRepo { return &StatsRepo{Pool: p} }

// Window aggregates jobs that reached a terminal status since the cutoff.
// Latency for a completed job is measured from submission to result
// persistence; percentiles come from percentile_cont so they interpolate.
func (r *StatsRepo) Window(ctx domain.Context, since time.Time) (domain.WindowStats, error) {
	tracer := otel.Tracer("repo.stats")
	ctx, span := tracer.Start(ctx, "stats.Window")
	defer span.End()
	q := `
	WITH done AS (
		SELECT j.status,
		       EXTRACT(EPOCH FROM (res.created_at - j.created_at)) AS latency
		FROM inference_jobs j
		LEFT JOIN inference_results res ON res.job_id = j.id
		WHERE j.status IN ($1, $2) AND j.updated_at >= $3
	)
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE status = $1),
	       COUNT(*) FILTER (WHERE status = $2),
	       COALESCE(percentile_cont(0.50) WITHIN GROUP (ORDER BY latency) FILTER (WHERE latency IS NOT NULL), 0),
	       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY latency) FILTER (WHERE latency IS NOT NULL), 0),
	       COALESCE(percentile_cont(0.99) WITHIN GROUP (ORDER BY latency) FILTER (WHERE latency IS NOT NULL), 0)
	FROM done`
	var s domain.WindowStats
	err := r.Pool.QueryRow(ctx, q, domain.JobCompleted, domain.JobFailed, since).
		Scan(&s.Total, &s.Success, &s.Failed, &s.P50, &s.P95, &s.P99)
	if err != nil {
		return domain.WindowStats{}, fmt.Errorf("op=stats.window: %w", err)
	}
	return s, nil
}
