package usecase

import (
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// OpsService backs the operational endpoints: health, rolling metrics, and
// the dead-letter listing.
type OpsService struct {
	Jobs  domain.JobRepository
	Stats domain.StatsRepository
	Queue domain.QueueStore

	// Window is the rolling metrics horizon.
	Window time.Duration
}

// NewOpsService constructs an OpsService with a 5 minute metrics window.
func NewOpsService(j domain.JobRepository, st domain.StatsRepository, q domain.QueueStore) OpsService {
	return OpsService{Jobs: j, Stats: st, Queue: q, Window: 5 * time.Minute}
}

// Health reports per-dependency status. The database is probed through a
// cheap repository read; Redis through PING.
type Health struct {
	OK    bool   `json:"ok"`
	DB    string `json:"db"`
	Redis string `json:"redis"`
}

func (s OpsService) Health(ctx domain.Context) Health {
	h := Health{OK: true, DB: "up", Redis: "up"}
	if _, err := s.Jobs.StuckInProgress(ctx, time.Unix(0, 0)); err != nil {
		h.OK = false
		h.DB = "down"
	}
	if err := s.Queue.Ping(ctx); err != nil {
		h.OK = false
		h.Redis = "down"
	}
	return h
}

// WindowLatency holds end-to-end latency percentiles in seconds, measured
// from job creation to result persistence.
type WindowLatency struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// WindowMetrics is the ops metrics payload over the rolling window.
type WindowMetrics struct {
	WindowMinutes   float64       `json:"window_minutes"`
	ThroughputRPS   float64       `json:"throughput_rps"`
	FailureRate     float64       `json:"failure_rate"`
	Latency         WindowLatency `json:"end_to_end_latency_seconds"`
	TotalRequests   int64         `json:"total_requests"`
	SuccessRequests int64         `json:"success_requests"`
	FailedRequests  int64         `json:"failed_requests"`
}

func (s OpsService) Metrics(ctx domain.Context) (WindowMetrics, error) {
	since := time.Now().UTC().Add(-s.Window)
	stats, err := s.Stats.Window(ctx, since)
	if err != nil {
		return WindowMetrics{}, err
	}
	m := WindowMetrics{
		WindowMinutes:   s.Window.Minutes(),
		Latency:         WindowLatency{P50: stats.P50, P95: stats.P95, P99: stats.P99},
		TotalRequests:   stats.Total,
		SuccessRequests: stats.Success,
		FailedRequests:  stats.Failed,
	}
	if s.Window > 0 {
		m.ThroughputRPS = float64(stats.Total) / s.Window.Seconds()
	}
	if stats.Total > 0 {
		m.FailureRate = float64(stats.Failed) / float64(stats.Total)
	}
	return m, nil
}

// DLQEntry pairs a dead-lettered id with its current job row when the row
// still exists.
type DLQEntry struct {
	JobID  int64            `json:"job_id"`
	Status domain.JobStatus `json:"status,omitempty"`
	SHA256 string           `json:"input_sha256,omitempty"`
}

// DLQ lists dead-lettered jobs, most recent first, joined against the job
// table for context.
func (s OpsService) DLQ(ctx domain.Context) ([]DLQEntry, error) {
	ids, err := s.Queue.ListDLQ(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]DLQEntry, 0, len(ids))
	for _, id := range ids {
		e := DLQEntry{JobID: id}
		if job, jerr := s.Jobs.Get(ctx, id); jerr == nil {
			e.Status = job.Status
			e.SHA256 = job.InputSHA256
		}
		entries = append(entries, e)
	}
	return entries, nil
}
