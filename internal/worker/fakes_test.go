package worker_test

import (
	"errors"
	"sync"
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// memJobs is a minimal in-memory JobRepository with the same status-lock
// semantics as the SQL implementation.
type memJobs struct {
	mu   sync.Mutex
	jobs map[int64]domain.Job

	setStatusErr error
}

func newMemJobs(jobs ...domain.Job) *memJobs {
	m := &memJobs{jobs: map[int64]domain.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) get(id int64) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memJobs) Create(_ domain.Context, modelID int64, sha string) (domain.Job, error) {
	return domain.Job{}, errors.New("not used")
}

func (m *memJobs) Get(_ domain.Context, id int64) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (m *memJobs) FindActiveBySHA(domain.Context, string) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (m *memJobs) LockAndTransition(_ domain.Context, ids []int64, from, to domain.JobStatus) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var won []domain.Job
	for _, id := range ids {
		j, ok := m.jobs[id]
		if !ok || j.Status != from {
			continue
		}
		j.Status = to
		j.UpdatedAt = time.Now().UTC()
		m.jobs[id] = j
		won = append(won, j)
	}
	return won, nil
}

func (m *memJobs) SetStatus(_ domain.Context, id int64, status domain.JobStatus) error {
	if m.setStatusErr != nil {
		return m.setStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	m.jobs[id] = j
	return nil
}

func (m *memJobs) StuckInProgress(_ domain.Context, olderThan time.Time) ([]domain.Job, error) {
	return m.stuck(domain.JobInProgress, olderThan, func(j domain.Job) time.Time { return j.UpdatedAt }), nil
}

func (m *memJobs) StuckQueued(_ domain.Context, olderThan time.Time) ([]domain.Job, error) {
	return m.stuck(domain.JobQueued, olderThan, func(j domain.Job) time.Time { return j.CreatedAt }), nil
}

func (m *memJobs) stuck(status domain.JobStatus, olderThan time.Time, ts func(domain.Job) time.Time) []domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status == status && ts(j).Before(olderThan) {
			out = append(out, j)
		}
	}
	return out
}

type memResults struct {
	mu        sync.Mutex
	results   map[int64]domain.Result
	insertErr error
}

func newMemResults() *memResults { return &memResults{results: map[int64]domain.Result{}} }

func (m *memResults) Insert(_ domain.Context, jobID int64, output map[string]float64, topLabel string) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[jobID]; exists {
		return nil
	}
	m.results[jobID] = domain.Result{JobID: jobID, Output: output, TopLabel: topLabel, CreatedAt: time.Now().UTC()}
	return nil
}

func (m *memResults) GetByJobID(_ domain.Context, jobID int64) (domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[jobID]
	if !ok {
		return domain.Result{}, domain.ErrNotFound
	}
	return r, nil
}

type memQueue struct {
	mu      sync.Mutex
	queued  []int64
	images  map[string][]byte
	retries map[int64]int
	dlq     []int64

	incrErr error
}

func newMemQueue() *memQueue {
	return &memQueue{images: map[string][]byte{}, retries: map[int64]int{}}
}

func (m *memQueue) Enqueue(_ domain.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, jobID)
	return nil
}

func (m *memQueue) CollectBatch(_ domain.Context, _, _ time.Duration, maxSize int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queued)
	if n > maxSize {
		n = maxSize
	}
	batch := append([]int64(nil), m.queued[:n]...)
	m.queued = m.queued[n:]
	return batch, nil
}

func (m *memQueue) StoreImage(_ domain.Context, sha string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[sha] = data
	return nil
}

func (m *memQueue) FetchImage(_ domain.Context, sha string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.images[sha]
	if !ok {
		return nil, domain.ErrBlobMissing
	}
	return data, nil
}

func (m *memQueue) CachedJob(domain.Context, string) (int64, bool, error) { return 0, false, nil }

func (m *memQueue) SetCachedJob(domain.Context, string, int64) error { return nil }

func (m *memQueue) IncrRetry(_ domain.Context, jobID int64) (int, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[jobID]++
	return m.retries[jobID], nil
}

func (m *memQueue) ClearRetry(_ domain.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.retries, jobID)
	return nil
}

func (m *memQueue) PushDLQ(_ domain.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append([]int64{jobID}, m.dlq...)
	return nil
}

func (m *memQueue) ListDLQ(domain.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.dlq...), nil
}

func (m *memQueue) Ping(domain.Context) error { return nil }

// scriptPredictor runs canned behavior per call so tests can force
// timeouts, preprocess failures, and partial batches.
type scriptPredictor struct {
	loadErr       error
	preprocessErr error
	predictErr    error
	sleep         time.Duration
	score         float64
	label         string
}

func (p *scriptPredictor) Load(domain.Context) error { return p.loadErr }

func (p *scriptPredictor) Preprocess(data []byte) (domain.Tensor, error) {
	if p.preprocessErr != nil {
		return domain.Tensor{}, p.preprocessErr
	}
	return domain.Tensor{Data: []float32{1}, Width: 1, Height: 1}, nil
}

func (p *scriptPredictor) PredictBatch(ctx domain.Context, inputs []domain.Tensor) ([]map[string]float64, error) {
	if p.sleep > 0 {
		select {
		case <-time.After(p.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.predictErr != nil {
		return nil, p.predictErr
	}
	out := make([]map[string]float64, len(inputs))
	for i := range out {
		out[i] = map[string]float64{p.label: p.score}
	}
	return out, nil
}
