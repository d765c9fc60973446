package usecase_test

import (
	"fmt"
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// In-memory fakes for the domain ports. They model just enough behavior for
// the services under test: fingerprint lookups, status transitions, queue
// pushes, and the dedup cache.

type fakeModels struct {
	latest    domain.ModelVersion
	latestErr error
}

func (f *fakeModels) Latest(domain.Context) (domain.ModelVersion, error) {
	return f.latest, f.latestErr
}

func (f *fakeModels) Seed(_ domain.Context, name, ref string) (domain.ModelVersion, error) {
	f.latest = domain.ModelVersion{ID: f.latest.ID + 1, Name: name, WeightsRef: ref, CreatedAt: time.Now()}
	return f.latest, nil
}

type fakeJobs struct {
	nextID int64
	jobs   map[int64]domain.Job
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[int64]domain.Job{}} }

func (f *fakeJobs) add(j domain.Job) domain.Job {
	f.nextID++
	j.ID = f.nextID
	f.jobs[j.ID] = j
	return j
}

func (f *fakeJobs) Create(_ domain.Context, modelID int64, sha string) (domain.Job, error) {
	now := time.Now().UTC()
	return f.add(domain.Job{ModelID: modelID, Status: domain.JobQueued, InputSHA256: sha, CreatedAt: now, UpdatedAt: now}), nil
}

func (f *fakeJobs) Get(_ domain.Context, id int64) (domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %d: %w", id, domain.ErrNotFound)
	}
	return j, nil
}

func (f *fakeJobs) FindActiveBySHA(_ domain.Context, sha string) (domain.Job, error) {
	var best domain.Job
	found := false
	for _, j := range f.jobs {
		if j.InputSHA256 != sha || j.Status == domain.JobFailed {
			continue
		}
		if !found || j.ID > best.ID {
			best = j
			found = true
		}
	}
	if !found {
		return domain.Job{}, domain.ErrNotFound
	}
	return best, nil
}

func (f *fakeJobs) LockAndTransition(_ domain.Context, ids []int64, from, to domain.JobStatus) ([]domain.Job, error) {
	var won []domain.Job
	for _, id := range ids {
		j, ok := f.jobs[id]
		if !ok || j.Status != from {
			continue
		}
		j.Status = to
		j.UpdatedAt = time.Now().UTC()
		f.jobs[id] = j
		won = append(won, j)
	}
	return won, nil
}

func (f *fakeJobs) SetStatus(_ domain.Context, id int64, status domain.JobStatus) error {
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	f.jobs[id] = j
	return nil
}

func (f *fakeJobs) StuckInProgress(_ domain.Context, olderThan time.Time) ([]domain.Job, error) {
	return f.stuck(domain.JobInProgress, olderThan, func(j domain.Job) time.Time { return j.UpdatedAt }), nil
}

func (f *fakeJobs) StuckQueued(_ domain.Context, olderThan time.Time) ([]domain.Job, error) {
	return f.stuck(domain.JobQueued, olderThan, func(j domain.Job) time.Time { return j.CreatedAt }), nil
}

func (f *fakeJobs) stuck(status domain.JobStatus, olderThan time.Time, ts func(domain.Job) time.Time) []domain.Job {
	var out []domain.Job
	for _, j := range f.jobs {
		if j.Status == status && ts(j).Before(olderThan) {
			out = append(out, j)
		}
	}
	return out
}

type fakeResults struct {
	results map[int64]domain.Result
}

func newFakeResults() *fakeResults { return &fakeResults{results: map[int64]domain.Result{}} }

func (f *fakeResults) Insert(_ domain.Context, jobID int64, output map[string]float64, topLabel string) error {
	if _, exists := f.results[jobID]; exists {
		return nil
	}
	f.results[jobID] = domain.Result{JobID: jobID, Output: output, TopLabel: topLabel, CreatedAt: time.Now().UTC()}
	return nil
}

func (f *fakeResults) GetByJobID(_ domain.Context, jobID int64) (domain.Result, error) {
	r, ok := f.results[jobID]
	if !ok {
		return domain.Result{}, domain.ErrNotFound
	}
	return r, nil
}

type fakeQueue struct {
	queued  []int64
	images  map[string][]byte
	cache   map[string]int64
	retries map[int64]int
	dlq     []int64
	pingErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{images: map[string][]byte{}, cache: map[string]int64{}, retries: map[int64]int{}}
}

func (f *fakeQueue) Enqueue(_ domain.Context, jobID int64) error {
	f.queued = append(f.queued, jobID)
	return nil
}

func (f *fakeQueue) CollectBatch(_ domain.Context, _, _ time.Duration, maxSize int) ([]int64, error) {
	n := len(f.queued)
	if n > maxSize {
		n = maxSize
	}
	batch := f.queued[:n]
	f.queued = f.queued[n:]
	return batch, nil
}

func (f *fakeQueue) StoreImage(_ domain.Context, sha string, data []byte) error {
	f.images[sha] = data
	return nil
}

func (f *fakeQueue) FetchImage(_ domain.Context, sha string) ([]byte, error) {
	data, ok := f.images[sha]
	if !ok {
		return nil, domain.ErrBlobMissing
	}
	return data, nil
}

func (f *fakeQueue) CachedJob(_ domain.Context, sha string) (int64, bool, error) {
	id, ok := f.cache[sha]
	return id, ok, nil
}

func (f *fakeQueue) SetCachedJob(_ domain.Context, sha string, jobID int64) error {
	f.cache[sha] = jobID
	return nil
}

func (f *fakeQueue) IncrRetry(_ domain.Context, jobID int64) (int, error) {
	f.retries[jobID]++
	return f.retries[jobID], nil
}

func (f *fakeQueue) ClearRetry(_ domain.Context, jobID int64) error {
	delete(f.retries, jobID)
	return nil
}

func (f *fakeQueue) PushDLQ(_ domain.Context, jobID int64) error {
	f.dlq = append([]int64{jobID}, f.dlq...)
	return nil
}

func (f *fakeQueue) ListDLQ(domain.Context) ([]int64, error) { return f.dlq, nil }

func (f *fakeQueue) Ping(domain.Context) error { return f.pingErr }

type fakeStats struct {
	stats domain.WindowStats
	err   error
}

func (f *fakeStats) Window(domain.Context, time.Time) (domain.WindowStats, error) {
	return f.stats, f.err
}
