package httpserver_test

import (
	"fmt"
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

type fakeModels struct {
	latest    domain.ModelVersion
	latestErr error
}

func (f *fakeModels) Latest(domain.Context) (domain.ModelVersion, error) {
	return f.latest, f.latestErr
}

func (f *fakeModels) Seed(_ domain.Context, name, ref string) (domain.ModelVersion, error) {
	f.latest = domain.ModelVersion{ID: f.latest.ID + 1, Name: name, WeightsRef: ref}
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
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
		j.UpdatedAt = j.CreatedAt
	}
	f.jobs[j.ID] = j
	return j
}

func (f *fakeJobs) Create(_ domain.Context, modelID int64, sha string) (domain.Job, error) {
	return f.add(domain.Job{ModelID: modelID, Status: domain.JobQueued, InputSHA256: sha}), nil
}

func (f *fakeJobs) Get(_ domain.Context, id int64) (domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("job %d: %w", id, domain.ErrNotFound)
	}
	return j, nil
}

func (f *fakeJobs) FindActiveBySHA(_ domain.Context, sha string) (domain.Job, error) {
	for _, j := range f.jobs {
		if j.InputSHA256 == sha && j.Status != domain.JobFailed {
			return j, nil
		}
	}
	return domain.Job{}, domain.ErrNotFound
}

func (f *fakeJobs) LockAndTransition(_ domain.Context, ids []int64, from, to domain.JobStatus) ([]domain.Job, error) {
	var won []domain.Job
	for _, id := range ids {
		j, ok := f.jobs[id]
		if !ok || j.Status != from {
			continue
		}
		j.Status = to
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
	f.jobs[id] = j
	return nil
}

func (f *fakeJobs) StuckInProgress(domain.Context, time.Time) ([]domain.Job, error) { return nil, nil }

func (f *fakeJobs) StuckQueued(domain.Context, time.Time) ([]domain.Job, error) { return nil, nil }

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

type fakeStats struct {
	stats domain.WindowStats
}

func (f *fakeStats) Window(domain.Context, time.Time) (domain.WindowStats, error) {
	return f.stats, nil
}
