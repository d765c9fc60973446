package usecase

import (
	"fmt"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// StatusService provides read access to jobs and their results.
type StatusService struct {
	Jobs    domain.JobRepository
	Results domain.ResultRepository
}

// NewStatusService constructs a StatusService with the given repositories.
func NewStatusService(j domain.JobRepository, r domain.ResultRepository) StatusService {
	return StatusService{Jobs: j, Results: r}
}

// Get returns the job row for polling.
func (s StatusService) Get(ctx domain.Context, id int64) (domain.Job, error) {
	return s.Jobs.Get(ctx, id)
}

// Result returns the stored scores for a completed job. A job that exists
// but has not completed yet maps to ErrConflict so the handler can answer
// with the current status instead of a result body.
func (s StatusService) Result(ctx domain.Context, id int64) (domain.Job, domain.Result, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return domain.Job{}, domain.Result{}, err
	}
	if job.Status != domain.JobCompleted {
		return job, domain.Result{}, fmt.Errorf("job %d is %s: %w", id, job.Status, domain.ErrConflict)
	}
	res, err := s.Results.GetByJobID(ctx, id)
	if err != nil {
		return job, domain.Result{}, err
	}
	return job, res, nil
}
