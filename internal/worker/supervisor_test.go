package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
	"github.com/xxjiinn/medical-inference-platform/internal/worker"
)

func newSupervisor(jobs *memJobs, results *memResults, queue *memQueue, pred func() domain.Predictor) *worker.Supervisor {
	return &worker.Supervisor{
		Jobs:         jobs,
		Results:      results,
		Queue:        queue,
		NewPredictor: pred,

		WorkerCount:   2,
		PerJobTimeout: time.Second,
		BatchWindow:   5 * time.Millisecond,
		BatchMaxSize:  8,
		MaxRetries:    3,
		Engine:        "stub",

		RecoveryInterval:     time.Hour,
		StuckInProgressAfter: 10 * time.Minute,
		StuckQueuedAfter:     5 * time.Minute,
		DrainTimeout:         time.Second,
	}
}

func TestSupervisor_ProcessesQueuedJobs(t *testing.T) {
	jobs := newMemJobs(queuedJob(1, "sha1"), queuedJob(2, "sha2"))
	results := newMemResults()
	queue := newMemQueue()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.StoreImage(ctx, "sha1", []byte("a")))
	require.NoError(t, queue.StoreImage(ctx, "sha2", []byte("b")))
	require.NoError(t, queue.Enqueue(ctx, 1))
	require.NoError(t, queue.Enqueue(ctx, 2))

	sup := newSupervisor(jobs, results, queue, func() domain.Predictor {
		return &scriptPredictor{score: 0.8, label: "Pneumonia"}
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return jobs.get(1).Status == domain.JobCompleted && jobs.get(2).Status == domain.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not drain")
	}
}

func TestSupervisor_StartupSweepRecoversStuckJobs(t *testing.T) {
	stale := queuedJob(1, "sha1")
	stale.Status = domain.JobInProgress
	stale.UpdatedAt = time.Now().UTC().Add(-15 * time.Minute)

	jobs := newMemJobs(stale)
	queue := newMemQueue()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.StoreImage(ctx, "sha1", []byte("a")))

	sup := newSupervisor(jobs, newMemResults(), queue, func() domain.Predictor {
		return &scriptPredictor{score: 0.8, label: "Edema"}
	})

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	// The startup sweep re-enqueues the stale job and a worker finishes it.
	require.Eventually(t, func() bool {
		return jobs.get(1).Status == domain.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestSupervisor_RejectsZeroWorkers(t *testing.T) {
	sup := newSupervisor(newMemJobs(), newMemResults(), newMemQueue(), func() domain.Predictor {
		return &scriptPredictor{}
	})
	sup.WorkerCount = 0
	assert.Error(t, sup.Run(context.Background()))
}
