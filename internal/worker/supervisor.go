package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/observability"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// monitorInterval is how often the supervisor checks worker liveness.
const monitorInterval = 3 * time.Second

// Supervisor owns a fixed pool of worker loops. Dead workers are replaced
// on the next liveness tick, and a recovery sweep re-dispatches stuck jobs
// on a slower cadence.
type Supervisor struct {
	Jobs    domain.JobRepository
	Results domain.ResultRepository
	Queue   domain.QueueStore

	// NewPredictor builds one predictor per worker so a crashed worker's
	// engine state is never shared with its replacement.
	NewPredictor func() domain.Predictor

	WorkerCount   int
	PerJobTimeout time.Duration
	BatchWindow   time.Duration
	BatchMaxSize  int
	MaxRetries    int
	Engine        string

	RecoveryInterval     time.Duration
	StuckInProgressAfter time.Duration
	StuckQueuedAfter     time.Duration
	DrainTimeout         time.Duration

	mu    sync.Mutex
	alive map[int]bool
	wg    sync.WaitGroup
}

// Run starts the pool and blocks until ctx is cancelled and every worker
// has drained or the drain timeout expires.
func (s *Supervisor) Run(ctx domain.Context) error {
	if s.WorkerCount <= 0 {
		return fmt.Errorf("op=supervisor.run: worker count must be positive")
	}
	s.alive = make(map[int]bool, s.WorkerCount)

	for i := 0; i < s.WorkerCount; i++ {
		s.spawn(ctx, i)
	}

	recovery := &Recovery{
		Jobs:                 s.Jobs,
		Queue:                s.Queue,
		Policy:               s.newPolicy(),
		StuckInProgressAfter: s.StuckInProgressAfter,
		StuckQueuedAfter:     s.StuckQueuedAfter,
	}

	monitor := time.NewTicker(monitorInterval)
	defer monitor.Stop()
	recoveryTick := time.NewTicker(s.RecoveryInterval)
	defer recoveryTick.Stop()

	// One sweep at startup so jobs orphaned by a previous deployment are
	// not held hostage until the first interval elapses.
	recovery.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case <-monitor.C:
			s.restartDead(ctx)
		case <-recoveryTick.C:
			recovery.Sweep(ctx)
		}
	}
}

func (s *Supervisor) newPolicy() *RetryPolicy {
	return &RetryPolicy{Jobs: s.Jobs, Queue: s.Queue, MaxRetries: s.MaxRetries}
}

// spawn launches worker id with a fresh predictor and marks it alive. The
// goroutine clears its liveness flag on any exit, panic included, so the
// monitor can tell a crash from a healthy blocked worker.
func (s *Supervisor) spawn(ctx domain.Context, id int) {
	exec := &Executor{
		Jobs:          s.Jobs,
		Results:       s.Results,
		Queue:         s.Queue,
		Predictor:     s.NewPredictor(),
		Policy:        s.newPolicy(),
		PerJobTimeout: s.PerJobTimeout,
		Engine:        s.Engine,
	}
	loop := &Loop{
		ID:           id,
		Queue:        s.Queue,
		Executor:     exec,
		BatchWindow:  s.BatchWindow,
		BatchMaxSize: s.BatchMaxSize,
	}

	s.mu.Lock()
	s.alive[id] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("worker panicked", slog.Int("worker_id", id), slog.Any("recover", rec))
			}
			s.mu.Lock()
			s.alive[id] = false
			s.mu.Unlock()
		}()
		if err := loop.Run(ctx); err != nil {
			slog.Error("worker exited with error", slog.Int("worker_id", id), slog.Any("error", err))
		}
	}()
}

// restartDead replaces workers whose goroutine has exited while the pool is
// still supposed to be running.
func (s *Supervisor) restartDead(ctx domain.Context) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	var dead []int
	for id, ok := range s.alive {
		if !ok {
			dead = append(dead, id)
		}
	}
	s.mu.Unlock()
	for _, id := range dead {
		slog.Warn("restarting dead worker", slog.Int("worker_id", id))
		observability.WorkerRestartsTotal.Inc()
		s.spawn(ctx, id)
	}
}

// drain waits for in-flight batches to finish, bounded by DrainTimeout.
// Jobs still IN_PROGRESS past the bound are left for stuck-job recovery.
func (s *Supervisor) drain() error {
	slog.Info("supervisor draining", slog.Duration("timeout", s.DrainTimeout))
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("all workers drained")
		return nil
	case <-time.After(s.DrainTimeout):
		slog.Warn("drain timeout exceeded, abandoning in-flight work")
		return context.DeadlineExceeded
	}
}
