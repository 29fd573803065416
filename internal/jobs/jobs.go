// Package jobs runs the daemon's background work: analyzer reads for
// the shell, sync cycles and retention sweeps. A semaphore caps
// concurrency at two workers; schedules are declared on a gocron
// scheduler that submits into the pool, so a slow sync can never starve
// the process of goroutines or oversubscribe storage connections.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// MaxWorkers is the pool's concurrency cap.
const MaxWorkers = 2

// ErrPoolBusy is returned by TrySubmit when both workers are occupied.
var ErrPoolBusy = errors.New("jobs: worker pool busy")

// ErrStopped is returned when submitting to a stopped pool.
var ErrStopped = errors.New("jobs: pool stopped")

// Pool is the bounded worker pool.
type Pool struct {
	sem chan struct{}
	log *slog.Logger
	wg  sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPool creates the two-worker pool.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem: make(chan struct{}, MaxWorkers),
		log: logger.With("component", "jobs"),
	}
}

// Submit runs fn on a pool worker, blocking until a slot frees up or
// ctx is done.
func (p *Pool) Submit(ctx context.Context, name string, fn func(context.Context)) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.run(ctx, name, fn)
	return nil
}

// TrySubmit runs fn if a worker is free, or fails fast with ErrPoolBusy.
// Oversubscription is rejected rather than queued.
func (p *Pool) TrySubmit(ctx context.Context, name string, fn func(context.Context)) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	default:
		return ErrPoolBusy
	}
	p.run(ctx, name, fn)
	return nil
}

func (p *Pool) run(ctx context.Context, name string, fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("job panicked", "job", name, "panic", fmt.Sprint(r))
			}
		}()

		start := time.Now()
		fn(ctx)
		p.log.Debug("job finished", "job", name, "duration", time.Since(start))
	}()
}

// Stop rejects further submissions and waits for running jobs.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Scheduler declares recurring jobs that execute on the pool.
type Scheduler struct {
	sched gocron.Scheduler
	pool  *Pool
	log   *slog.Logger
}

// NewScheduler builds a scheduler feeding pool.
func NewScheduler(pool *Pool, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("jobs: create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, pool: pool, log: logger.With("component", "jobs")}, nil
}

// Every schedules fn at a fixed interval. The job is skipped (with a
// log line) when both workers are busy at fire time.
func (s *Scheduler) Every(interval time.Duration, name string, fn func(context.Context)) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.dispatch(name, fn) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("jobs: schedule %s: %w", name, err)
	}
	return nil
}

// DailyAt schedules fn once a day at the given local hour.
func (s *Scheduler) DailyAt(hour int, name string, fn func(context.Context)) error {
	_, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), 0, 0))),
		gocron.NewTask(func() { s.dispatch(name, fn) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("jobs: schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) dispatch(name string, fn func(context.Context)) {
	if err := s.pool.TrySubmit(context.Background(), name, fn); err != nil {
		s.log.Warn("skipping scheduled job", "job", name, "reason", err)
	}
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop halts the schedules; running jobs drain through Pool.Stop.
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}
