// Package supervisor runs event handlers as independent tasks. A task that returns
// an error or panics is logged and the rest keep running; the number of tasks in
// flight is bounded so a join burst cannot exhaust the process.
package supervisor

import (
	"context"
	"fmt"
	"invitetrack/lib/sl"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultMaxTasks = 64

type Task func(ctx context.Context) error

type Supervisor struct {
	log *slog.Logger
	sem *semaphore.Weighted

	// mu orders wg.Add against Stop: no task is added once closed is set
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	failed atomic.Int64
}

func New(maxTasks int, log *slog.Logger) *Supervisor {
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	return &Supervisor{
		log: log.With(sl.Module("supervisor")),
		sem: semaphore.NewWeighted(int64(maxTasks)),
	}
}

// Go starts task in its own goroutine once a slot is free. The task context is not
// cancelled by shutdown; a started task always runs to completion.
// Returns false when the supervisor is already stopped.
func (s *Supervisor) Go(ctx context.Context, name string, task Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.With(slog.String("task", name)).Warn("task rejected after shutdown")
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		taskCtx := context.WithoutCancel(ctx)
		// Acquire with a background context never fails
		_ = s.sem.Acquire(context.Background(), 1)
		defer s.sem.Release(1)
		s.run(taskCtx, name, task)
	}()
	return true
}

func (s *Supervisor) run(ctx context.Context, name string, task Task) {
	log := s.log.With(slog.String("task", name))
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			log.With(
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			).Error("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		s.failed.Add(1)
		log.Error("task failed", sl.Err(err))
	}
}

// Failed is the number of tasks that returned an error or panicked.
func (s *Supervisor) Failed() int64 {
	return s.failed.Load()
}

// Stop rejects new tasks and waits for running ones, or until ctx is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}
