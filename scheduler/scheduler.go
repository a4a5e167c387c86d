// Package scheduler runs each source's scan loop on its own interval. One
// goroutine per task keeps runs of the same task strictly serial; a run
// that outlasts its interval simply collapses the missed ticks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Task is one periodically executed job.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero means the run only stops on
	// shutdown.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler drives a set of tasks until its context is cancelled.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []Task
	started bool

	wg sync.WaitGroup
}

// New builds an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Add registers a task. Adding after Start is a programming error.
func (s *Scheduler) Add(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("task needs a name")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.Name)
	}
	if task.Run == nil {
		return fmt.Errorf("task %s: missing run function", task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Start launches every task loop. Each task runs once immediately, then on
// its interval, until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	tasks := s.tasks
	s.mu.Unlock()

	for _, task := range tasks {
		s.wg.Add(1)
		go func(task Task) {
			defer s.wg.Done()
			s.loop(ctx, task)
		}(task)
	}
}

// Wait blocks until every task loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	logger := s.logger.With(slog.String("task", task.Name))
	logger.Info("task loop started", slog.Duration("interval", task.Interval))

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, task, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("task loop stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, task, logger)
		}
	}
}

// runOnce executes the task with its timeout and a panic guard. A panicking
// run is logged and counted as finished; the loop keeps its schedule.
func (s *Scheduler) runOnce(ctx context.Context, task Task, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}

	runCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	start := time.Now()
	if err := task.Run(runCtx); err != nil {
		logger.Error("task run failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
		return
	}
	logger.Debug("task run complete", slog.Duration("elapsed", time.Since(start)))
}
