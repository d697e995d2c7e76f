package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of background work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs registered tasks once or on a fixed interval.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	logger  *slog.Logger
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:  make([]Task, 0),
		logger: slog.Default().With("component", "task_scheduler"),
	}
}

func (s *Scheduler) RegisterTask(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	s.logger.Info("task registered", "task", task.Name())
}

// RunOnce runs every registered task in order. A failing task does not stop
// the ones after it; all failures are returned joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	var errs []error
	for _, task := range tasks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		start := time.Now()
		if err := task.Run(ctx); err != nil {
			s.logger.Error("task failed",
				"task", task.Name(),
				"error", err,
				"duration", time.Since(start))
			errs = append(errs, err)
			continue
		}
		s.logger.Info("task completed",
			"task", task.Name(),
			"duration", time.Since(start))
	}
	return errors.Join(errs...)
}

// StartPeriodic runs the tasks every interval until Stop. The first run
// happens one interval after start.
func (s *Scheduler) StartPeriodic(interval time.Duration) {
	s.mu.Lock()
	if s.running || interval <= 0 {
		s.mu.Unlock()
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Info("scheduler started", "interval", interval)
}

// Stop cancels the periodic loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
