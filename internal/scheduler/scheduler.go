package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is a unit of periodic work such as polling tracks for a set of aircraft
type Task interface {
	Run(ctx context.Context) error
	Interval() time.Duration
	Name() string
}

// Scheduler runs each task once at Start and then every Interval.
// A run gets a deadline of one interval, so runs of the same task never overlap.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  []Task
	wg     sync.WaitGroup
}

func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddTask registers a task; call before Start
func (s *Scheduler) AddTask(task Task) {
	s.tasks = append(s.tasks, task)
}

func (s *Scheduler) Len() int {
	return len(s.tasks)
}

func (s *Scheduler) Start() {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(task)
	}
	slog.Info("Task scheduler started", "task_count", len(s.tasks))
}

// Stop cancels in-flight runs and waits for every loop to exit
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Task scheduler stopped")
}

func (s *Scheduler) loop(task Task) {
	defer s.wg.Done()

	interval := task.Interval()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
			elapsed := s.runOnce(task, interval)
			// Keep the cadence anchored to run start; a run is bounded by interval
			next := interval - elapsed
			if next < 0 {
				next = 0
			}
			timer.Reset(next)
		}
	}
}

func (s *Scheduler) runOnce(task Task, interval time.Duration) time.Duration {
	ctx, cancel := context.WithTimeout(s.ctx, interval)
	defer cancel()

	start := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(start)

	switch {
	case s.ctx.Err() != nil:
		// Shutting down; the task was cut short on purpose
	case err != nil:
		slog.Error("Task run failed",
			"task", task.Name(),
			"duration", elapsed,
			"deadline_exceeded", ctx.Err() != nil,
			"error", err,
		)
	default:
		slog.Debug("Task run finished", "task", task.Name(), "duration", elapsed)
	}

	return elapsed
}
