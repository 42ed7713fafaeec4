package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wangyi68/zenox/internal/metrics"
)

// UTC8 is the reference zone for daily task times; the tracked games run
// their schedules on UTC+8.
var UTC8 = time.FixedZone("UTC+8", 8*60*60)

// Task is one scheduled unit of work
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// Scheduler runs tasks on fixed intervals or at fixed daily times. Tasks
// run to completion; shutdown waits for in-flight runs.
type Scheduler struct {
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler
func New() *Scheduler {
	return &Scheduler{stopChan: make(chan struct{})}
}

// Every schedules the task at a fixed interval, with an immediate first run
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.runTask(ctx, task)

		for {
			select {
			case <-ctx.Done():
				slog.Info("Task loop stopped (context cancelled)", "task", task.Name)
				return
			case <-s.stopChan:
				slog.Info("Task loop stopped", "task", task.Name)
				return
			case <-ticker.C:
				s.runTask(ctx, task)
			}
		}
	}()
}

// DailyAt schedules the task at the given hours (minute zero) in loc
func (s *Scheduler) DailyAt(ctx context.Context, hours []int, loc *time.Location, task Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			next := NextRun(time.Now(), hours, loc)
			timer := time.NewTimer(time.Until(next))

			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Info("Task loop stopped (context cancelled)", "task", task.Name)
				return
			case <-s.stopChan:
				timer.Stop()
				slog.Info("Task loop stopped", "task", task.Name)
				return
			case <-timer.C:
				s.runTask(ctx, task)
			}
		}
	}()
}

// Stop signals all task loops to stop and waits for in-flight runs
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// runTask executes one run with timing and panic isolation. A panicking
// task aborts only its own run; the scheduler and its loop keep going.
func (s *Scheduler) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Task panicked", "task", task.Name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	slog.Debug("Running task", "task", task.Name)
	task.Run(ctx)
	metrics.TaskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
}

// NextRun returns the earliest time strictly after now that falls on one of
// the given hours (minute zero) in loc.
func NextRun(now time.Time, hours []int, loc *time.Location) time.Time {
	local := now.In(loc)
	best := time.Time{}
	for _, h := range hours {
		candidate := time.Date(local.Year(), local.Month(), local.Day(), h, 0, 0, 0, loc)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}
