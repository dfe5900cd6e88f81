package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// TaskFunc is a periodic maintenance task.
type TaskFunc func(ctx context.Context) error

// Scheduler runs maintenance tasks on fixed intervals. A task never overlaps
// with its own previous run.
type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler whose first runs wait for their interval.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	s.WaitForScheduleAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, logger: logger, ctx: ctx, cancel: cancel}
}

// Register schedules fn every interval under a name used in logs.
func (s *Scheduler) Register(name string, every time.Duration, fn TaskFunc) error {
	if every <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	_, err := s.scheduler.Every(every).Tag(name).Do(func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled task finished", zap.String("task", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start begins running all scheduled tasks without blocking.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop cancels in-flight tasks and terminates the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
