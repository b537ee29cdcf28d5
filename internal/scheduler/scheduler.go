// Package scheduler drives evolution cycles on a timer using robfig/cron.
// The coordinator's own guard is the real concurrency control; the
// scheduler just skips a tick when the previous cycle still runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sprout/internal/evolution"
	"sprout/internal/logging"
)

// CycleRunner is the slice of the coordinator the scheduler needs.
type CycleRunner interface {
	RunCycle(ctx context.Context) (evolution.CycleResult, error)
}

// Config holds the trigger schedule.
type Config struct {
	Enabled bool
	// Spec is a cron expression (5-field or @every shorthand). When empty,
	// Interval is used instead.
	Spec     string
	Interval time.Duration
}

// Scheduler owns the cron instance and the single cycle trigger.
type Scheduler struct {
	cron     *cron.Cron
	runner   CycleRunner
	config   Config
	logger   logging.Logger
	mu       sync.Mutex
	entryID  cron.EntryID
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a scheduler around the given cycle runner.
func New(cfg Config, runner CycleRunner, logger logging.Logger) *Scheduler {
	logger = logging.OrNop(logger)

	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		runner:  runner,
		config:  cfg,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Start registers the cycle trigger and starts the cron loop. The scheduler
// stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("scheduler disabled by config")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	spec := s.config.Spec
	if spec == "" {
		if s.config.Interval <= 0 {
			return fmt.Errorf("scheduler needs a cron spec or a positive interval")
		}
		spec = fmt.Sprintf("@every %s", s.config.Interval)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid cycle schedule %q: %w", spec, err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.logger.Info("scheduler started (schedule=%s)", spec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// runOnce executes a single cycle for one tick. A cycle already in flight
// is not an error; the tick is simply skipped.
func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, evolution.ErrCycleInProgress):
		s.logger.Debug("tick skipped: cycle already in progress")
	case err != nil:
		s.logger.Error("scheduled cycle failed: %v", err)
	case result.Exhausted:
		s.logger.Debug("cycle %d: nothing eligible this tick", result.Cycle)
	default:
		s.logger.Debug("cycle %d finished in %s", result.Cycle, result.Duration)
	}
}

// Stop drains in-flight jobs and shuts the cron loop down. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("scheduler stopping...")
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
		s.logger.Info("scheduler stopped")
	})
}

// Done is closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}
