package override

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the expiry sweep on a cron schedule so PENDING
// overrides past their TTL are retired even when nobody reads them.
type Scheduler struct {
	workflow *Workflow
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates an expiry scheduler. The schedule uses cron
// syntax, e.g. "@every 1m".
func NewScheduler(workflow *Workflow, schedule string) *Scheduler {
	return &Scheduler{
		workflow: workflow,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "override.scheduler"),
	}
}

// Start begins scheduled sweeping. An empty schedule disables the
// scheduler; opportunistic expiry on read and sign still applies.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("expiry schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("override expiry scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runSweep(ctx context.Context) {
	expired, err := s.workflow.ExpireSweep(ctx)
	if err != nil {
		s.logger.Error("scheduled expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Info("scheduled expiry sweep completed", "expired_count", expired)
	} else {
		s.logger.Debug("scheduled expiry sweep completed, nothing to expire")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("override expiry scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
