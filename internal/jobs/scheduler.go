// Package jobs runs the periodic maintenance tasks: the daily trust
// recovery sweep and the hourly stale-session reaper.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Recoverer runs one trust recovery sweep.
type Recoverer interface {
	ProcessRecovery(ctx context.Context) (int, error)
}

// Reaper closes sessions that outlived their in-session markers.
type Reaper interface {
	ReapStale(ctx context.Context) (int, error)
}

// Config holds the cron schedules (standard 5-field syntax).
type Config struct {
	RecoverySchedule string
	CleanupSchedule  string
	// Timeout bounds a single run.
	Timeout time.Duration
}

// Scheduler wraps a cron runner.
type Scheduler struct {
	recovery Recoverer
	reaper   Reaper
	config   Config
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewScheduler creates a scheduler. Call Start to begin running jobs.
func NewScheduler(recovery Recoverer, reaper Reaper, config Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	return &Scheduler{
		recovery: recovery,
		reaper:   reaper,
		config:   config,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers both jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.RecoverySchedule, func() { s.RunRecovery() }); err != nil {
		return fmt.Errorf("failed to schedule trust recovery: %w", err)
	}
	if _, err := s.cron.AddFunc(s.config.CleanupSchedule, func() { s.RunCleanup() }); err != nil {
		return fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	s.cron.Start()
	s.logger.Info("maintenance jobs scheduled",
		zap.String("recovery", s.config.RecoverySchedule),
		zap.String("cleanup", s.config.CleanupSchedule),
	)
	return nil
}

// Stop stops the cron runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("maintenance jobs stopped")
	}
}

// RunRecovery performs a single trust recovery sweep.
func (s *Scheduler) RunRecovery() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	n, err := s.recovery.ProcessRecovery(ctx)
	if err != nil {
		s.logger.Error("trust recovery job failed", zap.Error(err))
	}
	return n
}

// RunCleanup performs a single stale-session sweep.
func (s *Scheduler) RunCleanup() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	n, err := s.reaper.ReapStale(ctx)
	if err != nil {
		s.logger.Error("session cleanup job failed", zap.Error(err))
	}
	return n
}
