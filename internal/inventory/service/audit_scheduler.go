package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rentora/rentora-backend/pkg/actor"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// AuditScheduler runs the ledger audit on a cron schedule
type AuditScheduler struct {
	ledger   *Ledger
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewAuditScheduler creates a scheduler for the given cron schedule, e.g. "@every 15m"
func NewAuditScheduler(ledger *Ledger, schedule string, log *logger.Logger) *AuditScheduler {
	return &AuditScheduler{
		ledger:   ledger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		timeout:  5 * time.Minute,
		logger:   log.WithComponent("ledger_audit"),
	}
}

// Start registers the audit job and starts the cron loop in the background
func (s *AuditScheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(actor.WithActor(ctx, actor.SystemActor("ledger-audit")))

	if _, err := s.cron.AddFunc(s.schedule, s.runAuditCycle); err != nil {
		s.cancel()
		return fmt.Errorf("invalid audit schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("ledger audit scheduler started")
	return nil
}

// Stop stops scheduling and waits for a running audit to finish
func (s *AuditScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("ledger audit scheduler stopped")
}

func (s *AuditScheduler) runAuditCycle() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	drifts, err := s.ledger.AuditAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("ledger audit failed")
		return
	}
	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("drifted", len(drifts)).
		Msg("ledger audit cycle completed")
}
