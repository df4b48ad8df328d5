package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs market pipelines on their configured cron schedules for
// daemon deployments.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  slog.Default().With("component", "scheduler"),
	}
}

// Register adds a pipeline under a cron spec. Each triggered run gets the
// daemon's context; overlapping triggers for the same market are skipped
// by the run's own manifest idempotency rather than queued.
func (s *Scheduler) Register(ctx context.Context, spec string, p *MarketPipeline) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Info("scheduled run starting", "pipeline", p.Name())
		if err := p.Run(ctx); err != nil {
			s.log.Error("scheduled run failed", "pipeline", p.Name(), "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("registering %s on %q: %w", p.Name(), spec, err)
	}
	return nil
}

// Start begins schedule evaluation.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts schedule evaluation and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}
