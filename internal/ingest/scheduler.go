package ingest

import (
	"context"
	"log/slog"
	"time"
)

// AlertChecker evaluates alert rules for every tenant that has some.
type AlertChecker interface {
	CheckAllTenants(ctx context.Context) (int, error)
}

// Scheduler runs a full sync followed by an alert check on a fixed interval.
type Scheduler struct {
	syncer   *Syncer
	alerts   AlertChecker
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(syncer *Syncer, alerts AlertChecker, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{syncer: syncer, alerts: alerts, interval: interval, log: log}
}

// Run blocks until ctx is done. A zero interval disables the schedule.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one cycle. Errors are logged, never returned.
func (s *Scheduler) Tick(ctx context.Context) {
	sum, err := s.syncer.SyncAll(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "scheduled sync", slog.String("err", err.Error()))
	}
	if s.alerts == nil || ctx.Err() != nil {
		return
	}
	n, err := s.alerts.CheckAllTenants(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "scheduled alert check", slog.String("err", err.Error()))
	}
	s.log.InfoContext(ctx, "scheduled cycle done",
		slog.Int("synced", sum.Total.Success),
		slog.Int("failed", sum.Total.Failed),
		slog.Int("alerts_created", n))
}
