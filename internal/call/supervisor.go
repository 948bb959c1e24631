// AngelaMos | 2026
// supervisor.go

package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/whisperme/whisper-api/internal/config"
)

const supervisorLock = "call-supervisor"

type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// SweepReport counts what one sweep changed.
type SweepReport struct {
	Skipped   bool `json:"skipped"`
	Expired   int  `json:"expired"`
	TimedUp   int  `json:"timed_up"`
	Reclaimed int  `json:"reclaimed"`
	Settled   int  `json:"settled"`
	Errors    int  `json:"errors"`
}

// Supervisor recovers everything the in-process timers would have done had
// the process not restarted, plus sessions abandoned by both clients. Only
// the instance holding the lock sweeps in a given interval.
type Supervisor struct {
	manager  *Manager
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	batch    int
	logger   *slog.Logger
}

func NewSupervisor(
	manager *Manager,
	locker Locker,
	cfg config.SupervisorConfig,
	logger *slog.Logger,
) *Supervisor {
	return &Supervisor{
		manager:  manager,
		locker:   locker,
		interval: cfg.SweepInterval,
		lockTTL:  cfg.LockTTL,
		batch:    cfg.BatchSize,
		logger:   logger.With("component", "call_supervisor"),
	}
}

func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("supervisor started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervisor stopped")
			return
		case <-ticker.C:
			report := s.SweepOnce(ctx)
			if report.Expired+report.TimedUp+report.Reclaimed+report.Settled+report.Errors > 0 {
				s.logger.Info("sweep finished",
					"expired", report.Expired,
					"timed_up", report.TimedUp,
					"reclaimed", report.Reclaimed,
					"settled", report.Settled,
					"errors", report.Errors,
				)
			}
		}
	}
}

func (s *Supervisor) SweepOnce(ctx context.Context) SweepReport {
	var report SweepReport

	acquired, err := s.locker.Acquire(ctx, supervisorLock, s.lockTTL)
	if err != nil {
		s.logger.Warn("acquire supervisor lock", "error", err)
		report.Skipped = true
		return report
	}
	if !acquired {
		report.Skipped = true
		return report
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), supervisorLock); err != nil {
			s.logger.Warn("release supervisor lock", "error", err)
		}
	}()

	m := s.manager
	sessions := m.store.Sessions()
	now := m.clock.Now()

	if ids, err := sessions.ListExpired(ctx, now, s.batch); s.check(&report, "list expired", err) {
		for _, id := range ids {
			expired, err := m.ExpireSession(ctx, id)
			if s.check(&report, "expire session", err) && expired {
				report.Expired++
			}
		}
	}

	overdueBefore := now.Add(-m.settings.Duration)
	if ids, err := sessions.ListOverdue(ctx, overdueBefore, s.batch); s.check(&report, "list overdue", err) {
		for _, id := range ids {
			if _, err := m.End(ctx, id, "", ReasonTimeUp); s.check(&report, "end overdue session", err) {
				report.TimedUp++
			}
		}
	}

	staleBefore := now.Add(-m.settings.HeartbeatTTL)
	if ids, err := sessions.ListStale(ctx, staleBefore, s.batch); s.check(&report, "list stale", err) {
		for _, id := range ids {
			if _, err := m.Reclaim(ctx, id); s.check(&report, "reclaim session", err) {
				report.Reclaimed++
			}
		}
	}

	if ids, err := sessions.ListUnsettled(ctx, s.batch); s.check(&report, "list unsettled", err) {
		for _, id := range ids {
			done, err := m.Settle(ctx, id)
			if s.check(&report, "settle session", err) && done {
				report.Settled++
			}
		}
	}

	return report
}

func (s *Supervisor) check(report *SweepReport, op string, err error) bool {
	if err == nil {
		return true
	}
	report.Errors++
	s.logger.Error(op, "error", err)
	return false
}
