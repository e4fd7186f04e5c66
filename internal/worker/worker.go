package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/commands"
	"github.com/fieldwatch/backend/internal/presence"
	"github.com/fieldwatch/backend/internal/recordings"
)

// Maintenance runs the scheduled passes that keep the system self-healing:
// presence reconciliation, orphaned recording-session cleanup, and pending
// command pruning. Each tick runs to completion as one unit of work; a failed
// pass is retried naturally on the next tick.
type Maintenance struct {
	reconciler    *presence.Reconciler
	orchestrator  *recordings.Orchestrator
	sessions      *recordings.Repository
	pending       *commands.Repository
	interval      time.Duration
	maxSessionAge time.Duration
	pendingTTL    time.Duration
	logger        *zap.Logger
}

// NewMaintenance creates the maintenance worker.
func NewMaintenance(
	reconciler *presence.Reconciler,
	orchestrator *recordings.Orchestrator,
	sessions *recordings.Repository,
	pending *commands.Repository,
	interval, maxSessionAge, pendingTTL time.Duration,
	logger *zap.Logger,
) *Maintenance {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Maintenance{
		reconciler:    reconciler,
		orchestrator:  orchestrator,
		sessions:      sessions,
		pending:       pending,
		interval:      interval,
		maxSessionAge: maxSessionAge,
		pendingTTL:    pendingTTL,
		logger:        logger,
	}
}

// Run executes passes on the configured interval until ctx is done.
func (m *Maintenance) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("maintenance worker stopping")
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce executes one maintenance pass. Each sub-pass is independent; one
// failing never skips the others.
func (m *Maintenance) RunOnce(ctx context.Context) {
	// Reconciliation compares against hub-local membership, so it only runs
	// in processes that hold live connections.
	if m.reconciler != nil {
		if report, err := m.reconciler.Run(ctx); err != nil {
			m.logger.Error("presence reconciliation failed", zap.Error(err))
		} else if report.CorrectedCount > 0 || len(report.Errors) > 0 {
			m.logger.Info("presence reconciled",
				zap.Int("corrected", report.CorrectedCount),
				zap.Int("errors", len(report.Errors)))
		}
	}

	m.sweepOrphanedSessions(ctx)

	if m.pending != nil {
		cutoff := time.Now().Add(-m.pendingTTL)
		if n, err := m.pending.DeleteStale(ctx, cutoff); err != nil {
			m.logger.Error("prune pending commands failed", zap.Error(err))
		} else if n > 0 {
			m.logger.Debug("pruned stale pending commands", zap.Int64("count", n))
		}
	}
}

// sweepOrphanedSessions stops Active sessions older than the configured max
// age. A crash that strands an egress converges to Completed/Failed here.
func (m *Maintenance) sweepOrphanedSessions(ctx context.Context) {
	if m.sessions == nil || m.orchestrator == nil || m.maxSessionAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.maxSessionAge)
	orphans, err := m.sessions.ListActiveOlderThan(ctx, cutoff)
	if err != nil {
		m.logger.Error("list orphaned sessions failed", zap.Error(err))
		return
	}
	if len(orphans) == 0 {
		return
	}

	summary := m.orchestrator.StopSessions(ctx, orphans, 15*time.Minute)
	m.logger.Warn("orphaned recording sessions swept",
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed))
}
