package presence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/models"
)

// MembershipLister enumerates live connections in a broadcast group. A group
// that does not exist yields an empty list.
type MembershipLister interface {
	ListGroupMembers(ctx context.Context, group string) ([]broadcast.GroupMember, error)
}

// RowLister enumerates the persisted presence rows in reconciliation scope.
type RowLister interface {
	ListAll(ctx context.Context) ([]Row, error)
}

// Report is the outcome of one reconciliation pass. Corrections are
// independent; one user's failure never aborts the pass.
type Report struct {
	CorrectedCount int      `json:"corrected_count"`
	Warnings       []string `json:"warnings,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// Reconciler levels drift between the broadcast group's live membership and
// the durable presence store. It re-derives truth from two enumerable sets
// instead of trusting every transition event, so missed disconnects heal on
// the next pass. Safe to run repeatedly.
type Reconciler struct {
	members MembershipLister
	rows    RowLister
	store   Store
	logger  *zap.Logger
}

// NewReconciler creates a presence reconciler.
func NewReconciler(members MembershipLister, rows RowLister, store Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{members: members, rows: rows, store: store, logger: logger}
}

// Run executes one reconciliation pass and returns its report. Only the two
// enumeration calls can fail the pass; per-user corrections are collected as
// errors and the pass continues.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	members, err := r.members.ListGroupMembers(ctx, broadcast.PresenceGroup)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	connected := make(map[string]bool, len(members))
	for _, m := range members {
		connected[m.UserID.String()] = true
	}

	rows, err := r.rows.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presence rows: %w", err)
	}

	report := &Report{}
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		seen[row.UserID.String()] = true
		live := connected[row.UserID.String()]

		switch {
		case live && row.Status == models.PresenceOffline:
			if err := r.store.Upsert(ctx, row.UserID, models.PresenceOnline, true); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: mark online: %v", row.Email, err))
				continue
			}
			r.logger.Info("presence corrected", zap.String("email", row.Email), zap.String("reason", "connected but db stale"))
			report.CorrectedCount++

		case !live && row.Status == models.PresenceOnline:
			if err := r.store.Upsert(ctx, row.UserID, models.PresenceOffline, false); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: mark offline: %v", row.Email, err))
				continue
			}
			r.logger.Info("presence corrected", zap.String("email", row.Email), zap.String("reason", "db stale, no live connection"))
			report.CorrectedCount++
		}
	}

	// Connected users without a presence row are outside write scope; surface
	// them so operators notice missing provisioning.
	for _, m := range members {
		if !seen[m.UserID.String()] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: connected but no presence row", m.Email))
		}
	}

	r.logger.Info("reconciliation pass complete",
		zap.Int("corrected", report.CorrectedCount),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}
