package presence

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/models"
	"github.com/fieldwatch/backend/pkg/response"
)

// UserLister enumerates the active users shown on the dashboard.
type UserLister interface {
	ListActive(ctx context.Context) ([]models.User, error)
}

// Entry is one GET /presence item: the durable presence joined with its user,
// plus derived staleness. Active users without a presence row appear offline
// with no last-seen time and are reported stale.
type Entry struct {
	UserID     uuid.UUID             `json:"user_id"`
	Email      string                `json:"email"`
	FullName   string                `json:"full_name"`
	Status     models.PresenceStatus `json:"status"`
	LastSeenAt *time.Time            `json:"last_seen_at"`
	Stale      bool                  `json:"stale"`
}

// Handler handles presence HTTP endpoints.
type Handler struct {
	rows       RowLister
	users      UserLister
	reconciler *Reconciler
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewHandler creates a presence handler.
func NewHandler(rows RowLister, users UserLister, reconciler *Reconciler, staleAfter time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Handler{rows: rows, users: users, reconciler: reconciler, staleAfter: staleAfter, logger: logger}
}

// List handles GET /presence. Returns every active user with their persisted
// presence and derived staleness.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := h.users.ListActive(ctx)
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		response.Internal(c, "failed to list presence")
		return
	}
	rows, err := h.rows.ListAll(ctx)
	if err != nil {
		h.logger.Error("list presence failed", zap.Error(err))
		response.Internal(c, "failed to list presence")
		return
	}

	byUser := make(map[uuid.UUID]Row, len(rows))
	for _, row := range rows {
		byUser[row.UserID] = row
	}
	now := time.Now().UTC()
	entries := make([]Entry, 0, len(users))
	for _, u := range users {
		e := Entry{UserID: u.ID, Email: u.Email, FullName: u.FullName, Status: models.PresenceOffline, Stale: true}
		if row, ok := byUser[u.ID]; ok {
			lastSeen := row.LastSeenAt
			e.Status = row.Status
			e.LastSeenAt = &lastSeen
			e.Stale = row.Stale(now, h.staleAfter)
		}
		entries = append(entries, e)
	}
	response.OK(c, entries)
}

// Reconcile handles POST /presence/reconcile: an on-demand pass, same logic
// the worker runs on its interval.
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("reconciliation pass failed", zap.Error(err))
		response.Internal(c, "reconciliation failed")
		return
	}
	response.OK(c, report)
}
