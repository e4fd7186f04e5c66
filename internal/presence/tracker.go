package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/models"
)

// EventPresence is the broadcast event name for presence changes.
const EventPresence = "presence"

// Store is the durable presence mutation surface the tracker and reconciler share.
type Store interface {
	Upsert(ctx context.Context, userID uuid.UUID, status models.PresenceStatus, touchLastSeen bool) error
}

// GroupBroadcaster fans a structured message out to a named group.
type GroupBroadcaster interface {
	BroadcastToGroup(ctx context.Context, group, event string, payload any) error
}

// Tracker turns connection lifecycle events into durable presence transitions
// and fans a presence event out to the shared group so dashboards update
// without polling. Reconciliation corrections do not go through the tracker.
type Tracker struct {
	store       Store
	broadcaster GroupBroadcaster
	logger      *zap.Logger
}

// NewTracker creates a presence tracker.
func NewTracker(store Store, broadcaster GroupBroadcaster, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, broadcaster: broadcaster, logger: logger}
}

// HandleConnect marks the user online. Wired to the hub's first-connection hook.
func (t *Tracker) HandleConnect(userID uuid.UUID, email, fullName string) {
	t.transition(userID, email, fullName, models.PresenceOnline)
}

// HandleDisconnect marks the user offline. Wired to the hub's last-connection
// hook; abrupt network loss lands here too once the read deadline fires.
func (t *Tracker) HandleDisconnect(userID uuid.UUID, email, fullName string) {
	t.transition(userID, email, fullName, models.PresenceOffline)
}

func (t *Tracker) transition(userID uuid.UUID, email, fullName string, status models.PresenceStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.store.Upsert(ctx, userID, status, true); err != nil {
		t.logger.Error("presence upsert failed",
			zap.String("email", email),
			zap.String("status", string(status)),
			zap.Error(err))
		// fall through: still broadcast so dashboards track live state even
		// when the durable write fails; the reconciler will converge the row
	}

	event := models.PresenceEvent{
		Email:      email,
		FullName:   fullName,
		Status:     status,
		LastSeenAt: time.Now().UTC(),
	}
	if err := t.broadcaster.BroadcastToGroup(ctx, broadcast.PresenceGroup, EventPresence, event); err != nil {
		t.logger.Debug("presence broadcast skipped", zap.String("email", email), zap.Error(err))
	}
}
