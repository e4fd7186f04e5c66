package models

import (
	"time"

	"github.com/google/uuid"
)

// PresenceStatus is the persisted online/offline state of a user.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the durable per-user presence row, upserted on connect/disconnect
// and corrected by the reconciler. Never deleted.
type Presence struct {
	UserID     uuid.UUID      `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Stale reports whether the row has not been touched within maxAge. Staleness
// is derived, not stored.
func (p *Presence) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.UpdatedAt) > maxAge
}

// PresenceEvent is fanned out to the shared presence group whenever presence
// legitimately changes via connect/disconnect.
type PresenceEvent struct {
	Email      string         `json:"email"`
	FullName   string         `json:"full_name"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}
