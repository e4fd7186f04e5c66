package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents the egress session lifecycle.
const (
	RecordingStatusActive    = "active"
	RecordingStatusCompleted = "completed"
	RecordingStatusFailed    = "failed"
)

// RecordingSession is one egress attempt against a room. At most one Active
// session exists per room at any instant; the orchestrator rejects a second
// start as a conflict rather than silently duplicating.
type RecordingSession struct {
	ID              uuid.UUID `json:"id"`
	RoomName        string    `json:"room_name"`
	InitiatorUserID uuid.UUID `json:"initiator_user_id"`
	SubjectUserID   uuid.UUID `json:"subject_user_id"`
	EgressID        string    `json:"egress_id"`
	Status          string    `json:"status"`
	BlobPath        string    `json:"blob_path,omitempty"`
	BlobURL         string    `json:"blob_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
