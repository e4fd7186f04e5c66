package models

import (
	"time"

	"github.com/google/uuid"
)

// CommandType is the supervisor intent carried to a subject.
type CommandType string

const (
	CommandStart CommandType = "START"
	CommandStop  CommandType = "STOP"
)

// Valid reports whether t is a known command type.
func (t CommandType) Valid() bool {
	return t == CommandStart || t == CommandStop
}

// Command is the immutable payload dispatched to a subject. The same structure
// is sent on the broadcast channel and on the queue fallback so downstream
// consumers never need to care which path delivered it.
type Command struct {
	Type         CommandType `json:"command"`
	SubjectEmail string      `json:"subject_email"`
	IssuedAt     time.Time   `json:"timestamp"`
	Reason       string      `json:"reason,omitempty"`
}

// PendingCommand is the durable copy of a Command awaiting acknowledgment by a
// polling subject. At most one unacknowledged row exists per subject; creating
// a new one supersedes (deletes) the previous one.
type PendingCommand struct {
	ID           uuid.UUID   `json:"id"`
	SubjectID    uuid.UUID   `json:"subject_id"`
	Type         CommandType `json:"command"`
	Reason       string      `json:"reason,omitempty"`
	IssuedAt     time.Time   `json:"issued_at"`
	Acknowledged bool        `json:"acknowledged"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Expired reports whether the pending command fell outside its validity
// window at the given instant.
func (p *PendingCommand) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.IssuedAt) > ttl
}

// DeliveryChannel identifies which transport carried a dispatched command.
type DeliveryChannel string

const (
	ChannelBroadcast DeliveryChannel = "broadcast"
	ChannelQueue     DeliveryChannel = "queue"
)

// MessagingResult is the synchronous outcome of a dispatch attempt. Not persisted.
type MessagingResult struct {
	Channel DeliveryChannel `json:"channel"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}
