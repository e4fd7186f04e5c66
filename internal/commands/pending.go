package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/models"
)

var (
	// ErrCallerNotFound means the polling identity does not exist.
	ErrCallerNotFound = errors.New("caller not found")
	// ErrCallerInactive means the polling identity exists but is disabled.
	// Distinct from "nothing pending" so UIs never mask access problems as
	// empty states.
	ErrCallerInactive = errors.New("caller is inactive")
	// ErrInvalidCommand means the command type is not recognized.
	ErrInvalidCommand = errors.New("invalid command type")
)

// PendingStore is the durable store of at-most-one outstanding command per subject.
type PendingStore interface {
	Supersede(ctx context.Context, subjectID uuid.UUID, cmdType models.CommandType, reason string, issuedAt time.Time) (*models.PendingCommand, error)
	LatestForSubject(ctx context.Context, subjectID uuid.UUID) (*models.PendingCommand, error)
	Acknowledge(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// UserLookup resolves polling callers and command subjects.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByDirectoryID(ctx context.Context, directoryID string) (*models.User, error)
}

// Manager owns the pending-command lifecycle: supersession on create, lazy
// expiry on fetch, idempotent acknowledgment.
type Manager struct {
	store  PendingStore
	users  UserLookup
	ttl    time.Duration
	logger *zap.Logger
}

// NewManager creates a pending-command manager. ttl is the validity window
// after which an unacknowledged command is treated as stale.
func NewManager(store PendingStore, users UserLookup, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Manager{store: store, users: users, ttl: ttl, logger: logger}
}

// TTL returns the validity window for pending commands.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create records a new pending command for the subject, superseding any prior
// unacknowledged one. A subject told START and then immediately STOP must only
// ever see STOP.
func (m *Manager) Create(ctx context.Context, subjectID uuid.UUID, cmdType models.CommandType, reason string) (*models.PendingCommand, error) {
	if !cmdType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, cmdType)
	}
	p, err := m.store.Supersede(ctx, subjectID, cmdType, reason, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("supersede pending command: %w", err)
	}
	m.logger.Info("pending command recorded",
		zap.String("subject_id", subjectID.String()),
		zap.String("command", string(cmdType)))
	return p, nil
}

// FetchPending resolves the caller and returns their single pending command,
// or nil when none exists or the latest one has expired. A missing or inactive
// caller is an error, never an empty result.
func (m *Manager) FetchPending(ctx context.Context, callerEmail string) (*models.PendingCommand, error) {
	caller, err := m.resolveCaller(ctx, callerEmail)
	if err != nil {
		return nil, err
	}

	p, err := m.store.LatestForSubject(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch pending command: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	if p.Expired(time.Now().UTC(), m.ttl) {
		return nil, nil
	}
	return p, nil
}

// Acknowledge marks the given pending commands acknowledged on behalf of the
// caller and returns the count updated. Re-acknowledging is a no-op, not an
// error.
func (m *Manager) Acknowledge(ctx context.Context, callerEmail string, ids []uuid.UUID) (int64, error) {
	if _, err := m.resolveCaller(ctx, callerEmail); err != nil {
		return 0, err
	}
	n, err := m.store.Acknowledge(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("acknowledge pending commands: %w", err)
	}
	return n, nil
}

// resolveCaller finds the caller by email, falling back to the external
// directory id for devices provisioned through the company directory.
func (m *Manager) resolveCaller(ctx context.Context, callerID string) (*models.User, error) {
	u, err := m.users.GetByEmail(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("lookup caller: %w", err)
	}
	if u == nil {
		u, err = m.users.GetByDirectoryID(ctx, callerID)
		if err != nil {
			return nil, fmt.Errorf("lookup caller: %w", err)
		}
	}
	if u == nil {
		return nil, ErrCallerNotFound
	}
	if !u.IsActive() {
		return nil, ErrCallerInactive
	}
	return u, nil
}
