package recordings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrorInfo describes a recording failure.
type ErrorInfo struct {
	Message string
	Name    string
	Stack   string
}

// ErrorContext ties a failure to the session it belongs to.
type ErrorContext struct {
	SessionID       *uuid.UUID
	EgressID        string
	RoomName        string
	SubjectUserID   *uuid.UUID
	InitiatorUserID *uuid.UUID
}

// ErrorLogger records recording failures for audit. Implementations must never
// fail the caller; a logging outage cannot be allowed to cascade into a
// user-visible recording failure.
type ErrorLogger interface {
	LogError(ctx context.Context, info ErrorInfo, ec ErrorContext)
}

// AuditLogger writes recording failures to the recording_error_logs table.
// Write errors are swallowed and reported only through zap.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAuditLogger creates a database-backed recording error logger.
func NewAuditLogger(pool *pgxpool.Pool, logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{pool: pool, logger: logger}
}

// LogError persists one failure row. Never returns or panics on failure.
func (l *AuditLogger) LogError(ctx context.Context, info ErrorInfo, ec ErrorContext) {
	const q = `INSERT INTO recording_error_logs (message, error_name, stack, session_id, egress_id, room_name, subject_user_id, initiator_user_id)
		VALUES ($1, NULLIF($2,''), NULLIF($3,''), $4, NULLIF($5,''), NULLIF($6,''), $7, $8)`
	_, err := l.pool.Exec(ctx, q, info.Message, info.Name, info.Stack, ec.SessionID, ec.EgressID, ec.RoomName, ec.SubjectUserID, ec.InitiatorUserID)
	if err != nil {
		l.logger.Warn("recording error audit write failed",
			zap.String("message", info.Message),
			zap.String("egress_id", ec.EgressID),
			zap.Error(err))
	}
}
