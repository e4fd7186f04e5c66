package recordings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/egress"
	"github.com/fieldwatch/backend/internal/models"
	"github.com/fieldwatch/backend/pkg/storage"
	"github.com/fieldwatch/backend/pkg/utils"
)

var (
	// ErrRecordingConflict means the room already has an Active session.
	ErrRecordingConflict = errors.New("recording already active for room")
	// ErrNoEgressID means the engine accepted the start call but returned no
	// usable external id. A session is never persisted without a verifiable
	// external handle.
	ErrNoEgressID = errors.New("egress engine returned no egress id")
	// ErrSessionNotFound means the recording session does not exist.
	ErrSessionNotFound = errors.New("recording session not found")
)

// EgressEngine drives the external media egress operation.
type EgressEngine interface {
	StartParticipantEgress(ctx context.Context, roomName, participantIdentity string, output egress.Output) (*egress.Info, error)
	StopEgress(ctx context.Context, egressID string) (*egress.Info, error)
}

// SessionStore is the durable record of egress attempts.
type SessionStore interface {
	Create(ctx context.Context, s *models.RecordingSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingSession, error)
	FindActiveByRoom(ctx context.Context, roomName string) (*models.RecordingSession, error)
	ListActiveBySubject(ctx context.Context, subjectUserID uuid.UUID) ([]models.RecordingSession, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, blobPath, blobURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// BlobStore is the object-storage surface for recording artifacts.
type BlobStore interface {
	RecordingsBucket() string
	PresignExpire() time.Duration
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	DeleteIfExists(ctx context.Context, key string) (deleted bool, err error)
}

// Notifier fans recording lifecycle events out to a broadcast group.
type Notifier interface {
	BroadcastToGroup(ctx context.Context, group, event string, payload any) error
}

// StartParams identifies what to record and who asked.
type StartParams struct {
	RoomName        string
	SubjectLabel    string // human label used in the object key (slugified)
	SubjectIdentity string // participant identity in the media room
	SubjectUserID   uuid.UUID
	InitiatorUserID uuid.UUID
}

// StopResult is the per-session outcome of a stop sweep.
type StopResult struct {
	SessionID uuid.UUID `json:"session_id"`
	EgressID  string    `json:"egress_id"`
	RoomName  string    `json:"room_name"`
	Status    string    `json:"status"`
	SasURL    string    `json:"sas_url,omitempty"`
	BlobPath  string    `json:"blob_path,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// StopSummary mixes successes and failures of one sweep so callers can render
// "2 of 3 stopped" instead of a generic error.
type StopSummary struct {
	Message   string       `json:"message"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Results   []StopResult `json:"results"`
}

// CleanupSummary reports which cleanup steps of a delete actually happened.
type CleanupSummary struct {
	BlobDeleted bool `json:"blob_deleted"`
	BlobMissing bool `json:"blob_missing"`
	DBDeleted   bool `json:"db_deleted"`
}

// Orchestrator drives the recording session lifecycle against the egress
// engine, the session store, and object storage.
type Orchestrator struct {
	engine   EgressEngine
	store    SessionStore
	blobs    BlobStore
	errlog   ErrorLogger
	notifier Notifier
	logger   *zap.Logger
}

// NewOrchestrator creates a recording orchestrator. notifier may be nil.
func NewOrchestrator(engine EgressEngine, store SessionStore, blobs BlobStore, errlog ErrorLogger, notifier Notifier, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{engine: engine, store: store, blobs: blobs, errlog: errlog, notifier: notifier, logger: logger}
}

// Start begins a participant egress for the room and persists the Active
// session. A room with an Active session is a conflict and the engine is not
// contacted.
func (o *Orchestrator) Start(ctx context.Context, p StartParams) (*models.RecordingSession, error) {
	existing, err := o.store.FindActiveByRoom(ctx, p.RoomName)
	if err != nil {
		return nil, fmt.Errorf("check active session: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordingConflict, p.RoomName)
	}

	key := storage.RecordingKey(utils.Slugify(p.SubjectLabel), p.RoomName, time.Now())
	info, err := o.engine.StartParticipantEgress(ctx, p.RoomName, p.SubjectIdentity, egress.Output{
		Bucket: o.blobs.RecordingsBucket(),
		Key:    key,
	})
	if err != nil {
		o.errlog.LogError(ctx, ErrorInfo{Message: err.Error(), Name: "egress_start"}, ErrorContext{
			RoomName:        p.RoomName,
			SubjectUserID:   &p.SubjectUserID,
			InitiatorUserID: &p.InitiatorUserID,
		})
		return nil, fmt.Errorf("start egress: %w", err)
	}
	if info == nil || info.EgressID == "" {
		o.errlog.LogError(ctx, ErrorInfo{Message: "engine returned no egress id", Name: "egress_start"}, ErrorContext{
			RoomName:        p.RoomName,
			SubjectUserID:   &p.SubjectUserID,
			InitiatorUserID: &p.InitiatorUserID,
		})
		return nil, ErrNoEgressID
	}

	session := &models.RecordingSession{
		RoomName:        p.RoomName,
		InitiatorUserID: p.InitiatorUserID,
		SubjectUserID:   p.SubjectUserID,
		EgressID:        info.EgressID,
		Status:          models.RecordingStatusActive,
		BlobPath:        key,
	}
	if err := o.store.Create(ctx, session); err != nil {
		// the egress is running but we cannot track it; stop it rather than
		// leak an untracked operation
		if _, stopErr := o.engine.StopEgress(ctx, info.EgressID); stopErr != nil {
			o.logger.Error("stop untracked egress failed", zap.String("egress_id", info.EgressID), zap.Error(stopErr))
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}

	o.notify(ctx, p.SubjectIdentity, "recording_started", session)
	o.logger.Info("recording started",
		zap.String("room", p.RoomName),
		zap.String("egress_id", info.EgressID),
		zap.String("session_id", session.ID.String()))
	return session, nil
}

// StopAllForSubject stops every Active session for the subject. One session's
// failure never aborts the sweep; the summary mixes per-session outcomes.
// sasValidity bounds the returned playback URLs.
func (o *Orchestrator) StopAllForSubject(ctx context.Context, subjectUserID uuid.UUID, sasValidity time.Duration) (*StopSummary, error) {
	sessions, err := o.store.ListActiveBySubject(ctx, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return o.StopSessions(ctx, sessions, sasValidity), nil
}

// StopSessions stops the given sessions with the same per-session semantics as
// StopAllForSubject. Used by the orphan sweep.
func (o *Orchestrator) StopSessions(ctx context.Context, sessions []models.RecordingSession, sasValidity time.Duration) *StopSummary {
	summary := &StopSummary{Total: len(sessions)}
	for i := range sessions {
		result := o.stopOne(ctx, &sessions[i], sasValidity)
		if result.Status == models.RecordingStatusCompleted {
			summary.Completed++
		}
		summary.Results = append(summary.Results, result)
	}
	summary.Message = fmt.Sprintf("stopped %d of %d recording sessions", summary.Completed, summary.Total)
	return summary
}

// stopOne stops a single session and normalizes its outcome. Single-item
// failures are returned in the result, not raised.
func (o *Orchestrator) stopOne(ctx context.Context, s *models.RecordingSession, sasValidity time.Duration) StopResult {
	result := StopResult{SessionID: s.ID, EgressID: s.EgressID, RoomName: s.RoomName, BlobPath: s.BlobPath}

	info, err := o.engine.StopEgress(ctx, s.EgressID)
	if err != nil {
		if markErr := o.store.MarkFailed(ctx, s.ID); markErr != nil {
			o.logger.Error("mark session failed errored", zap.String("session_id", s.ID.String()), zap.Error(markErr))
		}
		o.errlog.LogError(ctx, ErrorInfo{Message: err.Error(), Name: "egress_stop"}, ErrorContext{
			SessionID:       &s.ID,
			EgressID:        s.EgressID,
			RoomName:        s.RoomName,
			SubjectUserID:   &s.SubjectUserID,
			InitiatorUserID: &s.InitiatorUserID,
		})
		result.Status = models.RecordingStatusFailed
		result.Error = err.Error()
		return result
	}

	blobURL := info.FileLocation()
	if blobURL == "" {
		o.logger.Warn("egress response carried no file location, keeping requested key",
			zap.String("egress_id", s.EgressID))
	}
	if err := o.store.MarkCompleted(ctx, s.ID, s.BlobPath, blobURL); err != nil {
		result.Status = models.RecordingStatusFailed
		result.Error = fmt.Sprintf("persist completion: %v", err)
		o.errlog.LogError(ctx, ErrorInfo{Message: result.Error, Name: "session_update"}, ErrorContext{
			SessionID: &s.ID,
			EgressID:  s.EgressID,
			RoomName:  s.RoomName,
		})
		return result
	}

	result.Status = models.RecordingStatusCompleted
	if s.BlobPath != "" {
		sasURL, err := o.blobs.GeneratePresignedDownloadURL(ctx, s.BlobPath, sasValidity)
		if err != nil {
			o.logger.Warn("presign playback url failed", zap.String("session_id", s.ID.String()), zap.Error(err))
			result.Error = fmt.Sprintf("playback url: %v", err)
		} else {
			result.SasURL = sasURL
		}
	}

	return result
}

// Delete removes a session's artifact and row. An already-missing blob is
// success, not error; the summary exposes partial cleanup.
func (o *Orchestrator) Delete(ctx context.Context, sessionID uuid.UUID) (*CleanupSummary, error) {
	session, err := o.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	summary := &CleanupSummary{}
	if session.BlobPath != "" {
		deleted, err := o.blobs.DeleteIfExists(ctx, session.BlobPath)
		if err != nil {
			o.errlog.LogError(ctx, ErrorInfo{Message: err.Error(), Name: "blob_delete"}, ErrorContext{
				SessionID: &session.ID,
				EgressID:  session.EgressID,
				RoomName:  session.RoomName,
			})
			return summary, fmt.Errorf("delete blob: %w", err)
		}
		summary.BlobDeleted = deleted
		summary.BlobMissing = !deleted
	}

	dbDeleted, err := o.store.Delete(ctx, sessionID)
	if err != nil {
		return summary, fmt.Errorf("delete session row: %w", err)
	}
	summary.DBDeleted = dbDeleted

	o.logger.Info("recording deleted",
		zap.String("session_id", sessionID.String()),
		zap.Bool("blob_deleted", summary.BlobDeleted),
		zap.Bool("blob_missing", summary.BlobMissing))
	return summary, nil
}

// notify fires a best-effort lifecycle event to the subject's group.
func (o *Orchestrator) notify(ctx context.Context, subjectIdentity, event string, payload any) {
	if o.notifier == nil || subjectIdentity == "" {
		return
	}
	if err := o.notifier.BroadcastToGroup(ctx, broadcast.SubjectGroup(subjectIdentity), event, payload); err != nil {
		o.logger.Debug("recording notification skipped", zap.String("event", event), zap.Error(err))
	}
}
