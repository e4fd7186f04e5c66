package recordings

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/identity"
	"github.com/fieldwatch/backend/internal/middleware"
	"github.com/fieldwatch/backend/internal/models"
	"github.com/fieldwatch/backend/pkg/response"
)

// StartRequest is the body for POST /recordings/start.
type StartRequest struct {
	RoomName     string `json:"room_name" binding:"required"`
	SubjectEmail string `json:"subject_email" binding:"required,email"`
}

// StopRequest is the body for POST /subjects/:email/recordings/stop.
type StopRequest struct {
	SasValidityMinutes int `json:"sas_validity_minutes"`
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	orchestrator *Orchestrator
	repo         *Repository
	users        *identity.Repository
	blobs        BlobStore
	logger       *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(orchestrator *Orchestrator, repo *Repository, users *identity.Repository, blobs BlobStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{orchestrator: orchestrator, repo: repo, users: users, blobs: blobs, logger: logger}
}

// Start handles POST /recordings/start. Supervisors only.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	initiatorID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	subject, err := h.users.GetByEmail(c.Request.Context(), req.SubjectEmail)
	if err != nil || subject == nil {
		response.NotFound(c, "subject not found")
		return
	}
	if !subject.IsActive() {
		response.Forbidden(c, "subject is inactive")
		return
	}

	session, err := h.orchestrator.Start(c.Request.Context(), StartParams{
		RoomName:        req.RoomName,
		SubjectLabel:    subject.FullName,
		SubjectIdentity: subject.Email,
		SubjectUserID:   subject.ID,
		InitiatorUserID: initiatorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRecordingConflict):
			response.Conflict(c, "recording already in progress for room")
		case errors.Is(err, ErrNoEgressID):
			response.Internal(c, "egress engine returned no usable handle")
		default:
			h.logger.Error("start recording failed", zap.Error(err), zap.String("room", req.RoomName))
			response.Internal(c, "failed to start recording")
		}
		return
	}
	response.Created(c, session)
}

// StopForSubject handles POST /subjects/:email/recordings/stop.
func (h *Handler) StopForSubject(c *gin.Context) {
	subjectEmail := c.Param("email")
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	validity := time.Duration(req.SasValidityMinutes) * time.Minute
	if validity <= 0 {
		validity = 60 * time.Minute
	}

	subject, err := h.users.GetByEmail(c.Request.Context(), subjectEmail)
	if err != nil || subject == nil {
		response.NotFound(c, "subject not found")
		return
	}

	summary, err := h.orchestrator.StopAllForSubject(c.Request.Context(), subject.ID, validity)
	if err != nil {
		h.logger.Error("stop recordings failed", zap.Error(err), zap.String("subject", subjectEmail))
		response.Internal(c, "failed to stop recordings")
		return
	}
	response.OK(c, summary)
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// PlaybackURL handles GET /recordings/:id/playback-url. Returns a short-lived
// signed URL for a completed recording.
func (h *Handler) PlaybackURL(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	session, err := h.repo.GetByID(c.Request.Context(), sessionID)
	if err != nil || session == nil {
		response.NotFound(c, "recording not found")
		return
	}
	if session.Status != models.RecordingStatusCompleted || session.BlobPath == "" {
		response.BadRequest(c, "recording not ready for playback")
		return
	}

	validity := h.blobs.PresignExpire()
	url, err := h.blobs.GeneratePresignedDownloadURL(c.Request.Context(), session.BlobPath, validity)
	if err != nil {
		h.logger.Error("presign playback url failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to generate playback URL")
		return
	}
	response.OK(c, gin.H{"playback_url": url, "expires_in": int(validity.Seconds())})
}

// Delete handles DELETE /recordings/:id.
func (h *Handler) Delete(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}

	summary, err := h.orchestrator.Delete(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		// partial cleanup: surface what happened alongside the failure
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "cleanup incomplete", "data": summary})
		return
	}
	response.OK(c, summary)
}
