package commands

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/middleware"
	"github.com/fieldwatch/backend/internal/models"
	"github.com/fieldwatch/backend/pkg/response"
)

// IssueRequest is the body for POST /subjects/:email/commands.
type IssueRequest struct {
	Command string `json:"command" binding:"required"`
	Reason  string `json:"reason"`
}

// AcknowledgeRequest is the body for POST /commands/acknowledge.
type AcknowledgeRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

// Handler handles command HTTP endpoints.
type Handler struct {
	service *Service
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a commands handler.
func NewHandler(service *Service, manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, manager: manager, logger: logger}
}

// Issue handles POST /subjects/:email/commands. Supervisors only.
func (h *Handler) Issue(c *gin.Context) {
	subjectEmail := c.Param("email")
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.service.Issue(c.Request.Context(), subjectEmail, models.CommandType(req.Command), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCommand):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrSubjectNotFound):
			response.NotFound(c, "subject not found")
		case errors.Is(err, ErrSubjectInactive):
			response.Forbidden(c, "subject is inactive")
		default:
			h.logger.Error("issue command failed", zap.Error(err), zap.String("subject", subjectEmail))
			response.Internal(c, "failed to issue command")
		}
		return
	}
	response.OK(c, result)
}

// FetchPending handles GET /commands/pending. The caller identity comes from
// the JWT; an empty response means genuinely nothing to do.
func (h *Handler) FetchPending(c *gin.Context) {
	email := c.MustGet(middleware.ContextUserEmail).(string)

	pending, err := h.manager.FetchPending(c.Request.Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, ErrCallerNotFound):
			response.NotFound(c, "caller not found")
		case errors.Is(err, ErrCallerInactive):
			response.Forbidden(c, "caller is inactive")
		default:
			h.logger.Error("fetch pending failed", zap.Error(err), zap.String("caller", email))
			response.Internal(c, "failed to fetch pending command")
		}
		return
	}
	response.OK(c, gin.H{"pending": pending})
}

// Acknowledge handles POST /commands/acknowledge.
func (h *Handler) Acknowledge(c *gin.Context) {
	email := c.MustGet(middleware.ContextUserEmail).(string)
	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	n, err := h.manager.Acknowledge(c.Request.Context(), email, req.IDs)
	if err != nil {
		switch {
		case errors.Is(err, ErrCallerNotFound):
			response.NotFound(c, "caller not found")
		case errors.Is(err, ErrCallerInactive):
			response.Forbidden(c, "caller is inactive")
		default:
			h.logger.Error("acknowledge failed", zap.Error(err), zap.String("caller", email))
			response.Internal(c, "failed to acknowledge commands")
		}
		return
	}
	response.OK(c, gin.H{"updated_count": n})
}
