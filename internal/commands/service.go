package commands

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/models"
)

var (
	// ErrSubjectNotFound means the command target does not exist.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrSubjectInactive means the command target is disabled.
	ErrSubjectInactive = errors.New("subject is inactive")
)

// IssueResult is the outcome of issuing a command: the durable pending row and
// the synchronous delivery result. Delivery failing on both channels does not
// fail the issue; the pending row is the subject's fallback visibility.
type IssueResult struct {
	Pending  *models.PendingCommand `json:"pending"`
	Delivery models.MessagingResult `json:"delivery"`
}

// Service is the issue façade: one call both records the pending command and
// dispatches it, so the two halves can never drift apart across call sites.
type Service struct {
	dispatcher *Dispatcher
	manager    *Manager
	users      UserLookup
	logger     *zap.Logger
}

// NewService creates the command issue façade.
func NewService(dispatcher *Dispatcher, manager *Manager, users UserLookup, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{dispatcher: dispatcher, manager: manager, users: users, logger: logger}
}

// Issue validates the subject, persists the pending command (superseding any
// prior one), then dispatches over broadcast with queue fallback. The pending
// row is written first: an offline subject must have something to poll even
// when both push channels are unreachable.
func (s *Service) Issue(ctx context.Context, subjectEmail string, cmdType models.CommandType, reason string) (*IssueResult, error) {
	if !cmdType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, cmdType)
	}
	subject, err := s.users.GetByEmail(ctx, subjectEmail)
	if err != nil {
		return nil, fmt.Errorf("lookup subject: %w", err)
	}
	if subject == nil {
		return nil, ErrSubjectNotFound
	}
	if !subject.IsActive() {
		return nil, ErrSubjectInactive
	}

	pending, err := s.manager.Create(ctx, subject.ID, cmdType, reason)
	if err != nil {
		return nil, err
	}

	cmd := models.Command{
		Type:         cmdType,
		SubjectEmail: subject.Email,
		IssuedAt:     pending.IssuedAt,
		Reason:       reason,
	}
	result := s.dispatcher.Send(ctx, cmd)
	if !result.Success {
		s.logger.Warn("command push failed on both channels, pending row remains pollable",
			zap.String("subject", subject.Email),
			zap.String("command", string(cmdType)),
			zap.String("error", result.Error))
	}

	return &IssueResult{Pending: pending, Delivery: result}, nil
}
