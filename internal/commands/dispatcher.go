package commands

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/models"
)

const (
	// EventCommand is the broadcast event name carrying a Command payload.
	EventCommand = "command"
)

// BroadcastGateway is the real-time push channel to named groups.
type BroadcastGateway interface {
	SendToGroup(ctx context.Context, group, event string, payload any) error
}

// QueueGateway is the durable fallback channel for command delivery.
type QueueGateway interface {
	EnqueueCommand(ctx context.Context, payload any) error
}

// Dispatcher delivers commands over the broadcast channel first, falling back
// to the durable queue on any broadcast failure. Exactly one attempt is made
// per channel; retry policy belongs to the caller.
type Dispatcher struct {
	broadcast BroadcastGateway
	queue     QueueGateway
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDispatcher creates a command dispatcher. timeout bounds each channel attempt.
func NewDispatcher(bg BroadcastGateway, qg QueueGateway, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{broadcast: bg, queue: qg, timeout: timeout, logger: logger}
}

// Send dispatches a command to the subject's dedicated group, enqueuing it on
// the durable queue when the broadcast attempt fails. The result names the
// channel that ultimately accepted the message; when both fail it carries the
// queue's error.
func (d *Dispatcher) Send(ctx context.Context, cmd models.Command) models.MessagingResult {
	group := broadcast.SubjectGroup(cmd.SubjectEmail)

	bctx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.broadcast.SendToGroup(bctx, group, EventCommand, cmd)
	cancel()
	if err == nil {
		return models.MessagingResult{Channel: models.ChannelBroadcast, Success: true}
	}
	d.logger.Warn("broadcast delivery failed, falling back to queue",
		zap.String("subject", cmd.SubjectEmail),
		zap.String("command", string(cmd.Type)),
		zap.Error(err))

	qctx, cancel := context.WithTimeout(ctx, d.timeout)
	err = d.queue.EnqueueCommand(qctx, cmd)
	cancel()
	if err == nil {
		return models.MessagingResult{Channel: models.ChannelQueue, Success: true}
	}
	d.logger.Error("queue delivery failed",
		zap.String("subject", cmd.SubjectEmail),
		zap.Error(err))
	return models.MessagingResult{Channel: models.ChannelQueue, Success: false, Error: err.Error()}
}

// BroadcastToGroup fires a structured message to an arbitrary group. The
// dispatcher does not interpret the payload; callers own the event contract.
func (d *Dispatcher) BroadcastToGroup(ctx context.Context, group, event string, payload any) error {
	bctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.broadcast.SendToGroup(bctx, group, event, payload)
}
