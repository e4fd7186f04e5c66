package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/commands"
	"github.com/fieldwatch/backend/internal/models"
	"github.com/fieldwatch/backend/pkg/queue"
)

// GroupPublisher publishes an event to a group's fan-out channel.
type GroupPublisher interface {
	PublishGroupEvent(group, event string, payload []byte) error
}

// CommandRelay drains the fallback command queue and republishes each command
// to the subject's group channel, so a subject that reconnects on any instance
// still receives commands whose broadcast originally failed. The pending
// command row remains the source of truth; the relay only shortens the window
// before the next poll.
type CommandRelay struct {
	queue     *queue.Queue
	publisher GroupPublisher
	logger    *zap.Logger
}

// NewCommandRelay creates a command delivery relay.
func NewCommandRelay(q *queue.Queue, publisher GroupPublisher, logger *zap.Logger) *CommandRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandRelay{queue: q, publisher: publisher, logger: logger}
}

// Process executes one command delivery job.
func (r *CommandRelay) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeCommand {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var cmd models.Command
	if err := json.Unmarshal(job.Payload, &cmd); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if cmd.SubjectEmail == "" {
		return fmt.Errorf("job %s has no subject email", job.ID)
	}

	group := broadcast.SubjectGroup(cmd.SubjectEmail)
	if err := r.publisher.PublishGroupEvent(group, commands.EventCommand, job.Payload); err != nil {
		return fmt.Errorf("publish to %s: %w", group, err)
	}

	r.logger.Info("relayed queued command",
		zap.String("job_id", job.ID),
		zap.String("subject", cmd.SubjectEmail),
		zap.String("command", string(cmd.Type)))
	return nil
}

// Run starts the relay loop: dequeue, publish, retry on error.
func (r *CommandRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("command relay stopping")
			return
		default:
		}

		job, _, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := r.Process(ctx, job); err != nil {
			r.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := r.queue.Retry(ctx, job); reErr != nil {
				r.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
