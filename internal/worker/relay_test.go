package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/commands"
	"github.com/fieldwatch/backend/internal/models"
	"github.com/fieldwatch/backend/pkg/queue"
)

type fakePublisher struct {
	groups   []string
	events   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishGroupEvent(group, event string, payload []byte) error {
	f.groups = append(f.groups, group)
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func commandJob(t *testing.T, cmd models.Command) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Type: queue.JobTypeCommand, Payload: payload, CreatedAt: time.Now()}
}

func TestCommandRelayProcess(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewCommandRelay(nil, pub, zaptest.NewLogger(t))
	cmd := models.Command{Type: models.CommandStop, SubjectEmail: "worker@example.com", IssuedAt: time.Now().UTC()}

	err := relay.Process(context.Background(), commandJob(t, cmd))

	require.NoError(t, err)
	require.Len(t, pub.groups, 1)
	assert.Equal(t, broadcast.SubjectGroup("worker@example.com"), pub.groups[0])
	assert.Equal(t, commands.EventCommand, pub.events[0])

	var relayed models.Command
	require.NoError(t, json.Unmarshal(pub.payloads[0], &relayed))
	assert.Equal(t, cmd.Type, relayed.Type)
}

func TestCommandRelayProcessRejectsUnknownJobType(t *testing.T) {
	relay := NewCommandRelay(nil, &fakePublisher{}, zaptest.NewLogger(t))

	err := relay.Process(context.Background(), &queue.Job{ID: "job-2", Type: queue.JobType("email")})

	assert.Error(t, err)
}

func TestCommandRelayProcessRejectsMissingSubject(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewCommandRelay(nil, pub, zaptest.NewLogger(t))

	err := relay.Process(context.Background(), commandJob(t, models.Command{Type: models.CommandStart}))

	assert.Error(t, err)
	assert.Empty(t, pub.groups)
}
