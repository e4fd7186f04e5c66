package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/models"
)

type fakeBroadcastGateway struct {
	err    error
	groups []string
	events []string
}

func (f *fakeBroadcastGateway) SendToGroup(_ context.Context, group, event string, _ any) error {
	f.groups = append(f.groups, group)
	f.events = append(f.events, event)
	return f.err
}

type fakeQueueGateway struct {
	err      error
	payloads []any
}

func (f *fakeQueueGateway) EnqueueCommand(_ context.Context, payload any) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func TestDispatcherSendBroadcastFirst(t *testing.T) {
	bg := &fakeBroadcastGateway{}
	qg := &fakeQueueGateway{}
	d := NewDispatcher(bg, qg, 0, zaptest.NewLogger(t))

	cmd := models.Command{Type: models.CommandStart, SubjectEmail: "worker@example.com"}
	result := d.Send(context.Background(), cmd)

	assert.True(t, result.Success)
	assert.Equal(t, models.ChannelBroadcast, result.Channel)
	require.Len(t, bg.groups, 1)
	assert.Equal(t, broadcast.SubjectGroup("worker@example.com"), bg.groups[0])
	assert.Equal(t, EventCommand, bg.events[0])
	assert.Empty(t, qg.payloads, "queue must not be touched when broadcast succeeds")
}

func TestDispatcherSendQueueFallback(t *testing.T) {
	bg := &fakeBroadcastGateway{err: broadcast.ErrGroupNotFound}
	qg := &fakeQueueGateway{}
	d := NewDispatcher(bg, qg, 0, zaptest.NewLogger(t))

	cmd := models.Command{Type: models.CommandStop, SubjectEmail: "worker@example.com"}
	result := d.Send(context.Background(), cmd)

	assert.True(t, result.Success)
	assert.Equal(t, models.ChannelQueue, result.Channel)
	require.Len(t, qg.payloads, 1)
	assert.Equal(t, cmd, qg.payloads[0], "queue payload must be the same wire shape as broadcast")
}

func TestDispatcherSendBothChannelsFail(t *testing.T) {
	bg := &fakeBroadcastGateway{err: broadcast.ErrGroupNotFound}
	qg := &fakeQueueGateway{err: errors.New("redis down")}
	d := NewDispatcher(bg, qg, 0, zaptest.NewLogger(t))

	result := d.Send(context.Background(), models.Command{Type: models.CommandStart, SubjectEmail: "w@example.com"})

	assert.False(t, result.Success)
	assert.Equal(t, models.ChannelQueue, result.Channel)
	assert.Contains(t, result.Error, "redis down")
}

func TestDispatcherBroadcastToGroup(t *testing.T) {
	bg := &fakeBroadcastGateway{}
	d := NewDispatcher(bg, &fakeQueueGateway{}, 0, zaptest.NewLogger(t))

	err := d.BroadcastToGroup(context.Background(), "presence", "presence", map[string]string{"status": "online"})

	require.NoError(t, err)
	require.Len(t, bg.groups, 1)
	assert.Equal(t, "presence", bg.groups[0])
}
