package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePublisher struct {
	groups []string
	events []string
}

func (f *fakePublisher) PublishGroupEvent(group, event string, _ []byte) error {
	f.groups = append(f.groups, group)
	f.events = append(f.events, event)
	return nil
}

type failingPublisher struct {
	calls int
}

func (f *failingPublisher) PublishGroupEvent(string, string, []byte) error {
	f.calls++
	return errors.New("redis down")
}

// loopbackBus models Redis pub/sub for a single instance: everything published
// is delivered back to this instance's own subscriptions, exactly as Redis
// loops a publish back to a subscribed publisher.
type loopbackBus struct {
	mu       sync.Mutex
	handlers map[string][]func(event string, payload []byte)
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{handlers: make(map[string][]func(event string, payload []byte))}
}

func (b *loopbackBus) PublishGroupEvent(group, event string, payload []byte) error {
	b.mu.Lock()
	handlers := append([]func(string, []byte){}, b.handlers[group]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(event, payload)
	}
	return nil
}

func (b *loopbackBus) SubscribeGroup(group string, handler func(event string, payload []byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[group] = append(b.handlers[group], handler)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, group)
	}, nil
}

type fakeSubscriber struct {
	subscribed []string
	cancelled  []string
}

func (f *fakeSubscriber) SubscribeGroup(group string, _ func(event string, payload []byte)) (func(), error) {
	f.subscribed = append(f.subscribed, group)
	return func() { f.cancelled = append(f.cancelled, group) }, nil
}

func testClient(email string, userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Email:  email,
		Groups: []string{PresenceGroup, SubjectGroup(email)},
		send:   make(chan WSMessage, 4),
	}
}

func TestHubSendToGroupNoMembers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), &fakePublisher{}, &fakeSubscriber{})

	err := hub.SendToGroup(context.Background(), SubjectGroup("nobody@example.com"), "command", map[string]string{"command": "START"})

	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestHubSendToGroupPublishesForCrossInstanceFanout(t *testing.T) {
	pub := &fakePublisher{}
	hub := NewHub(zaptest.NewLogger(t), pub, &fakeSubscriber{})
	c := testClient("worker@example.com", uuid.New())
	hub.Register(c)

	group := SubjectGroup("worker@example.com")
	err := hub.SendToGroup(context.Background(), group, "command", map[string]string{"command": "STOP"})

	require.NoError(t, err)
	assert.Equal(t, []string{group}, pub.groups)
	assert.Equal(t, []string{"command"}, pub.events)
}

func TestHubSendToGroupDeliversExactlyOnceWithLoopback(t *testing.T) {
	bus := newLoopbackBus()
	hub := NewHub(zaptest.NewLogger(t), bus, bus)
	c := testClient("worker@example.com", uuid.New())
	hub.Register(c)

	group := SubjectGroup("worker@example.com")
	err := hub.SendToGroup(context.Background(), group, "command", map[string]string{"command": "STOP"})
	require.NoError(t, err)

	var got []WSMessage
	for {
		select {
		case msg := <-c.send:
			got = append(got, msg)
			continue
		default:
		}
		break
	}
	require.Len(t, got, 1, "client must receive the message exactly once despite the pub/sub loopback")
	assert.Equal(t, "command", got[0].Event)
}

func TestHubSendToGroupFallsBackLocallyWhenPublishFails(t *testing.T) {
	pub := &failingPublisher{}
	hub := NewHub(zaptest.NewLogger(t), pub, &fakeSubscriber{})
	c := testClient("worker@example.com", uuid.New())
	hub.Register(c)

	group := SubjectGroup("worker@example.com")
	err := hub.SendToGroup(context.Background(), group, "command", map[string]string{"command": "STOP"})

	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
	select {
	case msg := <-c.send:
		assert.Equal(t, "command", msg.Event)
	default:
		t.Fatal("local delivery must still happen when the publish fails")
	}
}

func TestHubSendToGroupDuringConnectionChurn(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil, nil)
	group := SubjectGroup("worker@example.com")
	anchor := testClient("worker@example.com", uuid.New())
	hub.Register(anchor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c := testClient("worker@example.com", uuid.New())
			hub.Register(c)
			hub.Unregister(c)
		}
	}()
	for i := 0; i < 200; i++ {
		_ = hub.SendToGroup(context.Background(), group, "command", map[string]string{"command": "PING"})
	}
	<-done
}

func TestHubRegisterSubscribesOnceAndFiresConnectHook(t *testing.T) {
	sub := &fakeSubscriber{}
	hub := NewHub(zaptest.NewLogger(t), &fakePublisher{}, sub)

	var connects, disconnects []string
	hub.SetPresenceHooks(
		func(_ uuid.UUID, email, _ string) { connects = append(connects, email) },
		func(_ uuid.UUID, email, _ string) { disconnects = append(disconnects, email) },
	)

	userID := uuid.New()
	first := testClient("worker@example.com", userID)
	second := testClient("worker@example.com", userID)
	hub.Register(first)
	hub.Register(second)

	assert.Equal(t, []string{"worker@example.com"}, connects, "hook fires only on the first connection")
	assert.ElementsMatch(t, []string{PresenceGroup, SubjectGroup("worker@example.com")}, sub.subscribed)

	hub.Unregister(first)
	assert.Empty(t, disconnects, "hook must wait for the last connection")
	hub.Unregister(second)
	assert.Equal(t, []string{"worker@example.com"}, disconnects)
	assert.ElementsMatch(t, sub.subscribed, sub.cancelled, "every group subscription is cancelled when emptied")
}

func TestHubListGroupMembers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), &fakePublisher{}, &fakeSubscriber{})

	members, err := hub.ListGroupMembers(context.Background(), PresenceGroup)
	require.NoError(t, err)
	assert.Empty(t, members, "missing group yields an empty list, not an error")

	c := testClient("worker@example.com", uuid.New())
	hub.Register(c)

	members, err = hub.ListGroupMembers(context.Background(), PresenceGroup)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, c.UserID, members[0].UserID)
	assert.Equal(t, "worker@example.com", members[0].Email)
	assert.Equal(t, 1, hub.GroupSize(PresenceGroup))
}
