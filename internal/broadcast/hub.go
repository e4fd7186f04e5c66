package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PresenceGroup is the shared group every dashboard and subject joins;
	// presence events fan out here.
	PresenceGroup = "presence"

	subjectGroupPrefix = "subject:"
)

// ErrGroupNotFound is returned when a send targets a group with no live members.
var ErrGroupNotFound = errors.New("broadcast group not found")

// SubjectGroup returns the dedicated group name for a subject.
func SubjectGroup(email string) string {
	return subjectGroupPrefix + email
}

// GroupMember is one live connection in a group.
type GroupMember struct {
	ConnectionID string    `json:"connection_id"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
}

// PresenceHook is called when a user's first connection joins (connect) or its
// last connection leaves (disconnect).
type PresenceHook func(userID uuid.UUID, email, fullName string)

// Hub maintains group -> set of connections and fans out messages. Cross-instance
// delivery goes through Redis pub/sub: local broadcast + publish per group.
type Hub struct {
	// group -> map[connectionID]*Client
	groups       map[string]map[string]*Client
	subs         map[string]func() // cancel Redis subscription per group
	mu           sync.RWMutex
	logger       *zap.Logger
	redis        Publisher
	redisSub     Subscriber
	onConnect    PresenceHook
	onDisconnect PresenceHook
}

// Publisher is the interface for publishing to Redis (for cross-instance fan-out).
type Publisher interface {
	PublishGroupEvent(group string, event string, payload []byte) error
}

// Subscriber subscribes to group channels and invokes handler for incoming events.
type Subscriber interface {
	SubscribeGroup(group string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub Publisher, redisSub Subscriber) *Hub {
	return &Hub{
		groups:   make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetPresenceHooks sets the callbacks fired on a user's first connect and last
// disconnect. These are the legitimate presence transitions; reconciliation
// corrections never fire them.
func (h *Hub) SetPresenceHooks(onConnect, onDisconnect PresenceHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = onConnect
	h.onDisconnect = onDisconnect
}

// Register adds a client to its groups. Starts a Redis subscription for each
// group whose first member this is, and fires the connect hook if this is the
// user's first live connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	firstConn := !h.userConnectedLocked(c.UserID)
	for _, g := range c.Groups {
		if h.groups[g] == nil {
			h.groups[g] = make(map[string]*Client)
			if h.redisSub != nil {
				group := g
				cancel, err := h.redisSub.SubscribeGroup(group, func(event string, payload []byte) {
					h.deliverLocal(group, event, payload)
				})
				if err == nil {
					h.subs[group] = cancel
				}
			}
		}
		h.groups[g][c.ID] = c
	}
	onConnect := h.onConnect
	h.mu.Unlock()

	if firstConn && onConnect != nil {
		onConnect(c.UserID, c.Email, c.FullName)
	}
	h.logger.Debug("client joined", zap.String("connection_id", c.ID), zap.String("email", c.Email))
}

// Unregister removes a client from its groups. Cancels the Redis subscription
// when the last member of a group leaves, and fires the disconnect hook when
// the user has no live connections left.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for _, g := range c.Groups {
		if m, ok := h.groups[g]; ok {
			delete(m, c.ID)
			if len(m) == 0 {
				delete(h.groups, g)
				if cancel, ok := h.subs[g]; ok {
					cancel()
					delete(h.subs, g)
				}
			}
		}
	}
	lastConn := !h.userConnectedLocked(c.UserID)
	onDisconnect := h.onDisconnect
	h.mu.Unlock()

	if lastConn && onDisconnect != nil {
		onDisconnect(c.UserID, c.Email, c.FullName)
	}
	h.logger.Debug("client left", zap.String("connection_id", c.ID), zap.String("email", c.Email))
}

// userConnectedLocked reports whether any live connection belongs to userID.
// Caller must hold h.mu.
func (h *Hub) userConnectedLocked(userID uuid.UUID) bool {
	for _, clients := range h.groups {
		for _, c := range clients {
			if c.UserID == userID {
				return true
			}
		}
	}
	return false
}

// deliverLocal sends a message to all local clients in a group. The member set
// is snapshotted under the read lock; sends happen outside it so a concurrent
// register or unregister cannot mutate the map mid-iteration.
func (h *Hub) deliverLocal(group, event string, payload []byte) {
	msg := WSMessage{Event: event, Data: payload}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// SendToGroup delivers a structured message to every member of a group, local
// and cross-instance. The message goes out through Redis only; each instance,
// this one included, delivers to its local clients via its own subscription
// callback, so no client receives the message twice. Local delivery happens
// directly when no publisher is configured or the publish fails. A group with
// no live members is a delivery failure so callers can fall back to the
// durable channel.
func (h *Hub) SendToGroup(ctx context.Context, group, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	_, exists := h.groups[group]
	h.mu.RUnlock()
	if !exists {
		return ErrGroupNotFound
	}

	if h.redis != nil {
		if err := h.redis.PublishGroupEvent(group, event, data); err != nil {
			h.logger.Warn("redis publish failed, delivering locally", zap.String("group", group), zap.Error(err))
			h.deliverLocal(group, event, data)
		}
		return ctx.Err()
	}
	h.deliverLocal(group, event, data)
	return ctx.Err()
}

// BroadcastToGroup is SendToGroup under the name consumers such as
// presence.GroupBroadcaster expect.
func (h *Hub) BroadcastToGroup(ctx context.Context, group, event string, payload any) error {
	return h.SendToGroup(ctx, group, event, payload)
}

// ListGroupMembers enumerates the live connections in a group. A group that
// does not exist yields an empty list, not an error.
func (h *Hub) ListGroupMembers(ctx context.Context, group string) ([]GroupMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.groups[group]
	members := make([]GroupMember, 0, len(clients))
	for _, c := range clients {
		members = append(members, GroupMember{ConnectionID: c.ID, UserID: c.UserID, Email: c.Email})
	}
	return members, nil
}

// GroupSize returns the number of local connections in a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
