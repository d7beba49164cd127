// Package fanout broadcasts membership and document events to live client
// connections, grouped into per-organization rooms. It is an in-memory
// pub/sub with no persistence, ordering, or delivery guarantee: the engine
// is correct without it, clients just refresh faster with it.
package fanout

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/inkwellhq/inkwell/internal/obs"
)

const defaultSendBuffer = 16

var ErrNotStarted = errors.New("fanout: hub not started")

// Conn is one authenticated live connection. The transport layer drains
// Events() onto the wire; a full buffer means drops, never backpressure
// into the engine.
type Conn struct {
	userID string
	events chan Event
}

func (c *Conn) UserID() string       { return c.userID }
func (c *Conn) Events() <-chan Event { return c.events }

// Hub owns connections and organization rooms. It has a two-phase
// lifecycle: construct with New, then Start before accepting connections.
// Emitting on an unstarted hub logs and drops instead of failing the caller.
type Hub struct {
	verifier   TokenVerifier
	log        *slog.Logger
	sendBuffer int

	mu      sync.RWMutex
	started bool
	rooms   map[string]map[*Conn]struct{}
	// joined mirrors rooms per connection so a disconnect can leave
	// everything without scanning all rooms.
	joined map[*Conn]map[string]struct{}
}

func New(verifier TokenVerifier, logger *slog.Logger) *Hub {
	return &Hub{
		verifier:   verifier,
		log:        logger,
		sendBuffer: defaultSendBuffer,
		rooms:      make(map[string]map[*Conn]struct{}),
		joined:     make(map[*Conn]map[string]struct{}),
	}
}

// Start makes the hub accept connections and deliver broadcasts.
func (h *Hub) Start() {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	h.log.Info("fanout hub started")
}

// Stop disconnects everyone and returns the hub to its unstarted state.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.joined {
		close(c.events)
	}
	h.rooms = make(map[string]map[*Conn]struct{})
	h.joined = make(map[*Conn]map[string]struct{})
	h.started = false
	h.log.Info("fanout hub stopped")
}

// Connect authenticates the handshake token and registers a connection.
// Connections carry their user identity for their whole lifetime.
func (h *Hub) Connect(token string) (*Conn, error) {
	userID, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Warn("fanout connection refused", slog.Any("error", err))
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil, ErrNotStarted
	}

	c := &Conn{
		userID: userID,
		events: make(chan Event, h.sendBuffer),
	}
	h.joined[c] = make(map[string]struct{})

	h.log.Debug("fanout connection established", slog.String("user_id", userID))
	return c, nil
}

// Disconnect leaves all rooms and closes the connection's event channel.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	groups, ok := h.joined[c]
	if !ok {
		return
	}
	for room := range groups {
		h.leaveLocked(c, room)
	}
	delete(h.joined, c)
	close(c.events)
}

// Join subscribes the connection to an organization room. Room membership
// is an explicit client opt-in per organization being viewed; it is not
// derived from database membership.
func (h *Hub) Join(c *Conn, orgID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	groups, ok := h.joined[c]
	if !ok {
		return ErrNotStarted
	}

	room := roomKey(orgID)
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	groups[room] = struct{}{}
	return nil
}

// Leave unsubscribes the connection from an organization room.
func (h *Hub) Leave(c *Conn, orgID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if groups, ok := h.joined[c]; ok {
		room := roomKey(orgID)
		h.leaveLocked(c, room)
		delete(groups, room)
	}
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// DocumentGenerated announces a freshly generated document to the
// organization's room.
func (h *Hub) DocumentGenerated(orgID string, p DocumentGeneratedPayload) {
	h.broadcast(orgID, Event{Name: EventDocumentGenerated, OrgID: orgID, Payload: p})
}

// MemberJoined announces a new membership.
func (h *Hub) MemberJoined(orgID string, p MemberJoinedPayload) {
	h.broadcast(orgID, Event{Name: EventMemberJoined, OrgID: orgID, Payload: p})
}

// MemberRoleUpdated announces a role change.
func (h *Hub) MemberRoleUpdated(orgID string, p MemberRoleUpdatedPayload) {
	h.broadcast(orgID, Event{Name: EventMemberRoleUpdated, OrgID: orgID, Payload: p})
}

// MemberRemoved announces a removed membership.
func (h *Hub) MemberRemoved(orgID string, p MemberRemovedPayload) {
	h.broadcast(orgID, Event{Name: EventMemberRemoved, OrgID: orgID, Payload: p})
}

func (h *Hub) broadcast(orgID string, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.started {
		h.log.Warn("fanout emit on unstarted hub, dropping",
			slog.String("event", evt.Name),
			slog.String("org_id", orgID),
		)
		return
	}

	obs.FanoutEventsEmitted.WithLabelValues(evt.Name).Inc()

	for c := range h.rooms[roomKey(orgID)] {
		select {
		case c.events <- evt:
		default:
			// Slow or stalled consumer: drop rather than block the engine.
			obs.FanoutEventsDropped.Inc()
			h.log.Debug("fanout delivery dropped",
				slog.String("event", evt.Name),
				slog.String("user_id", c.userID),
			)
		}
	}
}

func roomKey(orgID string) string { return "org:" + orgID }
