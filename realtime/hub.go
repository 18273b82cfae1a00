package realtime

import (
	"context"
	"sync"

	"github.com/branchmux/branchmux/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// RoomTimeline is the global room every connection joins, authenticated
	// or anonymous.
	RoomTimeline = "timeline"

	// sendBuffer bounds the per-connection event queue. A slow consumer drops
	// events instead of blocking the publisher; the durable row is the source
	// of truth, the channel is an overlay.
	sendBuffer = 16
)

// UserRoom is the private room only the user's own connection joins. It
// carries notification and message-alert delivery.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom names the pairwise room for two users. Participant ids are
// ordered canonically so both directions resolve to the same room regardless
// of who initiates.
func ConversationRoom(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "conversation:" + a + ":" + b
}

// Connection is a single live client connection. Events delivered to any of
// the connection's rooms arrive on its channel; the gateway owns the read
// side and forwards frames onto the wire.
type Connection struct {
	Id     string
	UserID string // empty for anonymous connections

	events chan *model.Event
	rooms  map[string]bool
	closed bool
}

// Events is the receive side of the connection's delivery queue. The channel
// is closed when the connection is evicted or disconnected.
func (c *Connection) Events() <-chan *model.Event {
	return c.events
}

// Anonymous reports whether the connection carries no identity.
func (c *Connection) Anonymous() bool {
	return c.UserID == ""
}

/*
Hub owns room membership and presence for all live connections.

All internal state is shared mutable state across concurrent connection
handlers and must not be touched directly; every interaction goes through the
public receivers, which serialize access behind the mutex. Adding/removing a
connection or a room membership grabs the write lock, while broadcasting grabs
a read lock.

Presence tracks a single active connection per user: a reconnect overwrites
the previous entry and evicts the stale connection.
*/
type Hub struct {
	mu sync.RWMutex

	// conns maps connection id to connection, for all live connections.
	conns map[string]*Connection

	// active maps user id to the user's single active connection id.
	active map[string]string

	// rooms maps room name to the member connections, keyed by connection id
	// so that removal is O(1).
	rooms map[string]map[string]*Connection
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*Connection),
		active: make(map[string]string),
		rooms:  make(map[string]map[string]*Connection),
	}
}

// Connect registers a new connection and joins it to the rooms its identity
// warrants: timeline always, the user's private room when authenticated. An
// authenticated reconnect evicts the user's previous connection. The
// connection is torn down when ctx terminates, or earlier via Disconnect.
//
// Thread-safe.
func (h *Hub) Connect(ctx context.Context, userID string) *Connection {
	conn := &Connection{
		Id:     "conn_" + uuid.New().String(),
		UserID: userID,
		events: make(chan *model.Event, sendBuffer),
		rooms:  make(map[string]bool),
	}

	h.mu.Lock()
	if userID != "" {
		if prevID, ok := h.active[userID]; ok {
			if prev, ok := h.conns[prevID]; ok {
				h.removeLocked(prev)
			}
		}
		h.active[userID] = conn.Id
	}
	h.conns[conn.Id] = conn
	h.joinLocked(conn, RoomTimeline)
	if userID != "" {
		h.joinLocked(conn, UserRoom(userID))
	}
	h.mu.Unlock()

	// Background garbage collector: release everything when the connection's
	// context terminates.
	go h.cleanUp(ctx, conn)

	return conn
}

// cleanUp tears a connection down when its context terminates.
func (h *Hub) cleanUp(ctx context.Context, conn *Connection) {
	<-ctx.Done()
	h.Disconnect(conn)
}

// Disconnect removes the connection from every room and clears the user's
// presence entry when this connection is still the active one. Safe to call
// more than once.
//
// Thread-safe.
func (h *Hub) Disconnect(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(conn)
}

func (h *Hub) removeLocked(conn *Connection) {
	if conn.closed {
		return
	}
	conn.closed = true

	for room := range conn.rooms {
		h.leaveLocked(conn, room)
	}
	delete(h.conns, conn.Id)
	if conn.UserID != "" && h.active[conn.UserID] == conn.Id {
		delete(h.active, conn.UserID)
	}
	close(conn.events)
}

// JoinRoom adds the connection to a named room. Thread-safe.
func (h *Hub) JoinRoom(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn.closed {
		return
	}
	h.joinLocked(conn, room)
}

// LeaveRoom removes the connection from a named room. Thread-safe.
func (h *Hub) LeaveRoom(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, room)
}

func (h *Hub) joinLocked(conn *Connection, room string) {
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Connection)
	}
	h.rooms[room][conn.Id] = conn
	conn.rooms[room] = true
}

func (h *Hub) leaveLocked(conn *Connection, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, conn.Id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(conn.rooms, room)
}

// IsOnline is a pure presence lookup: whether the user currently has an
// active connection. Thread-safe.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.active[userID]
	return ok
}

// ActiveConnectionCount returns the number of live connections. Thread-safe.
func (h *Hub) ActiveConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast delivers an event to every member of the room, except the
// connection whose id equals excludeConnID (pass "" to deliver to all).
// Delivery is non-blocking: a member with a saturated queue is skipped.
//
// Thread-safe.
func (h *Hub) Broadcast(room string, ev *model.Event, excludeConnID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok || len(members) == 0 {
		return errors.New("no active connection in room: " + room)
	}
	for _, conn := range members {
		if conn.Id == excludeConnID {
			continue
		}
		select {
		case conn.events <- ev:
		default:
			// Queue full: drop for this member rather than block the
			// publisher.
		}
	}
	return nil
}
