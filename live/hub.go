// Package live fans discussion events out to clients watching an article.
// Each article has a room owned by one goroutine; joins, leaves and
// broadcasts are messages processed in order by that goroutine, which is what
// gives every subscriber of a room the same event order. Rooms are
// independent of each other. Delivery is best-effort: there is no replay, and
// a subscriber that cannot keep up is dropped, never the publisher.
package live

import (
	"log/slog"
	"sync"
)

type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// Conn is one live client connection. Send must not block indefinitely;
// returning an error removes the connection from its room.
type Conn interface {
	Send(event Event) error
}

type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	byConn map[Conn]string
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]*room),
		byConn: make(map[Conn]string),
	}
}

// roomQueueSize bounds the per-room backlog. A full queue only drops
// broadcasts, never membership changes.
const roomQueueSize = 256

type room struct {
	articleID string
	msgs      chan any
	// members is maintained by the hub under its lock; the room goroutine
	// keeps its own authoritative set.
	members int
}

type joinMsg struct{ conn Conn }

type leaveMsg struct{ conn Conn }

type broadcastMsg struct{ event Event }

// Subscribe attaches the connection to the article's room, detaching it from
// any room it was in before. A connection watches at most one article.
func (h *Hub) Subscribe(conn Conn, articleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.byConn[conn]
	if ok {
		if current == articleID {
			return
		}

		h.detach(conn, current)
	}

	r, ok := h.rooms[articleID]
	if !ok {
		r = &room{
			articleID: articleID,
			msgs:      make(chan any, roomQueueSize),
		}
		h.rooms[articleID] = r

		go r.run()
	}

	h.byConn[conn] = articleID
	r.members++
	r.msgs <- joinMsg{conn: conn}
}

// Unsubscribe detaches the connection from its room, if any. Safe to call
// for connections that never subscribed.
func (h *Hub) Unsubscribe(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	articleID, ok := h.byConn[conn]
	if !ok {
		return
	}

	h.detach(conn, articleID)
}

// detach must be called with the hub lock held.
func (h *Hub) detach(conn Conn, articleID string) {
	delete(h.byConn, conn)

	r, ok := h.rooms[articleID]
	if !ok {
		return
	}

	r.msgs <- leaveMsg{conn: conn}
	r.members--

	if r.members <= 0 {
		close(r.msgs)
		delete(h.rooms, articleID)
	}
}

// Publish enqueues an event for the article's room. Without subscribers the
// event is discarded; nobody is waiting for it and there is no replay.
func (h *Hub) Publish(articleID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[articleID]
	if !ok {
		return
	}

	select {
	case r.msgs <- broadcastMsg{event: event}:
	default:
		slog.Warn("room queue full, dropping event", "articleId", articleID, "event", event.Name)
	}
}

func (r *room) run() {
	members := make(map[Conn]struct{})

	for msg := range r.msgs {
		switch m := msg.(type) {
		case joinMsg:
			members[m.conn] = struct{}{}
		case leaveMsg:
			delete(members, m.conn)
		case broadcastMsg:
			for conn := range members {
				err := conn.Send(m.event)
				if err != nil {
					// Drop the subscriber locally; its transport will
					// unsubscribe it from the hub when it notices.
					slog.Warn("dropping subscriber", "articleId", r.articleID, "error", err)
					delete(members, conn)
				}
			}
		}
	}
}
