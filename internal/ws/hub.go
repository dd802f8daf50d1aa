package ws

import (
	"sync"
)

// Conn is a live client connection as seen by the hub.
type Conn interface {
	ID() string
	UserID() string
	// Send queues ev for delivery without blocking.
	Send(ev Outbound) error
	Close() error
}

// Hub maintains live connections and chat rooms.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
	rooms map[string]map[string]struct{} // chatID -> connIDs
	joins map[string]map[string]struct{} // connID -> chatIDs
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]Conn),
		rooms: make(map[string]map[string]struct{}),
		joins: make(map[string]map[string]struct{}),
	}
}

// Add registers a live connection in no rooms.
func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
	if _, ok := h.joins[c.ID()]; !ok {
		h.joins[c.ID()] = make(map[string]struct{})
	}
}

// Remove drops the connection from every room. It reports whether the
// connection was still registered.
func (h *Hub) Remove(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[connID]; !ok {
		return false
	}
	for chatID := range h.joins[connID] {
		if members, ok := h.rooms[chatID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	delete(h.joins, connID)
	delete(h.conns, connID)
	return true
}

func (h *Hub) lookup(connID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	return c, ok
}

// Join subscribes a registered connection to the chat rooms. Unknown
// connections are ignored.
func (h *Hub) Join(connID string, chatIDs ...string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[connID]; !ok {
		return false
	}
	for _, chatID := range chatIDs {
		members, ok := h.rooms[chatID]
		if !ok {
			members = make(map[string]struct{})
			h.rooms[chatID] = members
		}
		members[connID] = struct{}{}
		h.joins[connID][chatID] = struct{}{}
	}
	return true
}

func (h *Hub) IsSubscribed(connID, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[chatID][connID]
	return ok
}

// Members snapshots the connections in a room. Callers send on the
// snapshot without holding the hub lock.
func (h *Hub) Members(chatID string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[chatID]
	out := make([]Conn, 0, len(members))
	for connID := range members {
		if c, ok := h.conns[connID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// roomsOf lists the chats a connection is subscribed to.
func (h *Hub) roomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.joins[connID]))
	for chatID := range h.joins[connID] {
		out = append(out, chatID)
	}
	return out
}

func (h *Hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
