// Package broadcast fans engine events out to connected observers. Observers
// subscribe to country rooms; every observer also receives the global feed.
// A slow observer is dropped rather than allowed to stall the rest.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/borderwars/server/internal/events"
)

// Hub tracks connected observers and their room subscriptions. It implements
// game.EventSink.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

// Register adds a connected observer. Returns false after Close.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = true
	h.log.Debug("observer connected", "observers", len(h.clients))
	return true
}

// Unregister removes an observer from the hub and every room it was in.
// Rooms the observer leaves are told about the departure.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	h.dropLocked(c)
	h.log.Debug("observer disconnected", "observers", len(h.clients))
}

// Subscribe adds the observer to a country room.
func (h *Hub) Subscribe(c *Client, countryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	room := h.rooms[countryID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[countryID] = room
	}
	room[c] = true
}

// Unsubscribe removes the observer from a country room and notifies the
// remaining members.
func (h *Hub) Unsubscribe(c *Client, countryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[countryID]
	if room == nil || !room[c] {
		return
	}
	delete(room, c)
	h.notifyDepartureLocked(countryID, room)
}

// Broadcast sends an event to every observer subscribed to a country room.
func (h *Hub) Broadcast(countryID string, e events.Event) {
	data, err := e.Marshal()
	if err != nil {
		h.log.Error("failed to encode room event", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[countryID] {
		h.sendLocked(c, data)
	}
}

// BroadcastGlobal sends an event to every connected observer.
func (h *Hub) BroadcastGlobal(e events.Event) {
	data, err := e.Marshal()
	if err != nil {
		h.log.Error("failed to encode global event", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.sendLocked(c, data)
	}
}

// Stats returns the number of connected observers and non-empty rooms.
func (h *Hub) Stats() (observers, rooms int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		if len(room) > 0 {
			rooms++
		}
	}
	return len(h.clients), rooms
}

// Close disconnects every observer and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.rooms = make(map[string]map[*Client]bool)
}

// deliver queues a frame for one observer if it is still registered. The
// send channel is closed under h.mu, so every write to it has to happen
// under h.mu too.
func (h *Hub) deliver(c *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	h.sendLocked(c, data)
}

// sendLocked queues a frame for one observer. A full send buffer means the
// observer cannot keep up; it is dropped on the spot.
func (h *Hub) sendLocked(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn("dropping slow observer", "buffered", len(c.send))
		h.dropLocked(c)
	}
}

// dropLocked removes an observer from the client set and every room,
// notifying each room it leaves. Caller holds h.mu.
func (h *Hub) dropLocked(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	for countryID, room := range h.rooms {
		if room[c] {
			delete(room, c)
			h.notifyDepartureLocked(countryID, room)
		}
	}
}

// notifyDepartureLocked tells the remaining members of a room that an
// observer left. Caller holds h.mu.
func (h *Hub) notifyDepartureLocked(countryID string, room map[*Client]bool) {
	e := events.New(events.TypeObserverLeft, time.Now(), events.ObserverLeft{
		CountryID: countryID,
		Remaining: len(room),
	})
	data, err := e.Marshal()
	if err != nil {
		h.log.Error("failed to encode departure event", "error", err)
		return
	}
	for c := range room {
		select {
		case c.send <- data:
		default:
			// Already overloaded; the next broadcast will drop it.
		}
	}
}
