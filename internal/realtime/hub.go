// Package realtime fans stick events out to connected companion clients.
// Each stick has one room; a client may only join the room of the stick in
// its credential.
package realtime

import (
	"encoding/json"
	"sync"

	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/metrics"
)

const sendBuffer = 32

type Client struct {
	stickID string
	send    chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(stickID string) *Client {
	return &Client{
		stickID: stickID,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

func (h *Hub) join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(room, c)
}

func (h *Hub) leaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.rooms {
		h.removeLocked(room, c)
	}
}

func (h *Hub) removeLocked(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers ev to every client in its room. A client whose send
// buffer is full is disconnected rather than stalling the others.
func (h *Hub) Broadcast(ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error(err, "Failed to encode realtime event", "room", ev.Room)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[ev.Room]))
	for c := range h.rooms[ev.Room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case c.send <- payload:
		default:
			log.Warn("Realtime client too slow, disconnecting", "room", ev.Room)
			metrics.DispatchDropped.WithLabelValues("realtime").Inc()
			c.close()
		}
	}
}
