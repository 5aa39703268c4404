// Package hub implements the process-wide client registry: one outbound
// text-frame queue per connected client, fanned out to by broadcast.
package hub

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wrath-codes/amp-extras/internal/amperr"
)

// ClientID is a monotonically increasing identifier, unique for the life
// of the process.
type ClientID uint64

var nextClientID atomic.Uint64

// NextClientID returns the next process-unique client id.
func NextClientID() ClientID {
	return ClientID(nextClientID.Add(1))
}

// Hub is the many-writer, many-reader registry of client outbound queues.
// The mutex guards only the map itself; broadcast never holds it across a
// blocking send, so one slow client cannot stall delivery to the others.
type Hub struct {
	mu      sync.Mutex
	clients map[ClientID]chan string
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{clients: make(map[ClientID]chan string)}
}

// Register inserts id's outbound queue.
func (h *Hub) Register(id ClientID, outbound chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = outbound
}

// Unregister removes id's outbound queue, if present.
func (h *Hub) Unregister(id ClientID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast enqueues text on every registered client's outbound queue. A
// client whose queue is full or whose channel is no longer drained is
// silently skipped: a dead or slow peer is the connection FSM's problem to
// detect via heartbeat, not broadcast's.
func (h *Hub) Broadcast(text string) {
	h.mu.Lock()
	queues := make([]chan string, 0, len(h.clients))
	for _, q := range h.clients {
		queues = append(queues, q)
	}
	h.mu.Unlock()

	for _, q := range queues {
		select {
		case q <- text:
		default:
		}
	}
}

// SendToClient enqueues text on a single client's outbound queue.
func (h *Hub) SendToClient(id ClientID, text string) error {
	h.mu.Lock()
	q, ok := h.clients[id]
	h.mu.Unlock()
	if !ok {
		return amperr.New(amperr.KindHubError, fmt.Sprintf("client %d is not registered", id))
	}
	select {
	case q <- text:
	default:
	}
	return nil
}
