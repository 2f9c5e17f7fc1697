package websocket

import (
	"sync"

	"cadence/metrics"
	"cadence/types"

	"github.com/rs/zerolog"
)

// SnapshotFunc returns the event every new observer receives first
type SnapshotFunc func() types.Event

// Hub interface defines the methods for managing live channel observers
type Hub interface {
	Run()
	Stop()
	Publish(event types.Event)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
	SetSnapshot(fn SnapshotFunc)
	ClientCount() int
}

// hub maintains the set of active clients and broadcasts events to them
type hub struct {
	// Registered clients
	clients map[*Client]bool

	// Events waiting to be fanned out, in publish order
	broadcast chan types.Event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed by Stop
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	snapshot SnapshotFunc
	count    int

	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewHub creates a new live channel hub
func NewHub(m *metrics.Metrics, log zerolog.Logger) Hub {
	return &hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan types.Event, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		log:        log,
	}
}

// Run starts the hub's main event loop and returns after Stop
func (h *hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if snap := h.snapshotFunc(); snap != nil {
				select {
				case client.send <- snap():
				default:
				}
			}
			h.setCount()
			h.log.Debug().Int("clients", len(h.clients)).Msg("observer connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount()
				h.log.Debug().Int("clients", len(h.clients)).Msg("observer disconnected")
			}

		case event := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					// too slow to keep up; its writePump closes the socket
					close(client.send)
					delete(h.clients, client)
					h.log.Warn().Msg("dropping slow observer")
				}
			}
			h.setCount()

		case <-h.done:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setCount()
			return
		}
	}
}

// Stop ends the event loop and disconnects every client
func (h *hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Publish queues an event for every connected client. It blocks while the
// broadcast buffer is full so events are never reordered or lost.
func (h *hub) Publish(event types.Event) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SetSnapshot sets the event sent to newly registered clients
func (h *hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// ClientCount returns the number of connected clients
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *hub) snapshotFunc() SnapshotFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot
}

func (h *hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ConnectedObservers.Set(float64(len(h.clients)))
	}
}
