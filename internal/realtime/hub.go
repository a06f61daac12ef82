package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/AngelCh415/seo-monitor/internal/metrics"
)

// Server to client events.
const (
	EventInitialData       = "initialData"
	EventSEOUpdate         = "seoUpdate"
	EventPerformanceUpdate = "performanceUpdate"
	EventError             = "error"
	EventPong              = "pong"
)

// Client to server events.
const (
	EventRequestUpdate = "requestUpdate"
	EventPing          = "ping"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub keeps the connected dashboard sessions and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	quitOnce   sync.Once
	mu         sync.RWMutex
	log        *slog.Logger

	onRequest func()
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		log:        log,
	}
}

// OnRequest sets the handler run when a client sends requestUpdate.
func (h *Hub) OnRequest(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRequest = fn
}

func (h *Hub) requestUpdate() {
	h.mu.RLock()
	fn := h.onRequest
	h.mu.RUnlock()
	if fn == nil {
		h.log.Warn("requestUpdate ignored, no handler")
		return
	}
	fn()
}

// Serve runs the hub until ctx is done and then closes every client.
// Lifecycle events are drained before broadcasts.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.broadcastToClients(m)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.RealtimeClients.Set(float64(n))
	h.log.Info("realtime client connected", slog.Int("clients", n))
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.RealtimeClients.Set(float64(n))
	h.log.Info("realtime client disconnected", slog.Int("clients", n))
}

func (h *Hub) shutdown() {
	h.quitOnce.Do(func() { close(h.quit) })
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.RealtimeClients.Set(0)
	h.log.Info("realtime hub stopped", slog.Int("clients_closed", n))
}

// broadcastToClients delivers m in connection order. A client whose send
// buffer is full is dropped.
func (h *Hub) broadcastToClients(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- m:
		default:
			close(c.send)
			delete(h.clients, c)
			h.log.Warn("dropping slow realtime client", slog.Uint64("client", c.id))
		}
	}
	metrics.RealtimeClients.Set(float64(len(h.clients)))
}

// Broadcast queues an event for every connected client. It never blocks; when
// the queue is full the event is dropped.
func (h *Hub) Broadcast(eventType string, data any) {
	select {
	case h.broadcast <- Message{Type: eventType, Data: data}:
	default:
		h.log.Warn("broadcast queue full, dropping event", slog.String("type", eventType))
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
