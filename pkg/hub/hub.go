package hub

import (
	"context"
	"log/slog"
	"sync"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// mu guards count for readers outside Run.
	mu    sync.RWMutex
	count int
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithBufferSize sets how many broadcasts may queue before new ones are
// dropped. Default: 256.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.broadcast = make(chan Message, n)
		}
	}
}

// New creates a Hub. Call Run to start it.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run is the hub's main loop. When ctx is cancelled every client's send
// channel is closed, which makes its write pump send a close frame.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			n := h.setCount()
			h.logger.Info("client connected", "clients", n)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
			}
			n := h.setCount()
			h.logger.Info("client disconnected", "clients", n)

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// too slow to keep up
					h.drop(client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.setCount()
		}
	}
}

// drop must only be called from Run.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) setCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count = len(h.clients)
	return h.count
}

// Broadcast queues msg for every client. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastEvent encodes and broadcasts an Event.
func (h *Hub) BroadcastEvent(typ string, v any) error {
	msg, err := EncodeEvent(typ, v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
