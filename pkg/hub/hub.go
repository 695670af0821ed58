// Package hub fans messages out to websocket viewers.
//
// Each hub owns one stream (video, snapshots, plan) and never blocks the
// publisher: a viewer whose queue is full is dropped instead of stalling
// playback.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-trajectory/internal/log"
)

const broadcastBuffer = 256

// Hub manages websocket clients for a single stream.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	running bool
	sticky  bool
	last    *Message
	sent    uint64
	dropped uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithSticky makes the hub remember its most recent message and send it to
// every client on connect, so a late viewer sees the current plan or frame
// without waiting for the next one.
func WithSticky() Option {
	return func(h *Hub) { h.sticky = true }
}

// New creates a hub. Call Run to start dispatching.
func New(name string, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     log.Component(logger, "hub").With("hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the stream name.
func (h *Hub) Name() string {
	return h.name
}

// Run dispatches until ctx is canceled. All clients are disconnected on
// return. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	h.logger.Debug("hub started")

	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.running = false
		h.mu.Unlock()
		close(h.done)
		h.logger.Debug("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			if h.sticky && h.last != nil {
				select {
				case client.send <- *h.last:
				default:
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) dispatch(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sticky {
		m := msg
		h.last = &m
	}
	for client := range h.clients {
		select {
		case client.send <- msg:
			h.sent++
		default:
			// Slow client, drop it.
			delete(h.clients, client)
			close(client.send)
			h.dropped++
			h.logger.Warn("dropping slow client", "clients", len(h.clients))
		}
	}
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is discarded.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Debug("broadcast queue full, message dropped", "type", msg.Kind())
		return false
	}
}

// BroadcastJSON marshals v and broadcasts it as a text frame.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Text(data))
	return nil
}

// BroadcastBinary broadcasts raw bytes such as an encoded image.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Binary(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Stats holds delivery counters.
type Stats struct {
	Name    string `json:"name"`
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns delivery counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Name: h.name, Clients: len(h.clients), Sent: h.sent, Dropped: h.dropped}
}
