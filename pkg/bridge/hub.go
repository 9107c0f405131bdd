// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// hub maintains the connected clients and fans device packets out to them.
type hub struct {
	// Registered clients
	clients map[*client]bool

	// Packets read from the device
	broadcast chan []byte

	register   chan *client
	unregister chan *client
	// closed when run returns
	done chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// run is the hub event loop. On return every client send channel is closed.
func (h *hub) run(ctx context.Context) {
	h.logger.Debug("hub started")
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		h.logger.Debug("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered",
				zap.String("client", c.id.String()),
				zap.String("remote_addr", c.conn.RemoteAddr().String()),
				zap.Int("total_clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("client unregistered",
					zap.String("client", c.id.String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case packet := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- packet:
				default:
					// Slow client
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("client send buffer full, unregistering",
						zap.String("client", c.id.String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// publish queues a device packet for every client. Packets are dropped when
// the hub is backed up.
func (h *hub) publish(packet []byte) bool {
	select {
	case h.broadcast <- packet:
		return true
	default:
		h.logger.Warn("hub broadcast channel full, packet dropped")
		return false
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
