// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package bridge serves one locally attached device to remote clients over
// websocket. Every binary message is one control packet: clients send
// requests, and every packet the device produces is sent to every client.
package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
)

// Config configures a Bridge.
type Config struct {
	// Username and Password enable HTTP Basic auth when both are set.
	Username string
	Password string
}

// Status is reported by the status endpoint.
type Status struct {
	Device    string `json:"device"`
	Clients   int    `json:"clients"`
	Requests  uint64 `json:"requests"`
	Responses uint64 `json:"responses"`
	Unknown   uint64 `json:"unknown"`
}

// Bridge connects a device link to websocket clients.
type Bridge struct {
	link   driver.Link
	cfg    Config
	hub    *hub
	stats  *control.Statistics
	logger *zap.Logger

	upgrader websocket.Upgrader
	writeMu  sync.Mutex
}

// New creates a bridge for link. Run must be called before clients connect.
func New(link driver.Link, cfg Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("device", link.String()))
	return &Bridge{
		link:   link,
		cfg:    cfg,
		hub:    newHub(logger),
		stats:  control.NewStatistics(),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run pumps device packets to the clients until ctx is cancelled or the
// link fails.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.hub.run(gctx)
		return nil
	})
	g.Go(func() error {
		return b.pumpDevice(gctx)
	})
	return g.Wait()
}

func (b *Bridge) pumpDevice(ctx context.Context) error {
	buf := make([]byte, control.MaxPacketSize)
	for {
		n, err := b.link.ReadContext(ctx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("device read failed: %w", err)
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		b.stats.Response(control.DecodeResponse(packet))
		b.hub.publish(packet)
	}
}

// forward writes a client request to the device.
func (b *Bridge) forward(c *client, data []byte) {
	req := control.DecodeRequest(data)
	b.stats.Request(req)
	if _, ok := req.(control.Unknown); ok {
		c.logger.Warn("dropping unknown request", zap.String("packet", control.FormatPacket(req)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	b.writeMu.Lock()
	_, err := b.link.WriteContext(ctx, data)
	b.writeMu.Unlock()
	if err != nil {
		c.logger.Error("device write failed", zap.Error(err))
		return
	}
	c.logger.Debug("request forwarded", zap.String("packet", control.FormatPacket(req)))
}

func (b *Bridge) authorized(r *http.Request) bool {
	if b.cfg.Username == "" || b.cfg.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(b.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(b.cfg.Password)) == 1
	return userOK && passOK
}

// ServeHTTP upgrades an authorized request to a websocket client.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		b.logger.Warn("unauthorized connection attempt", zap.String("remote_addr", r.RemoteAddr))
		w.Header().Set("WWW-Authenticate", `Basic realm="an26sim"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	c := &client{
		id:     uuid.New(),
		bridge: b,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	c.logger = b.logger.With(zap.String("client", c.id.String()))

	select {
	case b.hub.register <- c:
	case <-b.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Status returns a snapshot of the bridge state.
func (b *Bridge) Status() Status {
	counters := b.stats.Snapshot()
	return Status{
		Device:    b.link.String(),
		Clients:   b.hub.count(),
		Requests:  counters.Requests,
		Responses: counters.Responses,
		Unknown:   counters.Unknown,
	}
}

// Handler serves the websocket endpoint at / and a JSON status at /status.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", b)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.Status())
	})
	return mux
}

// ListenAndServe runs the bridge and an HTTP server on addr until ctx is
// cancelled.
func (b *Bridge) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return b.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (b *Bridge) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		b.logger.Info("bridge listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
