// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketOptions configures a bridge connection.
type WebSocketOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// WebSocketLink talks to a device served by a remote bridge. Every binary
// message is one control packet.
type WebSocketLink struct {
	conn *websocket.Conn
	url  string

	packets chan []byte
	done    chan struct{}
	closed  chan struct{}
	err     error // set before done is closed

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWebSocket opens a WebSocket connection with HTTP Basic auth.
func DialWebSocket(ctx context.Context, opts WebSocketOptions) (*WebSocketLink, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	l := &WebSocketLink{
		conn:    conn,
		url:     opts.URL,
		packets: make(chan []byte, 64),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	go l.readPump()
	return l, nil
}

// readPump owns the read side of the connection.
func (l *WebSocketLink) readPump() {
	defer close(l.done)
	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			l.err = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case l.packets <- data:
		case <-l.closed:
			return
		}
	}
}

// ReadContext returns the next packet received from the bridge.
func (l *WebSocketLink) ReadContext(ctx context.Context, p []byte) (int, error) {
	select {
	case data := <-l.packets:
		return copy(p, data), nil
	default:
	}

	select {
	case data := <-l.packets:
		return copy(p, data), nil
	case <-l.done:
		return 0, newError(OpRead, -1, fmt.Errorf("%w: %v", ErrConnectionClosed, l.err))
	case <-ctx.Done():
		return 0, newError(OpRead, -1, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
	}
}

// WriteContext sends one packet as a binary message.
func (l *WebSocketLink) WriteContext(ctx context.Context, p []byte) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := l.conn.SetWriteDeadline(deadline); err != nil {
		return 0, newError(OpWrite, -1, err)
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, newError(OpWrite, -1, err)
	}
	return len(p), nil
}

// Close sends a close frame and closes the connection.
func (l *WebSocketLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.writeMu.Lock()
		l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		err = l.conn.Close()
	})
	return err
}

// String describes the link.
func (l *WebSocketLink) String() string {
	return "websocket:" + l.url
}
