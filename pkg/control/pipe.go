// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import (
	"context"
	"fmt"
	"sync"
)

// DefaultPipeDepth is the number of packets each direction can buffer.
const DefaultPipeDepth = 16

// Pipe is an in-memory packet link between a host and a simulated device.
// Packet boundaries are preserved in both directions.
type Pipe struct {
	name     string
	toDevice chan []byte
	toHost   chan []byte
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	notify func()
}

// PipeHost is the host end of a Pipe. It blocks until data moves or the
// context ends.
type PipeHost struct{ p *Pipe }

// PipeDevice is the device end of a Pipe. It implements Transport.
type PipeDevice struct{ p *Pipe }

// NewPipe creates a pipe with the given per-direction depth.
func NewPipe(name string, depth int) *Pipe {
	if depth <= 0 {
		depth = DefaultPipeDepth
	}
	return &Pipe{
		name:     name,
		toDevice: make(chan []byte, depth),
		toHost:   make(chan []byte, depth),
		done:     make(chan struct{}),
	}
}

// Host returns the host end.
func (p *Pipe) Host() *PipeHost { return &PipeHost{p: p} }

// Device returns the device end.
func (p *Pipe) Device() *PipeDevice { return &PipeDevice{p: p} }

// OnHostWrite registers fn to run after every packet the host writes. The
// simulated device uses it as its USB line interrupt.
func (p *Pipe) OnHostWrite(fn func()) {
	p.mu.Lock()
	p.notify = fn
	p.mu.Unlock()
}

// Close closes both ends. Closing twice is a no-op.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *Pipe) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func clone(b []byte) []byte {
	if len(b) > MaxPacketSize {
		b = b[:MaxPacketSize]
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReadContext waits for the next packet from the device.
func (h *PipeHost) ReadContext(ctx context.Context, b []byte) (int, error) {
	select {
	case pkt := <-h.p.toHost:
		return copy(b, pkt), nil
	case <-h.p.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WriteContext sends one packet to the device. Packets longer than
// MaxPacketSize are truncated.
func (h *PipeHost) WriteContext(ctx context.Context, b []byte) (int, error) {
	pkt := clone(b)
	select {
	case h.p.toDevice <- pkt:
	case <-h.p.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	h.p.mu.Lock()
	notify := h.p.notify
	h.p.mu.Unlock()
	if notify != nil {
		notify()
	}
	return len(pkt), nil
}

// Close closes the pipe.
func (h *PipeHost) Close() error { return h.p.Close() }

// String describes the link.
func (h *PipeHost) String() string { return fmt.Sprintf("pipe:%s", h.p.name) }

// Poll reports whether the host has written a packet not yet read.
func (d *PipeDevice) Poll() bool {
	return len(d.p.toDevice) > 0
}

// Read copies the next host packet into b without blocking.
func (d *PipeDevice) Read(b []byte) (int, error) {
	if d.p.closed() {
		return 0, ErrClosed
	}
	select {
	case pkt := <-d.p.toDevice:
		return copy(b, pkt), nil
	default:
		return 0, ErrWouldBlock
	}
}

// Write queues one packet for the host without blocking.
func (d *PipeDevice) Write(b []byte) (int, error) {
	if d.p.closed() {
		return 0, ErrClosed
	}
	pkt := clone(b)
	select {
	case d.p.toHost <- pkt:
		return len(pkt), nil
	default:
		return 0, ErrWouldBlock
	}
}
