// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package bitbus

import "sync"

// DefaultLatchDepth is the number of strobed samples a Latch holds before it
// starts dropping.
const DefaultLatchDepth = 64

type sample struct {
	a, b uint16
}

// Latch simulates a wired pair of GPIO banks. The driving side writes the
// ports and strobes; every strobe captures the port values into a FIFO and
// fires the strobe callback. The sampling side reads captured values back in
// order. A full FIFO drops the new sample and counts an overrun.
type Latch struct {
	mu       sync.Mutex
	out      sample
	last     sample
	fifo     []sample
	depth    int
	overruns uint64
	strobes  uint64
	onStrobe func()
}

// NewLatch creates a latch with the given FIFO depth (DefaultLatchDepth when
// depth <= 0).
func NewLatch(depth int) *Latch {
	if depth <= 0 {
		depth = DefaultLatchDepth
	}
	return &Latch{
		depth: depth,
		fifo:  make([]sample, 0, depth),
	}
}

// OnStrobe registers the callback fired after every captured strobe. It plays
// the role of the strobe line interrupt on the sampling side.
func (l *Latch) OnStrobe(fn func()) {
	l.mu.Lock()
	l.onStrobe = fn
	l.mu.Unlock()
}

// WritePorts sets the driven port values.
func (l *Latch) WritePorts(a, b uint16) {
	l.mu.Lock()
	l.out = sample{a: a, b: b}
	l.mu.Unlock()
}

// Strobe captures the driven values.
func (l *Latch) Strobe() {
	l.mu.Lock()
	l.strobes++
	captured := len(l.fifo) < l.depth
	if captured {
		l.fifo = append(l.fifo, l.out)
	} else {
		l.overruns++
	}
	fn := l.onStrobe
	l.mu.Unlock()

	if captured && fn != nil {
		fn()
	}
}

// ReadPorts returns the oldest captured sample. With nothing captured it
// returns the last sample read, like idle input pins holding their level.
func (l *Latch) ReadPorts() (a, b uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.fifo) > 0 {
		l.last = l.fifo[0]
		l.fifo = l.fifo[1:]
	}
	return l.last.a, l.last.b
}

// Pending returns the number of captured samples not read yet.
func (l *Latch) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fifo)
}

// Overruns returns the number of strobes dropped because the FIFO was full.
func (l *Latch) Overruns() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overruns
}

// Strobes returns the number of strobes seen.
func (l *Latch) Strobes() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strobes
}
