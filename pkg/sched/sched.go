// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package sched is a priority-based task scheduler for the simulated device
// firmware.
//
// Work is split into priority tiers. Each tier has one worker goroutine that
// runs the tier's jobs one at a time in arrival order, so jobs on the same
// tier never overlap while different tiers run concurrently, the way a higher
// interrupt level preempts a lower one on a microcontroller. Shared state is
// wrapped in a Resource with a priority ceiling: while a job holds the
// resource, every tier up to the ceiling is held off.
//
// Interrupts are pended from any goroutine and coalesce while pending. Tasks
// carry a message and have a bounded queue; spawning into a full queue drops
// the message and reports it.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Priority orders tiers. Higher values preempt lower ones.
type Priority uint8

const (
	PriorityIdle     Priority = 0
	PrioritySoftware Priority = 1
	PriorityTransfer Priority = 2 // USB transmit/receive
	PriorityLine     Priority = 3 // bus sampling and USB line events

	numTiers = int(PriorityLine) + 1
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "IDLE"
	case PrioritySoftware:
		return "SOFTWARE"
	case PriorityTransfer:
		return "TRANSFER"
	case PriorityLine:
		return "LINE"
	default:
		return fmt.Sprintf("PRIORITY(%d)", uint8(p))
	}
}

var (
	ErrStarted          = errors.New("sched: scheduler already started")
	ErrInvalidPriority  = errors.New("sched: invalid priority")
	ErrInvalidCapacity  = errors.New("sched: task capacity must be positive")
	ErrDuplicateName    = errors.New("sched: duplicate name")
	ErrCeilingViolation = errors.New("sched: caller priority above resource ceiling")
)

// runnable is one queued unit of work on a tier.
type runnable interface {
	name() string
	run(c *Context)
}

type tier struct {
	prio     Priority
	gate     sync.RWMutex
	queue    chan runnable
	capacity int
	used     bool
}

// Scheduler owns the tiers, their workers and the registered work.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	names   map[string]struct{}
	tiers   [numTiers]*tier
	tasks   []statser

	running atomic.Bool
	group   *errgroup.Group
}

// New creates a scheduler. A nil logger disables logging.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		logger: logger,
		names:  make(map[string]struct{}),
	}
	for i := range s.tiers {
		s.tiers[i] = &tier{prio: Priority(i)}
	}
	return s
}

// register reserves a name and queue slots on a tier.
func (s *Scheduler) register(name string, prio Priority, slots int) (*tier, error) {
	if int(prio) >= numTiers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, prio)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, ErrStarted
	}
	if _, ok := s.names[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	s.names[name] = struct{}{}

	t := s.tiers[prio]
	t.capacity += slots
	t.used = true
	return t, nil
}

// Start freezes the registered work and starts one worker per used tier.
// Interrupts left pending while stopped are queued. Workers stop when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	s.started = true

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	for _, t := range s.tiers {
		if !t.used {
			continue
		}
		t.queue = make(chan runnable, t.capacity)
		g.Go(func() error {
			s.worker(gctx, t)
			return nil
		})
	}
	s.running.Store(true)

	// Interrupts pended before Start
	for _, t := range s.tasks {
		if irq, ok := t.(*Interrupt); ok && irq.pending.Load() {
			irq.schedule()
		}
	}

	go func() {
		<-gctx.Done()
		s.running.Store(false)
	}()

	s.logger.Debug("scheduler started", zap.Int("tasks", len(s.tasks)))
	return nil
}

// Wait blocks until every worker has stopped.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Running reports whether workers accept work.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// enqueue hands a runnable to its tier without blocking.
func (s *Scheduler) enqueue(t *tier, r runnable) bool {
	if !s.running.Load() {
		return false
	}
	select {
	case t.queue <- r:
		return true
	default:
		return false
	}
}

func (s *Scheduler) worker(ctx context.Context, t *tier) {
	s.logger.Debug("worker started", zap.Stringer("priority", t.prio))
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("worker stopped", zap.Stringer("priority", t.prio))
			return
		case r := <-t.queue:
			s.dispatch(t, r)
		}
	}
}

func (s *Scheduler) dispatch(t *tier, r runnable) {
	t.gate.RLock()
	defer t.gate.RUnlock()
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("handler panicked",
				zap.String("task", r.name()),
				zap.Stringer("priority", t.prio),
				zap.Any("panic", v))
		}
	}()

	r.run(&Context{
		sched:     s,
		name:      r.name(),
		base:      t.prio,
		effective: t.prio,
	})
}

// Context is passed to every handler. It tracks the handler's effective
// priority while resources are held and must not outlive the handler.
type Context struct {
	sched     *Scheduler
	name      string
	base      Priority
	effective Priority
}

// Name returns the running task or interrupt name.
func (c *Context) Name() string { return c.name }

// Priority returns the current effective priority.
func (c *Context) Priority() Priority { return c.effective }

// Logger returns the scheduler logger tagged with the task name.
func (c *Context) Logger() *zap.Logger {
	return c.sched.logger.With(zap.String("task", c.name))
}

// Base returns the priority the handler was dispatched at.
func (c *Context) Base() Priority { return c.base }
