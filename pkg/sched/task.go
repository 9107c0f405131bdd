// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sched

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// TaskStats reports per task counters.
type TaskStats struct {
	Name       string
	Priority   Priority
	Capacity   int
	Dispatched uint64
	Dropped    uint64
}

type statser interface {
	stats() TaskStats
}

// Interrupt is a message-less handler pended from outside the scheduler.
// Pending an interrupt that is already pending has no effect. A pend raised
// while the scheduler is stopped stays latched and is dispatched by Start.
type Interrupt struct {
	sched   *Scheduler
	tier    *tier
	label   string
	handler func(*Context)

	pending    atomic.Bool
	queued     atomic.Bool
	dispatched atomic.Uint64
	coalesced  atomic.Uint64
}

// Interrupt registers an interrupt handler at the given priority.
func (s *Scheduler) Interrupt(name string, prio Priority, handler func(*Context)) (*Interrupt, error) {
	t, err := s.register(name, prio, 1)
	if err != nil {
		return nil, err
	}
	irq := &Interrupt{sched: s, tier: t, label: name, handler: handler}

	s.mu.Lock()
	s.tasks = append(s.tasks, irq)
	s.mu.Unlock()
	return irq, nil
}

// Pend marks the interrupt pending. Safe to call from any goroutine; never
// blocks.
func (i *Interrupt) Pend() {
	if !i.pending.CompareAndSwap(false, true) {
		i.coalesced.Add(1)
		return
	}
	i.schedule()
}

// schedule queues a pending interrupt at most once. When the scheduler is
// not running the pending bit is left set for Start to pick up.
func (i *Interrupt) schedule() {
	for {
		if !i.queued.CompareAndSwap(false, true) {
			return
		}
		if i.sched.enqueue(i.tier, i) {
			return
		}
		i.queued.Store(false)
		// Start may have scanned while the slot was held
		if !i.sched.running.Load() {
			return
		}
	}
}

func (i *Interrupt) name() string { return i.label }

func (i *Interrupt) run(c *Context) {
	i.queued.Store(false)
	i.pending.Store(false)
	i.dispatched.Add(1)
	i.handler(c)
}

func (i *Interrupt) stats() TaskStats {
	return TaskStats{
		Name:       i.label,
		Priority:   i.tier.prio,
		Capacity:   1,
		Dispatched: i.dispatched.Load(),
		Dropped:    i.coalesced.Load(),
	}
}

// Task is a handler with a bounded queue of messages of type T.
type Task[T any] struct {
	sched   *Scheduler
	tier    *tier
	label   string
	handler func(*Context, T)
	queue   chan T

	dispatched atomic.Uint64
	dropped    atomic.Uint64
}

// NewTask registers a task at the given priority. Up to capacity messages
// wait in its queue.
func NewTask[T any](s *Scheduler, name string, prio Priority, capacity int, handler func(*Context, T)) (*Task[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	t, err := s.register(name, prio, capacity)
	if err != nil {
		return nil, err
	}
	task := &Task[T]{
		sched:   s,
		tier:    t,
		label:   name,
		handler: handler,
		queue:   make(chan T, capacity),
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	return task, nil
}

// Spawn queues msg without blocking. It returns false and counts a drop when
// the queue is full or the scheduler is not running.
func (t *Task[T]) Spawn(msg T) bool {
	if !t.sched.Running() {
		t.drop()
		return false
	}
	select {
	case t.queue <- msg:
	default:
		t.drop()
		return false
	}
	if !t.sched.enqueue(t.tier, t) {
		// Stopped between the checks; the message stays queued and is
		// never dispatched.
		t.drop()
		return false
	}
	return true
}

func (t *Task[T]) drop() {
	n := t.dropped.Add(1)
	t.sched.logger.Debug("task message dropped",
		zap.String("task", t.label),
		zap.Uint64("dropped", n))
}

// Name returns the task name.
func (t *Task[T]) Name() string { return t.label }

func (t *Task[T]) name() string { return t.label }

func (t *Task[T]) run(c *Context) {
	select {
	case msg := <-t.queue:
		t.dispatched.Add(1)
		t.handler(c, msg)
	default:
	}
}

func (t *Task[T]) stats() TaskStats {
	return TaskStats{
		Name:       t.label,
		Priority:   t.tier.prio,
		Capacity:   cap(t.queue),
		Dispatched: t.dispatched.Load(),
		Dropped:    t.dropped.Load(),
	}
}

// Stats returns counters for every interrupt and task in registration order.
// For interrupts Dropped counts coalesced pends.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStats, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.stats())
	}
	return out
}
