// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		if err := s.Wait(); err != nil {
			t.Errorf("Wait: %v", err)
		}
	})
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// ============================================================
// Registration Tests
// ============================================================

func TestRegistration(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	if _, err := NewTask(s, "zero", PrioritySoftware, 0, func(*Context, int) {}); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("zero capacity: %v", err)
	}
	if _, err := s.Interrupt("bad", Priority(9), func(*Context) {}); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("bad priority: %v", err)
	}
	if _, err := NewTask(s, "task", PrioritySoftware, 1, func(*Context, int) {}); err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if _, err := s.Interrupt("task", PriorityLine, func(*Context) {}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate: %v", err)
	}

	startScheduler(t, s)

	if _, err := NewTask(s, "late", PrioritySoftware, 1, func(*Context, int) {}); !errors.Is(err, ErrStarted) {
		t.Errorf("after start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start: %v", err)
	}
}

func TestSpawnBeforeStartDrops(t *testing.T) {
	s := New(nil)
	task, err := NewTask(s, "t", PrioritySoftware, 2, func(*Context, int) {})
	if err != nil {
		t.Fatal(err)
	}
	if task.Spawn(1) {
		t.Fatal("Spawn succeeded before Start")
	}
	if got := s.Stats()[0].Dropped; got != 1 {
		t.Errorf("dropped = %d", got)
	}
}

// ============================================================
// Dispatch Tests
// ============================================================

func TestTask_FIFO(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	var got []int
	done := make(chan struct{})
	started := make(chan struct{})
	release := make(chan struct{})
	task, err := NewTask(s, "fifo", PrioritySoftware, 5, func(c *Context, v int) {
		if v == 0 {
			close(started)
			<-release
			return
		}
		got = append(got, v)
		if v == 5 {
			close(done)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	// The first message occupies the worker; the rest queue up behind it
	task.Spawn(0)
	waitFor(t, started, "first message")
	for i := 1; i <= 5; i++ {
		if !task.Spawn(i) {
			t.Fatalf("Spawn(%d) dropped", i)
		}
	}
	close(release)
	waitFor(t, done, "all messages")

	for i, v := range got {
		if v != i+1 {
			t.Fatalf("dispatch order %v", got)
		}
	}
}

func TestTask_FullQueueDrops(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var handled atomic.Int32
	task, err := NewTask(s, "bounded", PrioritySoftware, 2, func(c *Context, v int) {
		if v == 0 {
			started <- struct{}{}
			<-release
		}
		handled.Add(1)
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	task.Spawn(0)
	waitFor(t, started, "first message")

	if !task.Spawn(1) || !task.Spawn(2) {
		t.Fatal("queue should hold two messages")
	}
	if task.Spawn(3) {
		t.Fatal("Spawn into a full queue succeeded")
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for handled.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	stats := s.Stats()[0]
	if stats.Dispatched != 3 || stats.Dropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestInterrupt_Coalesces(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var runs atomic.Int32
	irq, err := s.Interrupt("irq", PriorityLine, func(c *Context) {
		if runs.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	irq.Pend()
	waitFor(t, started, "first run")

	// While running, one pend queues a second run and the rest coalesce
	irq.Pend()
	irq.Pend()
	irq.Pend()
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, expected 2", got)
	}
	if got := s.Stats()[0].Dropped; got != 2 {
		t.Errorf("coalesced = %d, expected 2", got)
	}
}

func TestInterrupt_PendBeforeStartIsLatched(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	ran := make(chan struct{}, 4)
	irq, err := s.Interrupt("irq", PriorityLine, func(*Context) {
		ran <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}

	irq.Pend()
	irq.Pend()
	startScheduler(t, s)
	waitFor(t, ran, "latched interrupt")

	time.Sleep(20 * time.Millisecond)
	if got := len(ran); got != 0 {
		t.Errorf("%d extra runs, expected one run for the latched pend", got)
	}
	if st := s.Stats()[0]; st.Dispatched != 1 || st.Dropped != 1 {
		t.Errorf("stats = %+v", st)
	}

	// Pending works normally once running
	irq.Pend()
	waitFor(t, ran, "second run")
}

func TestHigherTierRunsWhileLowerBlocks(t *testing.T) {
	s := New(zaptest.NewLogger(t))

	release := make(chan struct{})
	blocked := make(chan struct{})
	low, err := NewTask(s, "low", PrioritySoftware, 1, func(c *Context, _ struct{}) {
		close(blocked)
		<-release
	})
	if err != nil {
		t.Fatal(err)
	}
	ran := make(chan struct{})
	irq, err := s.Interrupt("high", PriorityLine, func(c *Context) {
		if c.Priority() != PriorityLine || c.Name() != "high" {
			t.Errorf("context = %s at %s", c.Name(), c.Priority())
		}
		close(ran)
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)
	defer close(release)

	low.Spawn(struct{}{})
	waitFor(t, blocked, "low task")
	irq.Pend()
	waitFor(t, ran, "high interrupt")
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	done := make(chan struct{})
	task, err := NewTask(s, "panicky", PrioritySoftware, 2, func(c *Context, v int) {
		if v == 0 {
			panic("boom")
		}
		close(done)
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	task.Spawn(0)
	task.Spawn(1)
	waitFor(t, done, "task after panic")
}

// ============================================================
// Resource Tests
// ============================================================

func TestResource_CeilingHoldsOffHigherTier(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	res := NewResource(s, "shared", PriorityLine, 0)

	var irqRan atomic.Bool
	irqDone := make(chan struct{})
	irq, err := s.Interrupt("line", PriorityLine, func(c *Context) {
		if err := res.Lock(c, func(v *int) { *v++ }); err != nil {
			t.Errorf("interrupt lock: %v", err)
		}
		irqRan.Store(true)
		close(irqDone)
	})
	if err != nil {
		t.Fatal(err)
	}

	taskDone := make(chan struct{})
	task, err := NewTask(s, "software", PrioritySoftware, 1, func(c *Context, _ struct{}) {
		err := res.Lock(c, func(v *int) {
			if c.Priority() != PriorityLine {
				t.Errorf("effective priority %s inside lock", c.Priority())
			}
			irq.Pend()
			time.Sleep(20 * time.Millisecond)
			if irqRan.Load() {
				t.Error("interrupt ran while the resource was held")
			}
			*v = 10
		})
		if err != nil {
			t.Errorf("task lock: %v", err)
		}
		if c.Priority() != PrioritySoftware {
			t.Errorf("effective priority %s after lock", c.Priority())
		}
		close(taskDone)
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	task.Spawn(struct{}{})
	waitFor(t, taskDone, "task")
	waitFor(t, irqDone, "interrupt")

	var final int
	res.Lock(nil, func(v *int) { final = *v })
	if final != 11 {
		t.Errorf("final value %d, expected 11", final)
	}
}

func TestResource_CeilingViolation(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	res := NewResource(s, "usb", PriorityTransfer, struct{}{})

	result := make(chan error, 1)
	irq, err := s.Interrupt("line", PriorityLine, func(c *Context) {
		result <- res.Lock(c, func(*struct{}) {})
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	irq.Pend()
	select {
	case err := <-result:
		if !errors.Is(err, ErrCeilingViolation) {
			t.Errorf("err = %v, expected ErrCeilingViolation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt did not run")
	}
}

func TestResource_NestedLocksRaise(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	outer := NewResource(s, "outer", PriorityTransfer, 0)
	inner := NewResource(s, "inner", PriorityLine, 0)

	var mu sync.Mutex
	var trace []Priority
	record := func(c *Context) {
		mu.Lock()
		trace = append(trace, c.Priority())
		mu.Unlock()
	}

	done := make(chan struct{})
	task, err := NewTask(s, "nested", PrioritySoftware, 1, func(c *Context, _ struct{}) {
		record(c)
		outer.Lock(c, func(*int) {
			record(c)
			inner.Lock(c, func(*int) { record(c) })
			record(c)
		})
		record(c)
		close(done)
	})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)

	task.Spawn(struct{}{})
	waitFor(t, done, "nested task")

	expected := []Priority{PrioritySoftware, PriorityTransfer, PriorityLine, PriorityTransfer, PrioritySoftware}
	mu.Lock()
	defer mu.Unlock()
	if len(trace) != len(expected) {
		t.Fatalf("trace %v", trace)
	}
	for i := range expected {
		if trace[i] != expected[i] {
			t.Fatalf("trace %v, expected %v", trace, expected)
		}
	}
}

func TestPriorityString(t *testing.T) {
	if PriorityTransfer.String() != "TRANSFER" || Priority(7).String() != "PRIORITY(7)" {
		t.Error("unexpected priority names")
	}
}
