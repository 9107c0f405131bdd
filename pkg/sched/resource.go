// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sched

import (
	"fmt"
	"sync"
)

// Resource is shared state guarded by a priority ceiling. The ceiling must be
// at least the priority of every handler that locks it.
type Resource[T any] struct {
	sched   *Scheduler
	label   string
	ceiling Priority
	mu      sync.Mutex
	value   T
}

// NewResource wraps value with the given ceiling.
func NewResource[T any](s *Scheduler, name string, ceiling Priority, value T) *Resource[T] {
	return &Resource[T]{
		sched:   s,
		label:   name,
		ceiling: ceiling,
		value:   value,
	}
}

// Name returns the resource name.
func (r *Resource[T]) Name() string { return r.label }

// Ceiling returns the resource ceiling.
func (r *Resource[T]) Ceiling() Priority { return r.ceiling }

// Lock runs fn with exclusive access to the value. While fn runs, every tier
// above the caller's effective priority up to the ceiling is held off and
// the caller's effective priority is raised to the ceiling. Locks nest; an
// inner lock only raises further.
//
// A nil ctx is for code outside the scheduler (tests, host tooling); it takes
// the value's mutex only.
func (r *Resource[T]) Lock(ctx *Context, fn func(*T)) error {
	if ctx == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		fn(&r.value)
		return nil
	}

	if ctx.effective > r.ceiling {
		return fmt.Errorf("%w: %s at %s locking %s (ceiling %s)",
			ErrCeilingViolation, ctx.name, ctx.effective, r.label, r.ceiling)
	}

	prev := ctx.effective
	// Ascending order keeps nested locks deadlock free
	for p := prev + 1; p <= r.ceiling; p++ {
		r.sched.tiers[p].gate.Lock()
	}
	r.mu.Lock()
	ctx.effective = r.ceiling

	defer func() {
		ctx.effective = prev
		r.mu.Unlock()
		for p := r.ceiling; p > prev; p-- {
			r.sched.tiers[p].gate.Unlock()
		}
	}()

	fn(&r.value)
	return nil
}
