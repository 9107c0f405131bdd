// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package generator synthesizes slowly varying parameter values for the
// SM2M emulator.
//
// Every generator is advanced once per emitted frame. A sequential generator
// walks between two bounds in steps, reversing direction when the next step
// would leave the bounds, which yields a triangle wave. A bounced generator
// wraps another one and periodically replaces its output with a random value
// to imitate noisy telemetry.
package generator

// Operation is the direction a sequential generator walks in.
type Operation uint8

const (
	Increment Operation = iota
	Decrement
)

// Reverse returns the opposite operation.
func (o Operation) Reverse() Operation {
	if o == Increment {
		return Decrement
	}
	return Increment
}

func (o Operation) String() string {
	if o == Increment {
		return "INCREMENT"
	}
	return "DECREMENT"
}

// Period divides the tick rate. Tick reports true once every Limit ticks.
type Period struct {
	Limit uint8
	Count uint8
}

// Tick counts one tick and reports whether the period elapsed. An elapsed
// period restarts from zero.
func (p *Period) Tick() bool {
	if p.Count < 0xFF {
		p.Count++
	}
	if p.Count >= p.Limit {
		p.Count = 0
		return true
	}
	return false
}

// Source produces one value per tick.
type Source interface {
	// Next advances by one tick and returns the new value.
	Next() uint16
	// Value returns the last produced value without advancing.
	Value() uint16
	// Reset overrides the current value.
	Reset(v uint16)
}

// Sequential walks from its value toward Max or Min in Step increments.
type Sequential struct {
	Operation Operation
	Period    Period
	Step      uint16
	Min       uint16
	Max       uint16
	value     uint16
}

// NewSequential creates an incrementing generator over the full uint16 range.
func NewSequential(value uint16, period uint8, step uint16) *Sequential {
	return &Sequential{
		Operation: Increment,
		Period:    Period{Limit: period},
		Step:      step,
		Min:       0,
		Max:       0xFFFF,
		value:     value,
	}
}

// Next applies the operation when the period elapses. A step that would leave
// [Min, Max] is not applied; the operation flips and the next elapsed period
// walks the other way.
func (s *Sequential) Next() uint16 {
	if !s.Period.Tick() {
		return s.value
	}

	switch s.Operation {
	case Increment:
		if v, ok := checkedAdd(s.value, s.Step, s.Max); ok {
			s.value = v
		} else {
			s.Operation = Decrement
		}
	case Decrement:
		if v, ok := checkedSub(s.value, s.Step, s.Min); ok {
			s.value = v
		} else {
			s.Operation = Increment
		}
	}
	return s.value
}

// Value returns the current value.
func (s *Sequential) Value() uint16 {
	return s.value
}

// Reset moves the generator to v without changing its direction.
func (s *Sequential) Reset(v uint16) {
	s.value = v
}

func checkedAdd(v, step, max uint16) (uint16, bool) {
	sum := uint32(v) + uint32(step)
	if sum > uint32(max) {
		return v, false
	}
	return uint16(sum), true
}

func checkedSub(v, step, min uint16) (uint16, bool) {
	diff := int32(v) - int32(step)
	if diff < int32(min) {
		return v, false
	}
	return uint16(diff), true
}

// Constant always produces the same value.
type Constant struct {
	value uint16
}

// NewConstant creates a constant generator.
func NewConstant(value uint16) *Constant {
	return &Constant{value: value}
}

func (c *Constant) Next() uint16   { return c.value }
func (c *Constant) Value() uint16  { return c.value }
func (c *Constant) Reset(v uint16) { c.value = v }
