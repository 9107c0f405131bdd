// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sm2m

import (
	"fmt"
	"strings"
)

// ParamsBuffer holds the values of one frame. It is a plain value: copying it
// hands the captured frame over without sharing memory.
type ParamsBuffer struct {
	buf    [MaxParamsCount]uint16
	cursor int
	count  int
}

// NewParamsBuffer creates an empty buffer expecting count values. Counts above
// MaxParamsCount are clamped.
func NewParamsBuffer(count int) ParamsBuffer {
	if count > MaxParamsCount {
		count = MaxParamsCount
	}
	if count < 0 {
		count = 0
	}
	return ParamsBuffer{count: count}
}

// Register appends a value. It returns false when the buffer was already full
// and the value was not stored.
func (p *ParamsBuffer) Register(v uint16) bool {
	if p.cursor >= p.count {
		return false
	}
	p.buf[p.cursor] = v
	p.cursor++
	return true
}

// Full reports whether all expected values were registered.
func (p *ParamsBuffer) Full() bool {
	return p.cursor >= p.count
}

// Count returns the expected number of values.
func (p *ParamsBuffer) Count() int {
	return p.count
}

// Len returns the number of registered values.
func (p *ParamsBuffer) Len() int {
	return p.cursor
}

// Values returns the registered values.
func (p *ParamsBuffer) Values() []uint16 {
	return p.buf[:p.cursor]
}

// Value returns the value at index.
func (p *ParamsBuffer) Value(index int) (uint16, bool) {
	if index < 0 || index >= p.cursor {
		return 0, false
	}
	return p.buf[index], true
}

func (p ParamsBuffer) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range p.buf[:p.cursor] {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	sb.WriteString("]")
	return sb.String()
}
