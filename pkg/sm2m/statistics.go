// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sm2m

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point in time copy of the framing statistics.
type Counters struct {
	StartTime time.Time

	Words     uint64
	Markers   uint64
	Frames    uint64
	Rejected  uint64 // parameter counts above MaxParamsCount
	Discarded uint64 // partial frames cut short by a marker
	Dropped   uint64 // completed frames the consumer had no room for

	// Rates (calculated)
	WordRate  float64 // words/sec
	FrameRate float64 // frames/sec
}

// Statistics tracks framing counters. It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

func (s *Statistics) word(marker bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.c.Words++
	if marker {
		s.c.Markers++
	}
	s.mu.Unlock()
}

func (s *Statistics) frame() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.c.Frames++
	s.mu.Unlock()
}

func (s *Statistics) reject() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.c.Rejected++
	s.mu.Unlock()
}

func (s *Statistics) discard() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.c.Discarded++
	s.mu.Unlock()
}

// Drop records a completed frame that could not be handed over.
func (s *Statistics) Drop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.c.Dropped++
	s.mu.Unlock()
}

// Snapshot returns the counters with rates calculated.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()
	c.CalculateRates()
	return c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.c = Counters{StartTime: time.Now()}
	s.mu.Unlock()
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()
	return c.String()
}

// CalculateRates calculates word and frame rates
func (c *Counters) CalculateRates() {
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.WordRate = float64(c.Words) / elapsed
		c.FrameRate = float64(c.Frames) / elapsed
	}
}

// Errors returns the number of framing anomalies.
func (c *Counters) Errors() uint64 {
	return c.Rejected + c.Discarded + c.Dropped
}

func (c Counters) String() string {
	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Words:           %8d\n", c.Words)
	result += fmt.Sprintf("Markers:         %8d\n", c.Markers)
	result += fmt.Sprintf("Frames:          %8d\n", c.Frames)

	if c.Rejected > 0 {
		result += fmt.Sprintf("Rejected Counts: %8d\n", c.Rejected)
	}
	if c.Discarded > 0 {
		result += fmt.Sprintf("Partial Frames:  %8d\n", c.Discarded)
	}
	if c.Dropped > 0 {
		result += fmt.Sprintf("Dropped Frames:  %8d\n", c.Dropped)
	}

	result += fmt.Sprintf("Word Rate:       %8.1f words/sec\n", c.WordRate)
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", c.FrameRate)
	result += "================================\n"

	return result
}
