// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package control

import (
	"fmt"
	"sync"
)

// Counters is a snapshot of control channel traffic.
type Counters struct {
	Requests     uint64
	Responses    uint64
	Unknown      uint64
	WriteRetries uint64
	ByOpcode     map[string]uint64
}

// Statistics tracks control channel traffic. Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates an empty tracker.
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{ByOpcode: make(map[string]uint64)}}
}

// Request records one decoded request.
func (s *Statistics) Request(p Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := p.(Unknown); ok {
		s.c.Unknown++
		return
	}
	s.c.Requests++
	s.c.ByOpcode[OpcodeName(p)]++
}

// Response records one written or received response.
func (s *Statistics) Response(p Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := p.(Unknown); ok {
		s.c.Unknown++
		return
	}
	s.c.Responses++
	s.c.ByOpcode[OpcodeName(p)]++
}

// Retries adds write retries.
func (s *Statistics) Retries(n uint64) {
	s.mu.Lock()
	s.c.WriteRetries += n
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.c
	out.ByOpcode = make(map[string]uint64, len(s.c.ByOpcode))
	for k, v := range s.c.ByOpcode {
		out.ByOpcode[k] = v
	}
	return out
}

// String formats a summary line.
func (s *Statistics) String() string {
	c := s.Snapshot()
	return fmt.Sprintf("requests=%d responses=%d unknown=%d retries=%d",
		c.Requests, c.Responses, c.Unknown, c.WriteRetries)
}
