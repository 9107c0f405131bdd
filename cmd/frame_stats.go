// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// frameStats aggregates what the monitor has seen on a decoder link. It is
// owned by a single goroutine.
type frameStats struct {
	start time.Time

	packets   uint64
	frames    uint64
	errors    uint64 // ERROR responses from the device
	unknown   uint64
	anomalies uint64

	last    []uint16
	seen    [control.MaxParams]bool
	min     [control.MaxParams]uint16
	max     [control.MaxParams]uint16
	changes [control.MaxParams]uint64

	// Rates (calculated)
	rateTime   time.Time
	rateFrames uint64
	frameRate  float64
}

func newFrameStats(now time.Time) *frameStats {
	return &frameStats{start: now, rateTime: now}
}

// update records one packet and its validation result.
func (s *frameStats) update(p control.Packet, anomalies []control.ValidationError) {
	s.packets++
	s.anomalies += uint64(len(anomalies))

	switch v := p.(type) {
	case control.Params:
		s.frames++
		s.updateValues(v.Values)
	case control.Error:
		s.errors++
	case control.Unknown:
		s.unknown++
	}
}

func (s *frameStats) updateValues(values []uint16) {
	for i, v := range values {
		if i >= control.MaxParams {
			break
		}
		if !s.seen[i] {
			s.seen[i] = true
			s.min[i], s.max[i] = v, v
		} else {
			if v < s.min[i] {
				s.min[i] = v
			}
			if v > s.max[i] {
				s.max[i] = v
			}
			if i < len(s.last) && s.last[i] != v {
				s.changes[i]++
			}
		}
	}
	s.last = append(s.last[:0], values...)
}

// calculateRates updates the frame rate over the interval since the last call.
func (s *frameStats) calculateRates(now time.Time) {
	elapsed := now.Sub(s.rateTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.frameRate = float64(s.frames-s.rateFrames) / elapsed
	s.rateFrames = s.frames
	s.rateTime = now
}

// String formats a multi-line summary for text mode.
func (s *frameStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%s) ===\n", formatUptime(time.Since(s.start)))
	fmt.Fprintf(&b, "Packets: %d  Frames: %d  Errors: %d  Unknown: %d  Anomalies: %d\n",
		s.packets, s.frames, s.errors, s.unknown, s.anomalies)
	fmt.Fprintf(&b, "Frame rate: %.1f frames/s\n", s.frameRate)
	for i := 0; i < control.MaxParams; i++ {
		if !s.seen[i] {
			continue
		}
		fmt.Fprintf(&b, "  [%2d] last=%5d min=%5d max=%5d changes=%d\n",
			i, s.value(i), s.min[i], s.max[i], s.changes[i])
	}
	return b.String()
}

// value returns the last value of parameter i, zero when it was not in the
// last frame.
func (s *frameStats) value(i int) uint16 {
	if i < len(s.last) {
		return s.last[i]
	}
	return 0
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	add := func(n int64, unit string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+unit)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	add(seconds, "second")

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
