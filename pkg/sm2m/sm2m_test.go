// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package sm2m

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func collect(f *Framer, words []uint16) [][]uint16 {
	var frames [][]uint16
	f.Feed(words, func(p ParamsBuffer) {
		frames = append(frames, append([]uint16(nil), p.Values()...))
	})
	return frames
}

func equalValues(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================
// ParamsBuffer Tests
// ============================================================

func TestParamsBuffer_RegisterUntilFull(t *testing.T) {
	p := NewParamsBuffer(2)
	if !p.Register(1) || !p.Register(2) {
		t.Fatal("expected first two registrations to succeed")
	}
	if p.Register(3) {
		t.Error("expected registration on full buffer to fail")
	}
	if !p.Full() || p.Len() != 2 || p.Count() != 2 {
		t.Errorf("unexpected buffer state: len=%d count=%d", p.Len(), p.Count())
	}
	if v, ok := p.Value(1); !ok || v != 2 {
		t.Errorf("Value(1) = %d, %v", v, ok)
	}
	if _, ok := p.Value(2); ok {
		t.Error("Value(2) should be out of range")
	}
}

func TestParamsBuffer_ClampsCount(t *testing.T) {
	p := NewParamsBuffer(MaxParamsCount + 5)
	if p.Count() != MaxParamsCount {
		t.Errorf("count = %d, expected %d", p.Count(), MaxParamsCount)
	}
	p = NewParamsBuffer(-1)
	if p.Count() != 0 || !p.Full() {
		t.Errorf("negative count should produce an empty full buffer")
	}
}

func TestParamsBuffer_CopyIsIndependent(t *testing.T) {
	p := NewParamsBuffer(2)
	p.Register(7)
	c := p
	p.Register(8)
	if c.Len() != 1 {
		t.Errorf("copy changed with original: len=%d", c.Len())
	}
}

// ============================================================
// State Machine Tests
// ============================================================

func TestFramer_Transitions(t *testing.T) {
	f := NewFramer()
	if got := f.State(); got.Kind != DetectMarker {
		t.Fatalf("initial state %v", got.Kind)
	}

	f.Advance(7) // noise before the first marker
	if got := f.State(); got.Kind != DetectMarker {
		t.Fatalf("noise left DetectMarker: %v", got.Kind)
	}

	f.Advance(Marker)
	if got := f.State(); got.Kind != DetectParamsCount || got.Count != 0 {
		t.Fatalf("after marker: %+v", got)
	}

	for i, w := range []uint16{1, 2, 3} {
		f.Advance(w)
		if got := f.State(); got.Kind != DetectParamsCount || got.Count != i+1 {
			t.Fatalf("while counting: %+v", got)
		}
	}

	frame, ok := f.Advance(Marker)
	if !ok || !equalValues(frame.Values(), []uint16{1, 2, 3}) {
		t.Fatalf("negotiation frame = %v, %v", frame, ok)
	}
	if got := f.State(); got.Kind != ReadParams || got.Count != 3 {
		t.Fatalf("after negotiation: %+v", got)
	}

	f.Advance(4)
	f.Advance(5)
	frame, ok = f.Advance(6)
	if !ok || !equalValues(frame.Values(), []uint16{4, 5, 6}) {
		t.Fatalf("frame = %v, %v", frame, ok)
	}
	if got := f.State(); got.Kind != WaitForMarker || got.Count != 3 {
		t.Fatalf("after frame: %+v", got)
	}

	f.Advance(Marker)
	if got := f.State(); got.Kind != ReadParams || got.Count != 3 {
		t.Fatalf("after marker: %+v", got)
	}
	f.Feed([]uint16{7, 8, 9}, nil)

	f.Advance(99) // a word where the marker belongs
	if got := f.State(); got.Kind != WaitForMarker {
		t.Fatalf("non-marker left WaitForMarker: %v", got.Kind)
	}
	f.Advance(Marker)
	if got := f.State(); got.Kind != DetectParamsCount || got.Count != 0 {
		t.Fatalf("marker after overrun should renegotiate: %+v", got)
	}
}

func TestFramer_EndToEndScenario(t *testing.T) {
	f := NewFramer()
	frames := collect(f, []uint16{Marker, 10, 20, 30, Marker, 11, 21, 31})

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %v", len(frames), frames)
	}
	if !equalValues(frames[0], []uint16{10, 20, 30}) {
		t.Errorf("first frame = %v", frames[0])
	}
	if !equalValues(frames[1], []uint16{11, 21, 31}) {
		t.Errorf("second frame = %v", frames[1])
	}
	if got := f.State(); got.Kind != WaitForMarker || got.Count != 3 {
		t.Errorf("final state %+v", got)
	}
	if f.Frames() != 2 {
		t.Errorf("Frames() = %d", f.Frames())
	}
}

func TestFramer_ContinuousStream(t *testing.T) {
	f := NewFramer()
	var words []uint16
	for i := 0; i < 5; i++ {
		words = AppendFrame(words, uint16(i), uint16(i+100))
	}
	frames := collect(f, words)

	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}
	for i, fr := range frames {
		expected := []uint16{uint16(i), uint16(i + 100)}
		if !equalValues(fr, expected) {
			t.Errorf("frame %d = %v, expected %v", i, fr, expected)
		}
	}
}

func TestFramer_RejectsOversizedCount(t *testing.T) {
	f := NewFramer()
	words := []uint16{Marker}
	for i := 0; i < MaxParamsCount+1; i++ {
		words = append(words, uint16(i+1))
	}
	words = append(words, Marker)

	stats := NewStatistics()
	f.SetStatistics(stats)
	frames := collect(f, words)

	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %v", frames)
	}
	if got := f.State(); got.Kind != DetectMarker {
		t.Errorf("state %v, expected DetectMarker", got.Kind)
	}
	if c := stats.Snapshot(); c.Rejected != 1 {
		t.Errorf("rejected = %d", c.Rejected)
	}
}

func TestFramer_AcceptsMaxCount(t *testing.T) {
	f := NewFramer()
	values := make([]uint16, MaxParamsCount)
	for i := range values {
		values[i] = uint16(1000 + i)
	}
	words := AppendFrame(nil, values...)
	words = AppendFrame(words, values...)
	frames := collect(f, words)

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for _, fr := range frames {
		if !equalValues(fr, values) {
			t.Errorf("frame = %v", fr)
		}
	}
}

func TestFramer_BackToBackMarkers(t *testing.T) {
	f := NewFramer()
	frames := collect(f, []uint16{Marker, Marker, Marker, 1, 2, Marker})

	if len(frames) != 1 || !equalValues(frames[0], []uint16{1, 2}) {
		t.Fatalf("frames = %v", frames)
	}
}

func TestFramer_MarkerInsideFrameRestarts(t *testing.T) {
	f := NewFramer()
	stats := NewStatistics()
	f.SetStatistics(stats)

	frames := collect(f, []uint16{Marker, 1, 2, 3, Marker, 4, Marker, 5, 6, 7, Marker})

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %v", frames)
	}
	if !equalValues(frames[1], []uint16{5, 6, 7}) {
		t.Errorf("second frame = %v", frames[1])
	}
	if c := stats.Snapshot(); c.Discarded != 1 {
		t.Errorf("discarded = %d", c.Discarded)
	}
}

func TestFramer_NoMarkerNeverEmits(t *testing.T) {
	f := NewFramer()
	for i := 0; i < 10000; i++ {
		if _, ok := f.Advance(uint16(i % 0x5000)); ok {
			t.Fatal("emitted a frame without any marker")
		}
	}
	if got := f.State(); got.Kind != DetectMarker {
		t.Errorf("state %v", got.Kind)
	}
}

func TestFramer_LongerFrameRenegotiates(t *testing.T) {
	f := NewFramer()
	stats := NewStatistics()
	f.SetStatistics(stats)

	words := AppendFrame(nil, 1, 2)
	words = AppendFrame(words, 1, 2)
	// The stream switches to three parameters
	words = AppendFrame(words, 3, 4, 5)
	words = AppendFrame(words, 6, 7, 8)
	words = AppendFrame(words, 9, 10, 11)
	frames := collect(f, words)

	last := frames[len(frames)-1]
	if !equalValues(last, []uint16{9, 10, 11}) {
		t.Fatalf("last frame = %v, all frames %v", last, frames)
	}
	if got := f.State(); got.Kind != WaitForMarker || got.Count != 3 {
		t.Errorf("final state %+v", got)
	}
	if c := stats.Snapshot(); c.Discarded == 0 {
		t.Error("expected a discarded frame to be counted")
	}
}

func TestFramer_SingleMarkerNeverEmits(t *testing.T) {
	f := NewFramer()
	f.Advance(Marker)
	for i := 0; i < 10000; i++ {
		if _, ok := f.Advance(uint16(i % 0x5000)); ok {
			t.Fatal("emitted a frame without a closing marker")
		}
	}
	if got := f.State(); got.Kind != DetectParamsCount {
		t.Errorf("state %v", got.Kind)
	}
}

func TestFramer_Reset(t *testing.T) {
	f := NewFramer()
	collect(f, []uint16{Marker, 1, Marker})
	f.Reset()
	if got := f.State(); got.Kind != DetectMarker || got.Count != 0 {
		t.Errorf("after reset: %+v", got)
	}
}

// ============================================================
// Emission Tests
// ============================================================

func TestAppendFrame_SanitizesMarker(t *testing.T) {
	words := AppendFrame(nil, 1, Marker, 3)
	expected := []uint16{Marker, 1, Marker ^ 1, 3}
	if !equalValues(words, expected) {
		t.Errorf("AppendFrame = %v, expected %v", words, expected)
	}
}

// ============================================================
// Fuzz Tests
// ============================================================

func TestFuzzFramer_RandomWords(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	f := NewFramer()

	for i := 0; i < rounds; i++ {
		var w uint16
		if rng.Intn(8) == 0 {
			w = Marker
		} else {
			w = uint16(rng.Intn(0x10000))
		}
		frame, ok := f.Advance(w)
		if ok && (frame.Len() == 0 || frame.Len() > MaxParamsCount) {
			t.Fatalf("emitted frame of invalid size %d", frame.Len())
		}
	}
}

func TestFuzzFramer_ResyncAfterGarbage(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}

	for r := 0; r < rounds; r++ {
		f := NewFramer()

		garbage := make([]uint16, rng.Intn(64))
		for i := range garbage {
			garbage[i] = uint16(rng.Intn(0x10000))
		}
		collect(f, garbage)

		n := 1 + rng.Intn(MaxParamsCount)
		values := make([]uint16, n)
		for i := range values {
			values[i] = Sanitize(uint16(rng.Intn(0x10000)))
		}

		var words []uint16
		for i := 0; i < 4; i++ {
			words = AppendFrame(words, values...)
		}
		frames := collect(f, words)
		if len(frames) == 0 {
			t.Fatalf("round %d: no frame after resync", r)
		}
		last := frames[len(frames)-1]
		if !equalValues(last, values) {
			t.Fatalf("round %d: last frame %v, expected %v", r, last, values)
		}
	}
}
