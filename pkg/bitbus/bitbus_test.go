// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package bitbus

import "testing"

// ============================================================
// Codec Tests
// ============================================================

func TestEncodeDecode_RoundTripAllWords(t *testing.T) {
	for i := 0; i <= 0xFFFF; i++ {
		w := Word(i)
		a, b := Encode(w)
		if got := Decode(a, b); got != w {
			t.Fatalf("Decode(Encode(0x%04X)) = 0x%04X", w, got)
		}
	}
}

func TestDecode_BitPlacement(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint16
		expected Word
	}{
		{"port A low bits", 0x007F, 0x0000, 0x007F},
		{"port A bit 15", 0x8000, 0x0000, 0x8000},
		{"port B low bits to 7..9", 0x0000, 0x0007, 0x0380},
		{"port B bit 10 to 10", 0x0000, 0x0400, 0x0400},
		{"port B high nibble to 11..14", 0x0000, 0xF000, 0x7800},
		{"unmapped port A pins ignored", 0x7F80, 0x0000, 0x0000},
		{"unmapped port B pins ignored", 0x0000, 0x0BF8, 0x0000},
		{"marker", 0x0055, 0x5002, 0x2955},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decode(tt.a, tt.b); got != tt.expected {
				t.Errorf("Decode(0x%04X, 0x%04X) = 0x%04X, expected 0x%04X", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestEncode_UnmappedPinsLow(t *testing.T) {
	a, b := Encode(0xFFFF)
	if a != portAMask {
		t.Errorf("port A = 0x%04X, expected 0x%04X", a, portAMask)
	}
	if b != portBMask {
		t.Errorf("port B = 0x%04X, expected 0x%04X", b, portBMask)
	}
}

// ============================================================
// Mapping Table Tests
// ============================================================

func TestDefaultMapping_Valid(t *testing.T) {
	if err := DefaultMapping.Validate(); err != nil {
		t.Fatalf("default mapping invalid: %v", err)
	}
}

func TestDefaultMapping_MatchesFastPath(t *testing.T) {
	m := DefaultMapping
	for i := 0; i <= 0xFFFF; i++ {
		w := Word(i)
		fa, fb := Encode(w)
		ta, tb := m.Encode(w)
		if fa != ta || fb != tb {
			t.Fatalf("Encode(0x%04X): fast (0x%04X,0x%04X) table (0x%04X,0x%04X)", w, fa, fb, ta, tb)
		}
		if got := m.Decode(fa, fb); got != w {
			t.Fatalf("table Decode(Encode(0x%04X)) = 0x%04X", w, got)
		}
	}

	a, b := m.Masks()
	if a != portAMask || b != portBMask {
		t.Errorf("Masks() = (0x%04X, 0x%04X)", a, b)
	}
}

func TestMapping_ValidateRejectsDuplicatePin(t *testing.T) {
	m := DefaultMapping
	m[3] = m[4]
	if err := m.Validate(); err == nil {
		t.Error("expected error for duplicated pin")
	}
}

func TestMapping_ValidateRejectsBadBit(t *testing.T) {
	m := DefaultMapping
	m[0] = Pin{Port: PortA, Bit: 16}
	if err := m.Validate(); err == nil {
		t.Error("expected error for out of range bit")
	}
}

// ============================================================
// Bus And Latch Tests
// ============================================================

func TestPortBus_LatchRoundTrip(t *testing.T) {
	latch := NewLatch(8)
	strobes := 0
	latch.OnStrobe(func() { strobes++ })

	out := NewBus(latch, nil)
	in := NewBus(latch, &DefaultMapping)

	words := []Word{0x5555, 10, 20, 0xFFFF, 0x8001}
	for _, w := range words {
		Emit(out, w)
	}

	if strobes != len(words) {
		t.Fatalf("strobe callback fired %d times, expected %d", strobes, len(words))
	}
	for i, w := range words {
		if got := in.Read(); got != w {
			t.Errorf("word %d: got 0x%04X, expected 0x%04X", i, got, w)
		}
	}
	if latch.Pending() != 0 {
		t.Errorf("pending = %d, expected 0", latch.Pending())
	}
}

func TestLatch_OverrunDropsNewSamples(t *testing.T) {
	latch := NewLatch(2)
	bus := NewBus(latch, nil)

	Emit(bus, 1)
	Emit(bus, 2)
	Emit(bus, 3)

	if bus.Pending() != 2 {
		t.Errorf("bus pending = %d, expected 2", bus.Pending())
	}
	if latch.Overruns() != 1 {
		t.Errorf("overruns = %d, expected 1", latch.Overruns())
	}
	if latch.Strobes() != 3 {
		t.Errorf("strobes = %d, expected 3", latch.Strobes())
	}
	if got := bus.Read(); got != 1 {
		t.Errorf("first read = %d, expected 1", got)
	}
	if got := bus.Read(); got != 2 {
		t.Errorf("second read = %d, expected 2", got)
	}
	// Idle pins hold the last level
	if got := bus.Read(); got != 2 {
		t.Errorf("idle read = %d, expected 2", got)
	}
}
