// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package bitbus maps SM2M logical bus words to and from the two physical
// 16-bit GPIO banks the bus is wired to.
//
// The board wiring is irregular: logical bits 0..6 and 15 sit on port A at the
// same positions, logical bits 7..9 sit on the three low bits of port B,
// logical bit 10 on port B bit 10 and logical bits 11..14 on port B bits
// 12..15.
package bitbus

import "fmt"

// Word is one logical 16-bit sample or emission on the bus.
type Word = uint16

// Port identifies one of the two physical GPIO banks.
type Port uint8

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	switch p {
	case PortA:
		return "A"
	case PortB:
		return "B"
	default:
		return fmt.Sprintf("Port(%d)", uint8(p))
	}
}

// Pin is a physical bit position.
type Pin struct {
	Port Port
	Bit  uint8
}

// Mapping gives the physical pin holding each logical bit.
type Mapping [16]Pin

// DefaultMapping is the SM2M board wiring.
var DefaultMapping = Mapping{
	{PortA, 0}, {PortA, 1}, {PortA, 2}, {PortA, 3},
	{PortA, 4}, {PortA, 5}, {PortA, 6},
	{PortB, 0}, {PortB, 1}, {PortB, 2},
	{PortB, 10},
	{PortB, 12}, {PortB, 13}, {PortB, 14}, {PortB, 15},
	{PortA, 15},
}

// Physical masks of the pins used by DefaultMapping
const (
	portAMask = 0x807F
	portBMask = 0xF407
)

// Decode merges two physical port values into a logical word using the
// default wiring. Pins outside the mapping are ignored.
func Decode(a, b uint16) Word {
	a &= portAMask
	return a | (b&0x0007)<<7 | (b & 0x0400) | (b&0xF000)>>1
}

// Encode splits a logical word into the two physical port values using the
// default wiring. Unmapped pins are driven low.
func Encode(w Word) (a, b uint16) {
	a = w & portAMask
	b = (w>>7)&0x0007 | (w & 0x0400) | (w&0x7800)<<1
	return a, b
}

// Validate checks that the mapping is a bijection between the 16 logical
// bits and 16 distinct physical pins.
func (m *Mapping) Validate() error {
	seen := make(map[Pin]int, len(m))
	for logical, pin := range m {
		if pin.Port > PortB {
			return fmt.Errorf("logical bit %d: unknown port %v", logical, pin.Port)
		}
		if pin.Bit > 15 {
			return fmt.Errorf("logical bit %d: physical bit %d out of range", logical, pin.Bit)
		}
		if prev, ok := seen[pin]; ok {
			return fmt.Errorf("logical bits %d and %d share pin %v%d", prev, logical, pin.Port, pin.Bit)
		}
		seen[pin] = logical
	}
	return nil
}

// Decode merges two physical port values using the mapping table.
func (m *Mapping) Decode(a, b uint16) Word {
	var w Word
	for logical, pin := range m {
		src := a
		if pin.Port == PortB {
			src = b
		}
		if src&(1<<pin.Bit) != 0 {
			w |= 1 << logical
		}
	}
	return w
}

// Encode splits a logical word using the mapping table.
func (m *Mapping) Encode(w Word) (a, b uint16) {
	for logical, pin := range m {
		if w&(1<<logical) == 0 {
			continue
		}
		if pin.Port == PortB {
			b |= 1 << pin.Bit
		} else {
			a |= 1 << pin.Bit
		}
	}
	return a, b
}

// Masks returns the physical pins used on each port.
func (m *Mapping) Masks() (a, b uint16) {
	return m.Encode(0xFFFF)
}
