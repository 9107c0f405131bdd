// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package bitbus

// Ports is the platform adapter for the two GPIO banks and the strobe line.
type Ports interface {
	ReadPorts() (a, b uint16)
	WritePorts(a, b uint16)
	Strobe()
}

// Bus is the logical bus capability the firmware depends on.
type Bus interface {
	Read() Word
	Write(w Word)
	Strobe()
}

// PortBus adapts Ports into a Bus by applying a bit mapping.
type PortBus struct {
	ports   Ports
	mapping *Mapping
}

// NewBus wraps ports with the given mapping. A nil mapping selects the
// default board wiring.
func NewBus(ports Ports, mapping *Mapping) *PortBus {
	return &PortBus{ports: ports, mapping: mapping}
}

// Read samples both ports and returns the logical word.
func (b *PortBus) Read() Word {
	pa, pb := b.ports.ReadPorts()
	if b.mapping == nil {
		return Decode(pa, pb)
	}
	return b.mapping.Decode(pa, pb)
}

// Write drives a logical word onto both ports. It does not strobe.
func (b *PortBus) Write(w Word) {
	var pa, pb uint16
	if b.mapping == nil {
		pa, pb = Encode(w)
	} else {
		pa, pb = b.mapping.Encode(w)
	}
	b.ports.WritePorts(pa, pb)
}

// Strobe pulses the strobe line.
func (b *PortBus) Strobe() {
	b.ports.Strobe()
}

// Emit writes a word and then strobes it. The port write always completes
// before the strobe is raised.
func Emit(bus Bus, w Word) {
	bus.Write(w)
	bus.Strobe()
}

// Pending reports how many strobed samples wait to be read. Ports without a
// sample FIFO always report one, the level currently on the pins.
func (b *PortBus) Pending() int {
	if p, ok := b.ports.(interface{ Pending() int }); ok {
		return p.Pending()
	}
	return 1
}
