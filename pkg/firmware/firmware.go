// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package firmware runs the SM2M decoder and emulator device applications on
// top of the sched scheduler. Both talk to the outside world only through
// capabilities: a bitbus.Bus, a control.Transport and an LED. The Simulator
// wires an emulator and a decoder together in memory.
package firmware

import (
	"sync"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// Version is the firmware version reported to GET_VERSION.
var Version = control.Version{Major: 0, Minor: 1, Patch: 0}

// Queue sizes
const (
	TransferQueueSize = 5
	RequestQueueSize  = 5
)

// LED is the board status LED.
type LED interface {
	Set(on bool)
	Toggle()
}

// SoftLED is an in-memory LED.
type SoftLED struct {
	mu      sync.Mutex
	on      bool
	toggles uint64
}

// Set switches the LED.
func (l *SoftLED) Set(on bool) {
	l.mu.Lock()
	l.on = on
	l.mu.Unlock()
}

// Toggle inverts the LED.
func (l *SoftLED) Toggle() {
	l.mu.Lock()
	l.on = !l.on
	l.toggles++
	l.mu.Unlock()
}

// On reports the LED state.
func (l *SoftLED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Toggles returns how many times the LED was toggled.
func (l *SoftLED) Toggles() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.toggles
}

type nopLED struct{}

func (nopLED) Set(bool) {}
func (nopLED) Toggle()  {}
