// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package sm2m implements the SM2M parameter framing protocol.
//
// An SM2M bus carries a repeating stream of 16-bit words. Each frame starts
// with the marker word 0x5555 followed by a fixed number of parameter values.
// A receiver learns the parameter count from the distance between two
// markers, then captures one frame per marker. There is no checksum: any
// glitch is recovered from at the next marker.
package sm2m

// Protocol constants shared by decoder and emulator
const (
	Marker         uint16 = 0x5555
	MaxParamsCount        = 12
)

// StateKind is the phase of the framing state machine.
type StateKind uint8

const (
	DetectMarker StateKind = iota
	DetectParamsCount
	WaitForMarker
	ReadParams
)

func (k StateKind) String() string {
	switch k {
	case DetectMarker:
		return "DETECT_MARKER"
	case DetectParamsCount:
		return "DETECT_PARAMS_COUNT"
	case WaitForMarker:
		return "WAIT_FOR_MARKER"
	case ReadParams:
		return "READ_PARAMS"
	default:
		return "UNKNOWN"
	}
}

// State is a snapshot of the state machine. Count is the number of words
// counted so far in DetectParamsCount and the learned parameter count in
// WaitForMarker and ReadParams.
type State struct {
	Kind  StateKind
	Count int
}
