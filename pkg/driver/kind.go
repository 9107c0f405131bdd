// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

// Package driver talks to SM2M devices from the host. Devices are found by
// USB vendor and product id and told apart by their serial number string.
// A device is reached over one of several links: libusb, a CDC-ACM serial
// port, a websocket bridge or an in-memory pipe to a simulated device.
package driver

import (
	"fmt"
	"strings"
)

// USB identity shared by every SM2M device
const (
	VendorID  uint16 = 0x0483
	ProductID uint16 = 0x5740
)

// Kind identifies the device application.
type Kind int

const (
	KindUnknown Kind = iota
	KindDecoder
	KindEmulator
	KindEncoder
)

// Serial number strings
const (
	SerialDecoder  = "SM2M-DECODER"
	SerialEmulator = "SM2M-EMULATOR"
	SerialEncoder  = "SM2M-ENCODER"
)

// Serial returns the USB serial number string of the kind.
func (k Kind) Serial() string {
	switch k {
	case KindDecoder:
		return SerialDecoder
	case KindEmulator:
		return SerialEmulator
	case KindEncoder:
		return SerialEncoder
	default:
		return ""
	}
}

// String returns the lower case kind name.
func (k Kind) String() string {
	switch k {
	case KindDecoder:
		return "decoder"
	case KindEmulator:
		return "emulator"
	case KindEncoder:
		return "encoder"
	default:
		return "unknown"
	}
}

// KindFromSerial maps a serial number string to a kind.
func KindFromSerial(serial string) Kind {
	switch strings.TrimSpace(serial) {
	case SerialDecoder:
		return KindDecoder
	case SerialEmulator:
		return KindEmulator
	case SerialEncoder:
		return KindEncoder
	default:
		return KindUnknown
	}
}

// ParseKind parses a kind name as used on the command line.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "decoder":
		return KindDecoder, nil
	case "emulator":
		return KindEmulator, nil
	case "encoder":
		return KindEncoder, nil
	default:
		return KindUnknown, fmt.Errorf("unknown device kind %q (use decoder, emulator or encoder)", name)
	}
}
