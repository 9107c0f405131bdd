// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"errors"
	"fmt"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// Op names the driver step that failed.
type Op string

const (
	OpInit                Op = "init"
	OpDeviceList          Op = "device list"
	OpOpenDevice          Op = "open device"
	OpSerialNumber        Op = "read serial number"
	OpNoReadableEndpoint  Op = "find readable endpoint"
	OpNoWriteableEndpoint Op = "find writeable endpoint"
	OpDetachKernelDriver  Op = "detach kernel driver"
	OpActiveConfiguration Op = "active configuration"
	OpClaimInterface      Op = "claim interface"
	OpEnableEndpoint      Op = "enable endpoint"
	OpReset               Op = "reset"
	OpRead                Op = "read"
	OpWrite               Op = "write"
)

var (
	// ErrDeviceNotFound is returned when no attached device matches.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrTimeout is returned when a transfer did not complete in time.
	ErrTimeout = errors.New("timeout")
	// ErrNotSupported is returned by links that cannot perform an operation.
	ErrNotSupported = errors.New("operation not supported by link")
	// ErrUnexpectedResponse is returned when the device answered with the
	// wrong packet.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// DriverError describes a failed driver operation on a specific device.
type DriverError struct {
	Op        Op
	VendorID  uint16
	ProductID uint16
	Interface int
	Err       error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s (vid=0x%04X pid=0x%04X interface=%d): %v",
		e.Op, e.VendorID, e.ProductID, e.Interface, e.Err)
}

// Unwrap returns the underlying error.
func (e *DriverError) Unwrap() error { return e.Err }

func newError(op Op, iface int, err error) *DriverError {
	return &DriverError{
		Op:        op,
		VendorID:  VendorID,
		ProductID: ProductID,
		Interface: iface,
		Err:       err,
	}
}

// DeviceError is an ERROR response returned by the device.
type DeviceError struct {
	Response control.Error
}

func (e *DeviceError) Error() string {
	return "device error: " + control.FormatPacket(e.Response)
}
