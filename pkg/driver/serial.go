// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// DefaultBaudRate is ignored by CDC-ACM devices but required to open the port.
const DefaultBaudRate = 115200

// serialPollInterval bounds how long a read waits before rechecking ctx.
const serialPollInterval = 100 * time.Millisecond

// SerialLink talks to a device through its CDC-ACM serial port. Each read
// returns what one USB transfer delivered, which is one control packet.
type SerialLink struct {
	port serial.Port
	name string
	mu   sync.Mutex
}

// OpenSerial opens a serial port.
func OpenSerial(name string, baudRate int) (*SerialLink, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, newError(OpOpenDevice, -1, fmt.Errorf("failed to open serial port %s: %w", name, err))
	}
	return &SerialLink{port: port, name: name}, nil
}

// ReadContext reads one packet, polling so ctx cancellation is noticed.
func (l *SerialLink) ReadContext(ctx context.Context, p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return 0, newError(OpRead, -1, fmt.Errorf("%w: %v", ErrTimeout, err))
		}

		wait := serialPollInterval
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			continue
		}
		if err := l.port.SetReadTimeout(wait); err != nil {
			return 0, newError(OpRead, -1, err)
		}

		n, err := l.port.Read(p)
		if err != nil {
			return n, newError(OpRead, -1, err)
		}
		if n > 0 {
			return n, nil
		}
	}
}

// WriteContext writes one packet.
func (l *SerialLink) WriteContext(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, newError(OpWrite, -1, fmt.Errorf("%w: %v", ErrTimeout, err))
	}
	n, err := l.port.Write(p)
	if err != nil {
		return n, newError(OpWrite, -1, err)
	}
	return n, nil
}

// Reset discards anything buffered in either direction.
func (l *SerialLink) Reset() error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return newError(OpReset, -1, err)
	}
	if err := l.port.ResetOutputBuffer(); err != nil {
		return newError(OpReset, -1, err)
	}
	return nil
}

// Close closes the port.
func (l *SerialLink) Close() error {
	return l.port.Close()
}

// String describes the link.
func (l *SerialLink) String() string {
	return "serial:" + l.name
}

func parseHexID(s string) (uint16, bool) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

// matchSerialPort reports whether an enumerated port belongs to an SM2M
// device.
func matchSerialPort(p *enumerator.PortDetails) bool {
	if p == nil || !p.IsUSB {
		return false
	}
	vid, okV := parseHexID(p.VID)
	pid, okP := parseHexID(p.PID)
	return okV && okP && vid == VendorID && pid == ProductID
}

// listSerial reports CDC-ACM ports with the SM2M identity.
func listSerial(logger *zap.Logger) ([]DeviceInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, newError(OpDeviceList, -1, err)
	}

	var infos []DeviceInfo
	for _, p := range ports {
		if !matchSerialPort(p) {
			continue
		}
		logger.Debug("serial port matched", zap.String("port", p.Name), zap.String("serial", p.SerialNumber))
		infos = append(infos, DeviceInfo{
			Kind:      KindFromSerial(p.SerialNumber),
			Serial:    p.SerialNumber,
			Transport: TransportSerial,
			Path:      p.Name,
		})
	}
	return infos, nil
}
