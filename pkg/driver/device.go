// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// DefaultTimeout applies to a response read whose context has no deadline.
const DefaultTimeout = time.Second

// pingVersion is the version byte the host sends; the device answers with
// pingVersion+1.
const pingVersion = 1

// ErrInvalidRequest is returned for requests the device would reject.
var ErrInvalidRequest = errors.New("invalid request")

// Device is one open SM2M device. Request/response exchanges are
// serialized.
type Device struct {
	link   Link
	kind   Kind
	logger *zap.Logger
	stats  *control.Statistics

	mu sync.Mutex
}

// NewDevice wraps an open link.
func NewDevice(link Link, kind Kind, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{
		link:   link,
		kind:   kind,
		logger: logger.With(zap.String("link", link.String())),
		stats:  control.NewStatistics(),
	}
}

// Kind returns the device application kind.
func (d *Device) Kind() Kind { return d.kind }

// Link returns the underlying link.
func (d *Device) Link() Link { return d.link }

// Statistics returns the traffic counters of this device.
func (d *Device) Statistics() *control.Statistics { return d.stats }

// Close closes the link.
func (d *Device) Close() error { return d.link.Close() }

// String describes the device.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s)", d.kind, d.link)
}

// asTimeout maps a context expiry reported by the link to ErrTimeout.
func asTimeout(ctx context.Context, op Op, err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return newError(op, -1, fmt.Errorf("%w: %v", ErrTimeout, err))
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return newError(op, -1, err)
}

// Write writes buf once, waiting at most timeout.
func (d *Device) Write(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.link.WriteContext(ctx, buf)
	return n, asTimeout(ctx, OpWrite, err)
}

// TryWriteAll writes the whole buffer. A write that times out is retried up
// to retries times.
func (d *Device) TryWriteAll(buf []byte, timeout time.Duration, retries int) error {
	attempts := 0
	for len(buf) > 0 {
		n, err := d.Write(buf, timeout)
		buf = buf[n:]
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTimeout) || attempts >= retries {
			return err
		}
		attempts++
		d.stats.Retries(1)
		d.logger.Debug("write timed out, retrying", zap.Int("attempt", attempts), zap.Int("remaining", len(buf)))
	}
	return nil
}

// TryReadAll reads one packet into buf. A read that times out is retried up
// to retries times.
func (d *Device) TryReadAll(buf []byte, timeout time.Duration, retries int) (int, error) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		n, err := d.link.ReadContext(ctx, buf)
		err = asTimeout(ctx, OpRead, err)
		cancel()
		if err == nil || !errors.Is(err, ErrTimeout) || attempt >= retries {
			return n, err
		}
		d.logger.Debug("read timed out, retrying", zap.Int("attempt", attempt+1))
	}
}

// WriteRequest encodes and sends one request. Requests with an out of range
// index or an unknown opcode are refused without touching the link.
func (d *Device) WriteRequest(ctx context.Context, req control.Request) error {
	for _, anomaly := range control.ValidatePacket(req) {
		switch anomaly.Type {
		case control.AnomalyInvalidIndex, control.AnomalyUnknownOpcode:
			return fmt.Errorf("%w: %s", ErrInvalidRequest, anomaly.Message)
		default:
			d.logger.Warn("suspicious request", zap.String("anomaly", anomaly.Message))
		}
	}

	buf := control.Encode(req)
	n, err := d.link.WriteContext(ctx, buf)
	if err != nil {
		return asTimeout(ctx, OpWrite, err)
	}
	if n != len(buf) {
		return newError(OpWrite, -1, fmt.Errorf("short write: %d of %d bytes", n, len(buf)))
	}
	d.stats.Request(req)
	d.logger.Debug("request sent", zap.String("packet", control.FormatPacket(req)))
	return nil
}

// ReadResponse reads and decodes one response. DefaultTimeout applies when
// ctx has no deadline.
func (d *Device) ReadResponse(ctx context.Context) (control.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var buf [control.MaxPacketSize]byte
	n, err := d.link.ReadContext(ctx, buf[:])
	if err != nil {
		return nil, asTimeout(ctx, OpRead, err)
	}
	resp := control.DecodeResponse(buf[:n])
	d.stats.Response(resp)
	return resp, nil
}

// exchange sends req and reads responses until one of type T arrives.
// PARAMS frames streamed by a decoder are skipped; an ERROR response is
// returned as a DeviceError.
func exchange[T control.Response](ctx context.Context, d *Device, req control.Request) (T, error) {
	var zero T

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	if err := d.WriteRequest(ctx, req); err != nil {
		return zero, err
	}
	for {
		resp, err := d.ReadResponse(ctx)
		if err != nil {
			return zero, err
		}
		switch r := resp.(type) {
		case T:
			return r, nil
		case control.Error:
			return zero, &DeviceError{Response: r}
		case control.Params:
			continue
		default:
			d.logger.Debug("skipping unrelated response", zap.String("packet", control.FormatPacket(resp)))
		}
	}
}

// send writes a request that has no response.
func (d *Device) send(ctx context.Context, req control.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	return d.WriteRequest(ctx, req)
}

// Version asks the device for its firmware version.
func (d *Device) Version(ctx context.Context) (control.Version, error) {
	return exchange[control.Version](ctx, d, control.GetVersion{})
}

// Ping sends a ping and checks the pong echoes it.
func (d *Device) Ping(ctx context.Context, payload uint8) (control.Pong, error) {
	ping := control.NewPing(payload, pingVersion)
	pong, err := exchange[control.Pong](ctx, d, ping)
	if err != nil {
		return pong, err
	}
	want := control.NewPong(ping)
	if pong != want {
		return pong, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse,
			control.FormatPacket(pong), control.FormatPacket(want))
	}
	return pong, nil
}

// Check verifies the device answers two pings with distinct payloads.
func (d *Device) Check(ctx context.Context) error {
	for _, payload := range []uint8{0x05, 0x0A} {
		if _, err := d.Ping(ctx, payload); err != nil {
			return fmt.Errorf("device check failed: %w", err)
		}
	}
	return nil
}

// Reset resets the device through the link, when the link supports it.
func (d *Device) Reset() error {
	r, ok := d.link.(Resetter)
	if !ok {
		return newError(OpReset, -1, ErrNotSupported)
	}
	return r.Reset()
}

// SetLED switches the status LED.
func (d *Device) SetLED(ctx context.Context, on bool) error {
	return d.send(ctx, control.NewLed(on))
}

// SetParam overrides one parameter value.
func (d *Device) SetParam(ctx context.Context, index uint8, value uint16) error {
	return d.send(ctx, control.NewSetParam(index, value))
}

// GetParam reads one parameter value.
func (d *Device) GetParam(ctx context.Context, index uint8) (uint16, error) {
	p, err := exchange[control.Param](ctx, d, control.NewGetParam(index))
	if err != nil {
		return 0, err
	}
	if p.Index != index {
		return 0, fmt.Errorf("%w: asked for index %d, got %d", ErrUnexpectedResponse, index, p.Index)
	}
	return p.Value, nil
}
