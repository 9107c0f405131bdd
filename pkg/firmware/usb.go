// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package firmware

import (
	"errors"

	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/sched"
)

// usbPort is the USB peripheral shared between the receive interrupt and
// every task that answers the host.
type usbPort struct {
	transport control.Transport
}

// usbDevice is the control channel plumbing shared by both applications:
// usb_line pends usb_rx, usb_rx reads and decodes one packet and hands it to
// handle_request.
type usbDevice struct {
	sched  *sched.Scheduler
	logger *zap.Logger
	stats  *control.Statistics

	usb     *sched.Resource[usbPort]
	usbLine *sched.Interrupt
	usbRx   *sched.Interrupt
	handle  *sched.Task[control.Request]
}

func newUSBDevice(s *sched.Scheduler, logger *zap.Logger, transport control.Transport,
	handler func(*sched.Context, control.Request)) (*usbDevice, error) {
	d := &usbDevice{
		sched:  s,
		logger: logger,
		stats:  control.NewStatistics(),
		usb:    sched.NewResource(s, "usb", sched.PriorityTransfer, usbPort{transport: transport}),
	}

	var err error
	d.handle, err = sched.NewTask(s, "handle_request", sched.PrioritySoftware, RequestQueueSize, handler)
	if err != nil {
		return nil, err
	}
	d.usbRx, err = s.Interrupt("usb_rx", sched.PriorityTransfer, d.receive)
	if err != nil {
		return nil, err
	}
	d.usbLine, err = s.Interrupt("usb_line", sched.PriorityLine, func(*sched.Context) {
		d.usbRx.Pend()
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// OnUSB is the USB line interrupt entry point. Call it whenever the host may
// have sent a packet.
func (d *usbDevice) OnUSB() {
	d.usbLine.Pend()
}

func (d *usbDevice) receive(ctx *sched.Context) {
	var buf [control.MaxPacketSize]byte
	var n int
	var more bool
	var readErr error

	err := d.usb.Lock(ctx, func(u *usbPort) {
		n, readErr = control.ReadPacket(u.transport, buf[:])
		more = u.transport.Poll()
	})
	if err != nil {
		d.logger.Error("usb lock failed", zap.Error(err))
		return
	}
	if more {
		d.usbRx.Pend()
	}
	if errors.Is(readErr, control.ErrWouldBlock) {
		return
	}
	if readErr != nil {
		d.logger.Warn("usb read failed", zap.Error(readErr))
		return
	}

	req := control.DecodeRequest(buf[:n])
	d.stats.Request(req)
	if _, ok := req.(control.Unknown); ok {
		d.logger.Debug("unknown request", zap.String("packet", control.FormatPacket(req)))
		return
	}
	if !d.handle.Spawn(req) {
		d.logger.Warn("request dropped, queue full", zap.String("request", control.OpcodeName(req)))
	}
}

// respond writes a response under the USB lock.
func (d *usbDevice) respond(ctx *sched.Context, resp control.Response) {
	var retries uint64
	var writeErr error
	err := d.usb.Lock(ctx, func(u *usbPort) {
		retries, writeErr = control.WriteResponse(u.transport, resp)
	})
	if err == nil {
		err = writeErr
	}
	d.stats.Retries(retries)
	if err != nil {
		d.logger.Warn("usb write failed",
			zap.String("response", control.OpcodeName(resp)),
			zap.Error(err))
		return
	}
	d.stats.Response(resp)
}

// handleCommon answers the requests both applications share. It reports
// false for requests it does not know.
func (d *usbDevice) handleCommon(ctx *sched.Context, req control.Request, led LED, version control.Version) bool {
	switch r := req.(type) {
	case control.GetVersion:
		d.respond(ctx, version)
	case control.Ping:
		d.respond(ctx, control.NewPong(r))
	case control.Led:
		led.Set(r.On)
	default:
		return false
	}
	return true
}

// ControlStatistics returns the control channel counters.
func (d *usbDevice) ControlStatistics() control.Counters {
	return d.stats.Snapshot()
}

// TaskStats returns the scheduler counters.
func (d *usbDevice) TaskStats() []sched.TaskStats {
	return d.sched.Stats()
}
