// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package firmware

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/bitbus"
	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/sched"
	"github.com/artemkorobko/an26sim/pkg/sm2m"
)

// DecoderConfig configures a Decoder.
type DecoderConfig struct {
	Bus        bitbus.Bus
	USB        control.Transport
	LED        LED              // optional
	Version    *control.Version // optional, defaults to Version
	Statistics *sm2m.Statistics // optional
	Logger     *zap.Logger      // optional
}

type decoderParams struct {
	values [sm2m.MaxParamsCount]uint16
	count  int
}

// Decoder samples the bus, reassembles frames and forwards them to the host
// as PARAMS responses.
type Decoder struct {
	*usbDevice

	bus     bitbus.Bus
	led     LED
	version control.Version
	frames  *sm2m.Statistics

	// owned by bus_sample
	framer *sm2m.Framer

	params    *sched.Resource[decoderParams]
	busSample *sched.Interrupt
	transfer  *sched.Task[sm2m.ParamsBuffer]
}

// NewDecoder builds the decoder application and registers its tasks.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if cfg.Bus == nil || cfg.USB == nil {
		return nil, errors.New("firmware: decoder needs a bus and a USB transport")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("device", "decoder"))

	d := &Decoder{
		bus:     cfg.Bus,
		led:     cfg.LED,
		version: Version,
		frames:  cfg.Statistics,
		framer:  sm2m.NewFramer(),
	}
	if d.led == nil {
		d.led = nopLED{}
	}
	if cfg.Version != nil {
		d.version = *cfg.Version
	}
	if d.frames == nil {
		d.frames = sm2m.NewStatistics()
	}
	d.framer.SetStatistics(d.frames)

	s := sched.New(logger)
	usb, err := newUSBDevice(s, logger, cfg.USB, d.handleRequest)
	if err != nil {
		return nil, err
	}
	d.usbDevice = usb
	d.params = sched.NewResource(s, "params", sched.PrioritySoftware, decoderParams{})

	d.transfer, err = sched.NewTask(s, "transfer_params", sched.PrioritySoftware, TransferQueueSize, d.transferParams)
	if err != nil {
		return nil, err
	}
	d.busSample, err = s.Interrupt("bus_sample", sched.PriorityLine, d.sample)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Start runs the scheduler until ctx is cancelled.
func (d *Decoder) Start(ctx context.Context) error {
	return d.sched.Start(ctx)
}

// Wait blocks until the scheduler has stopped.
func (d *Decoder) Wait() error {
	return d.sched.Wait()
}

// OnStrobe is the strobe line interrupt entry point.
func (d *Decoder) OnStrobe() {
	d.busSample.Pend()
}

// Statistics returns the frame counters.
func (d *Decoder) Statistics() *sm2m.Statistics {
	return d.frames
}

// Params returns the values of the last transferred frame.
func (d *Decoder) Params() []uint16 {
	var out []uint16
	d.params.Lock(nil, func(p *decoderParams) {
		out = append(out, p.values[:p.count]...)
	})
	return out
}

func (d *Decoder) sample(ctx *sched.Context) {
	n := 1
	if p, ok := d.bus.(interface{ Pending() int }); ok {
		n = p.Pending()
	}
	for i := 0; i < n; i++ {
		frame, ok := d.framer.Advance(d.bus.Read())
		if !ok {
			continue
		}
		if !d.transfer.Spawn(frame) {
			d.frames.Drop()
		}
	}
}

func (d *Decoder) transferParams(ctx *sched.Context, frame sm2m.ParamsBuffer) {
	values := frame.Values()
	err := d.params.Lock(ctx, func(p *decoderParams) {
		p.count = copy(p.values[:], values)
	})
	if err != nil {
		ctx.Logger().Error("params lock failed", zap.Error(err))
		return
	}
	d.led.Toggle()
	d.respond(ctx, control.NewParams(values))
}

func (d *Decoder) handleRequest(ctx *sched.Context, req control.Request) {
	if d.handleCommon(ctx, req, d.led, d.version) {
		return
	}

	switch r := req.(type) {
	case control.SetParam:
		if int(r.Index) >= sm2m.MaxParamsCount {
			d.respond(ctx, control.NewInvalidIndex(r.Index))
			return
		}
		err := d.params.Lock(ctx, func(p *decoderParams) {
			p.values[r.Index] = r.Value
			if int(r.Index) >= p.count {
				p.count = int(r.Index) + 1
			}
		})
		if err != nil {
			ctx.Logger().Error("params lock failed", zap.Error(err))
		}
	case control.GetParam:
		if int(r.Index) >= sm2m.MaxParamsCount {
			d.respond(ctx, control.NewInvalidIndex(r.Index))
			return
		}
		var value uint16
		err := d.params.Lock(ctx, func(p *decoderParams) {
			value = p.values[r.Index]
		})
		if err != nil {
			ctx.Logger().Error("params lock failed", zap.Error(err))
			return
		}
		d.respond(ctx, control.Param{Index: r.Index, Value: value})
	default:
		ctx.Logger().Debug("request ignored by decoder", zap.String("request", control.OpcodeName(req)))
	}
}
