// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package firmware

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/artemkorobko/an26sim/pkg/bitbus"
	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/generator"
	"github.com/artemkorobko/an26sim/pkg/sched"
	"github.com/artemkorobko/an26sim/pkg/sm2m"
)

// EmulatorConfig configures an Emulator.
type EmulatorConfig struct {
	Bus     bitbus.Bus
	USB     control.Transport
	LED     LED                // optional
	Version *control.Version   // optional, defaults to Version
	Profile *generator.Profile // optional, applied before start
	Rand    *rand.Rand         // optional, used for bounces
	Logger  *zap.Logger        // optional
}

// Emulator drives synthetic frames onto the bus from the generator store and
// lets the host configure the generators.
type Emulator struct {
	*usbDevice

	bus     bitbus.Bus
	led     LED
	version control.Version
	logger  *zap.Logger

	generators *sched.Resource[*generator.Generators]
	frameTimer *sched.Interrupt
	generate   *sched.Task[struct{}]

	// latest requested frame rate, zero stops the timer
	rate      chan uint8
	timerDone chan struct{}
	started   atomic.Bool
	frames    uint64 // owned by generate_params
}

// NewEmulator builds the emulator application and registers its tasks.
func NewEmulator(cfg EmulatorConfig) (*Emulator, error) {
	if cfg.Bus == nil || cfg.USB == nil {
		return nil, errors.New("firmware: emulator needs a bus and a USB transport")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("device", "emulator"))

	e := &Emulator{
		bus:       cfg.Bus,
		led:       cfg.LED,
		version:   Version,
		logger:    logger,
		rate:      make(chan uint8, 1),
		timerDone: make(chan struct{}),
	}
	if e.led == nil {
		e.led = nopLED{}
	}
	if cfg.Version != nil {
		e.version = *cfg.Version
	}

	gens := generator.NewGenerators(cfg.Rand)
	if cfg.Profile != nil {
		if err := cfg.Profile.Apply(gens); err != nil {
			return nil, err
		}
	}

	s := sched.New(logger)
	usb, err := newUSBDevice(s, logger, cfg.USB, e.handleRequest)
	if err != nil {
		return nil, err
	}
	e.usbDevice = usb
	e.generators = sched.NewResource(s, "generators", sched.PrioritySoftware, gens)

	e.generate, err = sched.NewTask(s, "generate_params", sched.PrioritySoftware, 1, e.generateParams)
	if err != nil {
		return nil, err
	}
	e.frameTimer, err = s.Interrupt("frame_timer", sched.PriorityTransfer, func(*sched.Context) {
		e.generate.Spawn(struct{}{})
	})
	if err != nil {
		return nil, err
	}

	if gens.Enabled() {
		e.setRate(gens.FPS())
	}
	return e, nil
}

// Start runs the scheduler and the frame timer until ctx is cancelled.
func (e *Emulator) Start(ctx context.Context) error {
	if err := e.sched.Start(ctx); err != nil {
		return err
	}
	e.started.Store(true)
	go e.timer(ctx)
	return nil
}

// Wait blocks until the scheduler and the frame timer have stopped.
func (e *Emulator) Wait() error {
	err := e.sched.Wait()
	if e.started.Load() {
		<-e.timerDone
	}
	return err
}

// Enabled reports whether frames are being emitted.
func (e *Emulator) Enabled() bool {
	var enabled bool
	e.generators.Lock(nil, func(g **generator.Generators) {
		enabled = (*g).Enabled()
	})
	return enabled
}

// Values returns the current parameter values.
func (e *Emulator) Values() []uint16 {
	var out []uint16
	e.generators.Lock(nil, func(g **generator.Generators) {
		out = (*g).Values(nil)
	})
	return out
}

// setRate hands the newest frame rate to the timer, replacing one not yet
// picked up.
func (e *Emulator) setRate(fps uint8) {
	for {
		select {
		case e.rate <- fps:
			return
		default:
		}
		select {
		case <-e.rate:
		default:
		}
	}
}

// timer pends frame_timer at the configured rate.
func (e *Emulator) timer(ctx context.Context) {
	defer close(e.timerDone)
	var ticker *time.Ticker
	var tick <-chan time.Time
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fps := <-e.rate:
			stop()
			if fps == 0 {
				e.logger.Info("frame timer stopped")
				continue
			}
			ticker = time.NewTicker(time.Second / time.Duration(fps))
			tick = ticker.C
			e.logger.Info("frame timer started", zap.Uint8("fps", fps))
		case <-tick:
			e.frameTimer.Pend()
		}
	}
}

func (e *Emulator) generateParams(ctx *sched.Context, _ struct{}) {
	var values [sm2m.MaxParamsCount]uint16
	var out []uint16

	err := e.generators.Lock(ctx, func(g **generator.Generators) {
		if !(*g).Enabled() {
			return
		}
		out = (*g).Tick(values[:0])
	})
	if err != nil {
		ctx.Logger().Error("generators lock failed", zap.Error(err))
		return
	}
	if out == nil {
		return
	}

	bitbus.Emit(e.bus, sm2m.Marker)
	for _, v := range out {
		bitbus.Emit(e.bus, sm2m.Sanitize(v))
	}
	e.frames++
	if e.frames%64 == 0 {
		e.led.Toggle()
	}
}

func (e *Emulator) handleRequest(ctx *sched.Context, req control.Request) {
	if e.handleCommon(ctx, req, e.led, e.version) {
		return
	}

	var resp control.Response
	err := e.generators.Lock(ctx, func(gp **generator.Generators) {
		g := *gp
		switch r := req.(type) {
		case control.SetParam:
			if !g.UpdateParam(int(r.Index), r.Value) {
				resp = control.NewInvalidIndex(r.Index)
			}
		case control.GetParam:
			if v, ok := g.Param(int(r.Index)); ok {
				resp = control.Param{Index: r.Index, Value: v}
			} else {
				resp = control.NewInvalidIndex(r.Index)
			}
		case control.EnableGenerator:
			cfg := generator.Config{Value: r.Value, Period: r.Period, Step: r.Step, Bounce: r.Bounce}
			if !g.Configure(int(r.Index), cfg) {
				resp = control.NewInvalidIndex(r.Index)
			}
		case control.DisableGenerator:
			if !g.DisableGenerator(int(r.Index)) {
				resp = control.NewInvalidIndex(r.Index)
			}
		case control.StartGenerators:
			g.Enable(r.FPS)
			e.setRate(r.FPS)
		case control.StopGenerators:
			g.Disable()
			e.setRate(0)
		default:
			ctx.Logger().Debug("request ignored by emulator", zap.String("request", control.OpcodeName(req)))
		}
	})
	if err != nil {
		ctx.Logger().Error("generators lock failed", zap.Error(err))
		return
	}
	if resp != nil {
		e.respond(ctx, resp)
	}
}
