// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package firmware

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artemkorobko/an26sim/pkg/bitbus"
	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	Profile    *generator.Profile // optional emulator profile
	LatchDepth int                // bus FIFO depth, 0 selects the default
	PipeDepth  int                // USB packets buffered per direction, 0 selects the default
	Rand       *rand.Rand
	Logger     *zap.Logger
}

// Simulator is an emulator driving a decoder over an in-memory bus, each with
// its own in-memory USB pipe.
type Simulator struct {
	Latch    *bitbus.Latch
	Emulator *Emulator
	Decoder  *Decoder

	EmulatorLED *SoftLED
	DecoderLED  *SoftLED

	emulatorPipe *control.Pipe
	decoderPipe  *control.Pipe
	logger       *zap.Logger
}

// NewSimulator wires both applications together.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Simulator{
		Latch:        bitbus.NewLatch(cfg.LatchDepth),
		EmulatorLED:  &SoftLED{},
		DecoderLED:   &SoftLED{},
		emulatorPipe: control.NewPipe("emulator", cfg.PipeDepth),
		decoderPipe:  control.NewPipe("decoder", cfg.PipeDepth),
		logger:       logger,
	}

	var err error
	s.Emulator, err = NewEmulator(EmulatorConfig{
		Bus:     bitbus.NewBus(s.Latch, nil),
		USB:     s.emulatorPipe.Device(),
		LED:     s.EmulatorLED,
		Profile: cfg.Profile,
		Rand:    cfg.Rand,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	s.Decoder, err = NewDecoder(DecoderConfig{
		Bus:    bitbus.NewBus(s.Latch, nil),
		USB:    s.decoderPipe.Device(),
		LED:    s.DecoderLED,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	s.Latch.OnStrobe(s.Decoder.OnStrobe)
	s.emulatorPipe.OnHostWrite(s.Emulator.OnUSB)
	s.decoderPipe.OnHostWrite(s.Decoder.OnUSB)
	return s, nil
}

// EmulatorLink returns the host end of the emulator's USB pipe.
func (s *Simulator) EmulatorLink() *control.PipeHost {
	return s.emulatorPipe.Host()
}

// DecoderLink returns the host end of the decoder's USB pipe.
func (s *Simulator) DecoderLink() *control.PipeHost {
	return s.decoderPipe.Host()
}

// Run starts both devices and blocks until ctx is cancelled. Cancelling
// closes both pipes so tasks blocked writing to an idle host return.
func (s *Simulator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if err := s.Decoder.Start(gctx); err != nil {
		return err
	}
	if err := s.Emulator.Start(gctx); err != nil {
		return err
	}
	s.logger.Info("simulator running")

	g.Go(func() error {
		<-gctx.Done()
		s.emulatorPipe.Close()
		s.decoderPipe.Close()
		return nil
	})
	g.Go(s.Decoder.Wait)
	g.Go(s.Emulator.Wait)

	err := g.Wait()
	s.logger.Info("simulator stopped",
		zap.Uint64("strobes", s.Latch.Strobes()),
		zap.Uint64("overruns", s.Latch.Overruns()))
	return err
}
