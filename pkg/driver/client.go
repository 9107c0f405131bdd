// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"fmt"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

// Decoder is the host side of a decoder device.
type Decoder struct {
	*Device
}

// NewDecoder wraps a device opened as a decoder.
func NewDecoder(d *Device) *Decoder {
	return &Decoder{Device: d}
}

// ReadParams waits for the next PARAMS frame and returns its values. Other
// responses are skipped.
func (c *Decoder) ReadParams(ctx context.Context) ([]uint16, error) {
	for {
		c.mu.Lock()
		var buf [control.MaxPacketSize]byte
		n, err := c.link.ReadContext(ctx, buf[:])
		c.mu.Unlock()
		if err != nil {
			return nil, asTimeout(ctx, OpRead, err)
		}

		resp := control.DecodeResponse(buf[:n])
		c.stats.Response(resp)
		if p, ok := resp.(control.Params); ok {
			return p.Values, nil
		}
	}
}

// Emulator is the host side of an emulator device.
type Emulator struct {
	*Device
}

// NewEmulator wraps a device opened as an emulator.
func NewEmulator(d *Device) *Emulator {
	return &Emulator{Device: d}
}

// EnableGenerator installs a generator on one parameter. Min and Max are
// firmware defaults and are not part of the request.
func (c *Emulator) EnableGenerator(ctx context.Context, index uint8, cfg generator.Config) error {
	return c.send(ctx, control.NewEnableGenerator(index, cfg.Period, cfg.Value, cfg.Step, cfg.Bounce))
}

// DisableGenerator removes the generator from one parameter; the parameter
// keeps its last value.
func (c *Emulator) DisableGenerator(ctx context.Context, index uint8) error {
	return c.send(ctx, control.NewDisableGenerator(index))
}

// StartProducer starts frame emission at fps frames per second.
func (c *Emulator) StartProducer(ctx context.Context, fps uint8) error {
	if fps == 0 {
		return fmt.Errorf("%w: fps must be positive", ErrInvalidRequest)
	}
	return c.send(ctx, control.NewStartGenerators(fps))
}

// StopProducer stops frame emission.
func (c *Emulator) StopProducer(ctx context.Context) error {
	return c.send(ctx, control.StopGenerators{})
}

// ApplyProfile configures every generator of the profile and starts the
// producer at the profile rate.
func (c *Emulator) ApplyProfile(ctx context.Context, p *generator.Profile) error {
	for _, slot := range p.Generators {
		if slot.Index < 0 || slot.Index >= control.MaxParams {
			return fmt.Errorf("%w: generator index %d out of range", ErrInvalidRequest, slot.Index)
		}
		if err := c.EnableGenerator(ctx, uint8(slot.Index), slot.Config); err != nil {
			return fmt.Errorf("generator %d: %w", slot.Index, err)
		}
	}
	return c.StartProducer(ctx, p.FPS)
}
