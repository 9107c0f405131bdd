// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package generator

import (
	"math/rand/v2"

	"github.com/artemkorobko/an26sim/pkg/sm2m"
)

// Config describes one generator slot.
type Config struct {
	Value  uint16 `yaml:"value" json:"value"`
	Period uint8  `yaml:"period" json:"period"`
	Step   uint16 `yaml:"step" json:"step"`
	Min    uint16 `yaml:"min" json:"min"`
	Max    uint16 `yaml:"max" json:"max"` // zero means no upper bound
	Bounce uint8  `yaml:"bounce" json:"bounce"`
}

// Bounds returns the effective [min, max] range.
func (c Config) Bounds() (uint16, uint16) {
	max := c.Max
	if max == 0 {
		max = 0xFFFF
	}
	if c.Min > max {
		return max, c.Min
	}
	return c.Min, max
}

// Source builds the generator described by the config. A zero step yields a
// constant; a non-zero bounce wraps the result in a Bounced generator.
func (c Config) Source(rng *rand.Rand) Source {
	min, max := c.Bounds()

	var src Source
	if c.Step == 0 {
		src = NewConstant(c.Value)
	} else {
		seq := NewSequential(c.Value, c.Period, c.Step)
		seq.Min = min
		seq.Max = max
		src = seq
	}

	if c.Bounce > 0 {
		src = NewBounced(src, c.Bounce, min, max, rng)
	}
	return src
}

// Generators is the emulator's parameter store: one optional generator per
// parameter index, the value each parameter currently holds, and the global
// emission settings.
type Generators struct {
	slots   [sm2m.MaxParamsCount]Source
	values  [sm2m.MaxParamsCount]uint16
	enabled bool
	fps     uint8
	rng     *rand.Rand
}

// NewGenerators creates an empty, disabled store. A nil rng uses a randomly
// seeded generator for bounces.
func NewGenerators(rng *rand.Rand) *Generators {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generators{rng: rng}
}

// Enabled reports whether frames should be emitted.
func (g *Generators) Enabled() bool {
	return g.enabled
}

// FPS returns the target emission rate in frames per second.
func (g *Generators) FPS() uint8 {
	return g.fps
}

// Enable sets the emission rate and activates emission.
func (g *Generators) Enable(fps uint8) {
	g.fps = fps
	g.enabled = true
}

// Disable stops emission. Generator state is kept and resumes on Enable.
func (g *Generators) Disable() {
	g.enabled = false
}

// EnableGenerator creates or replaces the sequential generator at index.
// It reports false when index is out of range.
func (g *Generators) EnableGenerator(index int, value uint16, period uint8, step uint16) bool {
	return g.Configure(index, Config{Value: value, Period: period, Step: step})
}

// Configure creates or replaces the generator at index from a config.
func (g *Generators) Configure(index int, cfg Config) bool {
	if !inRange(index) {
		return false
	}
	src := cfg.Source(g.rng)
	g.slots[index] = src
	g.values[index] = src.Value()
	return true
}

// DisableGenerator removes the generator at index. The parameter keeps its
// last value.
func (g *Generators) DisableGenerator(index int) bool {
	if !inRange(index) {
		return false
	}
	g.slots[index] = nil
	return true
}

// Active reports whether a generator is configured at index.
func (g *Generators) Active(index int) bool {
	return inRange(index) && g.slots[index] != nil
}

// UpdateParam overrides the value at index, moving its generator too.
func (g *Generators) UpdateParam(index int, value uint16) bool {
	if !inRange(index) {
		return false
	}
	g.values[index] = value
	if src := g.slots[index]; src != nil {
		src.Reset(value)
	}
	return true
}

// Param returns the value currently held at index.
func (g *Generators) Param(index int) (uint16, bool) {
	if !inRange(index) {
		return 0, false
	}
	return g.values[index], true
}

// Tick advances every configured generator once and appends all parameter
// values, in index order, to dst.
func (g *Generators) Tick(dst []uint16) []uint16 {
	for i, src := range g.slots {
		if src != nil {
			g.values[i] = src.Next()
		}
	}
	return append(dst, g.values[:]...)
}

// Values appends the held values to dst without advancing.
func (g *Generators) Values(dst []uint16) []uint16 {
	return append(dst, g.values[:]...)
}

func inRange(index int) bool {
	return index >= 0 && index < sm2m.MaxParamsCount
}
