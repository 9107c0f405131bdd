// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package generator

import "math/rand/v2"

// Bounced replaces every Every-th value of the wrapped source with a uniform
// random value in [Min, Max]. The wrapped source keeps advancing on bounce
// ticks so the deterministic walk is not delayed.
type Bounced struct {
	Source Source
	Every  uint8
	Min    uint16
	Max    uint16

	count uint8
	value uint16
	rng   *rand.Rand
}

// NewBounced wraps src. A nil rng uses a randomly seeded generator.
func NewBounced(src Source, every uint8, min, max uint16, rng *rand.Rand) *Bounced {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if min > max {
		min, max = max, min
	}
	return &Bounced{
		Source: src,
		Every:  every,
		Min:    min,
		Max:    max,
		value:  src.Value(),
		rng:    rng,
	}
}

// Next advances the wrapped source and bounces when the stride is reached.
func (b *Bounced) Next() uint16 {
	v := b.Source.Next()
	if b.Every == 0 {
		b.value = v
		return v
	}

	b.count++
	if b.count >= b.Every {
		b.count = 0
		v = b.Min + uint16(b.rng.IntN(int(b.Max-b.Min)+1))
	}
	b.value = v
	return v
}

// Value returns the last produced value.
func (b *Bounced) Value() uint16 {
	return b.value
}

// Reset overrides the wrapped source's value.
func (b *Bounced) Reset(v uint16) {
	b.Source.Reset(v)
	b.value = v
}
