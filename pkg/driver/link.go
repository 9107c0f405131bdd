// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// Link moves whole control packets between the host and one device.
type Link interface {
	// ReadContext reads one packet. It returns when a packet arrives or ctx
	// ends.
	ReadContext(ctx context.Context, p []byte) (int, error)
	// WriteContext writes one packet.
	WriteContext(ctx context.Context, p []byte) (int, error)
	Close() error
	String() string
}

// Resetter is implemented by links that can reset the device.
type Resetter interface {
	Reset() error
}

var _ Link = (*control.PipeHost)(nil)
