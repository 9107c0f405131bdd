// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"errors"
	"sort"

	"github.com/google/gousb"
)

// Selection is the interface setting and endpoint pair chosen for the
// control channel.
type Selection struct {
	Interface int
	Alternate int
	In        gousb.EndpointDesc
	Out       gousb.EndpointDesc
}

var (
	errNoReadable  = errors.New("no bulk or interrupt IN endpoint")
	errNoWriteable = errors.New("no bulk or interrupt OUT endpoint")
)

// SelectEndpoints picks the first interface setting that has both an IN and
// an OUT endpoint. Bulk endpoints are preferred; interrupt endpoints are used
// when an interface has no bulk endpoint in that direction.
func SelectEndpoints(cfg gousb.ConfigDesc) (Selection, error) {
	sawIn := false
	for _, iface := range cfg.Interfaces {
		for _, setting := range iface.AltSettings {
			in, okIn := pickEndpoint(setting, gousb.EndpointDirectionIn)
			out, okOut := pickEndpoint(setting, gousb.EndpointDirectionOut)
			sawIn = sawIn || okIn
			if okIn && okOut {
				return Selection{
					Interface: setting.Number,
					Alternate: setting.Alternate,
					In:        in,
					Out:       out,
				}, nil
			}
		}
	}
	if !sawIn {
		return Selection{}, newError(OpNoReadableEndpoint, -1, errNoReadable)
	}
	return Selection{}, newError(OpNoWriteableEndpoint, -1, errNoWriteable)
}

func pickEndpoint(setting gousb.InterfaceSetting, dir gousb.EndpointDirection) (gousb.EndpointDesc, bool) {
	var candidates []gousb.EndpointDesc
	for _, ep := range setting.Endpoints {
		if ep.Direction == dir {
			candidates = append(candidates, ep)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Address < candidates[j].Address
	})

	for _, want := range []gousb.TransferType{gousb.TransferTypeBulk, gousb.TransferTypeInterrupt} {
		for _, ep := range candidates {
			if ep.TransferType == want {
				return ep, true
			}
		}
	}
	return gousb.EndpointDesc{}, false
}
