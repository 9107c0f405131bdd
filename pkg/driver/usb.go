// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// USBLink talks to a device through libusb.
type USBLink struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
	sel  Selection
	kind Kind
}

func matchesIdentity(desc *gousb.DeviceDesc) bool {
	return uint16(desc.Vendor) == VendorID && uint16(desc.Product) == ProductID
}

// openUSB opens the first attached device of the given kind. serial, when
// not empty, overrides the serial string to match.
func openUSB(ctx *gousb.Context, kind Kind, serial string, logger *zap.Logger) (*USBLink, error) {
	if serial == "" {
		serial = kind.Serial()
	}

	devs, err := ctx.OpenDevices(matchesIdentity)
	if err != nil && len(devs) == 0 {
		return nil, newError(OpDeviceList, -1, err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil {
			s, err := d.SerialNumber()
			if err != nil {
				logger.Debug("failed to read serial number",
					zap.Int("bus", d.Desc.Bus),
					zap.Int("address", d.Desc.Address),
					zap.Error(err))
			} else if s == serial {
				dev = d
				continue
			}
		}
		d.Close()
	}
	if dev == nil {
		return nil, newError(OpOpenDevice, -1, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial))
	}

	link, err := claim(dev, kind)
	if err != nil {
		dev.Close()
		return nil, err
	}
	logger.Info("usb device opened",
		zap.String("kind", kind.String()),
		zap.Int("bus", dev.Desc.Bus),
		zap.Int("address", dev.Desc.Address),
		zap.Int("interface", link.sel.Interface),
		zap.Int("in", link.sel.In.Number),
		zap.Int("out", link.sel.Out.Number))
	return link, nil
}

func claim(dev *gousb.Device, kind Kind) (*USBLink, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, newError(OpDetachKernelDriver, -1, err)
	}

	num, err := dev.ActiveConfigNum()
	if err != nil {
		return nil, newError(OpActiveConfiguration, -1, err)
	}
	cfg, err := dev.Config(num)
	if err != nil {
		return nil, newError(OpActiveConfiguration, -1, err)
	}

	sel, err := SelectEndpoints(cfg.Desc)
	if err != nil {
		cfg.Close()
		return nil, err
	}

	intf, err := cfg.Interface(sel.Interface, sel.Alternate)
	if err != nil {
		cfg.Close()
		return nil, newError(OpClaimInterface, sel.Interface, err)
	}
	in, err := intf.InEndpoint(sel.In.Number)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, newError(OpEnableEndpoint, sel.Interface, err)
	}
	out, err := intf.OutEndpoint(sel.Out.Number)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, newError(OpEnableEndpoint, sel.Interface, err)
	}

	return &USBLink{dev: dev, cfg: cfg, intf: intf, in: in, out: out, sel: sel, kind: kind}, nil
}

// ReadContext reads one packet from the IN endpoint.
func (l *USBLink) ReadContext(ctx context.Context, p []byte) (int, error) {
	n, err := l.in.ReadContext(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return n, newError(OpRead, l.sel.Interface, err)
	}
	return n, nil
}

// WriteContext writes one packet to the OUT endpoint.
func (l *USBLink) WriteContext(ctx context.Context, p []byte) (int, error) {
	n, err := l.out.WriteContext(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return n, newError(OpWrite, l.sel.Interface, err)
	}
	return n, nil
}

// Reset issues a USB port reset.
func (l *USBLink) Reset() error {
	if err := l.dev.Reset(); err != nil {
		return newError(OpReset, l.sel.Interface, err)
	}
	return nil
}

// Close releases the interface and the device.
func (l *USBLink) Close() error {
	l.intf.Close()
	cfgErr := l.cfg.Close()
	if err := l.dev.Close(); err != nil {
		return err
	}
	return cfgErr
}

// String describes the link.
func (l *USBLink) String() string {
	return fmt.Sprintf("usb:%s bus %d address %d", l.kind, l.dev.Desc.Bus, l.dev.Desc.Address)
}

// listUSB reports attached devices with the SM2M identity.
func listUSB(ctx *gousb.Context, logger *zap.Logger) ([]DeviceInfo, error) {
	devs, err := ctx.OpenDevices(matchesIdentity)
	if err != nil && len(devs) == 0 {
		return nil, newError(OpDeviceList, -1, err)
	}

	infos := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		info := DeviceInfo{
			Transport: TransportUSB,
			Path:      fmt.Sprintf("bus %d address %d", d.Desc.Bus, d.Desc.Address),
		}
		if s, err := d.SerialNumber(); err == nil {
			info.Serial = s
			info.Kind = KindFromSerial(s)
		} else {
			logger.Debug("failed to read serial number", zap.String("path", info.Path), zap.Error(err))
		}
		infos = append(infos, info)
		d.Close()
	}
	return infos, nil
}
