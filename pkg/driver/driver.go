// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Transport names how a device is reached.
type Transport string

const (
	TransportUSB       Transport = "usb"
	TransportSerial    Transport = "serial"
	TransportWebSocket Transport = "websocket"
	TransportPipe      Transport = "pipe"
)

// ParseTransport parses a transport name.
func ParseTransport(name string) (Transport, error) {
	switch t := Transport(name); t {
	case TransportUSB, TransportSerial, TransportWebSocket:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transport %q (use usb, serial or websocket)", name)
	}
}

// DeviceInfo describes one discovered device.
type DeviceInfo struct {
	Kind      Kind
	Serial    string
	Transport Transport
	Path      string
}

// Options selects and configures the link Open uses.
type Options struct {
	Transport Transport
	// Serial overrides the USB serial string matched for the kind.
	Serial string
	// Port is the serial port name.
	Port     string
	BaudRate int
	// WebSocket bridge
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	// Timeout bounds dialing and the device check.
	Timeout time.Duration
	// SkipCheck opens the device without pinging it.
	SkipCheck bool
}

// Driver finds and opens SM2M devices.
type Driver struct {
	logger *zap.Logger

	mu  sync.Mutex
	usb *gousb.Context
}

// New creates a driver. The libusb context is created on first use.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger}
}

func (d *Driver) usbContext() *gousb.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.usb == nil {
		d.usb = gousb.NewContext()
	}
	return d.usb
}

// Close releases the libusb context.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.usb == nil {
		return nil
	}
	err := d.usb.Close()
	d.usb = nil
	return err
}

// List discovers attached devices through libusb and the serial port
// enumerator. A failing enumerator is logged and skipped; an error is
// returned only when both fail.
func (d *Driver) List() ([]DeviceInfo, error) {
	usbInfos, usbErr := listUSB(d.usbContext(), d.logger)
	if usbErr != nil {
		d.logger.Warn("usb enumeration failed", zap.Error(usbErr))
	}
	serialInfos, serialErr := listSerial(d.logger)
	if serialErr != nil {
		d.logger.Warn("serial enumeration failed", zap.Error(serialErr))
	}
	if usbErr != nil && serialErr != nil {
		return nil, usbErr
	}
	return append(usbInfos, serialInfos...), nil
}

// Open opens the device of the given kind and checks it answers pings.
func (d *Driver) Open(kind Kind, opts Options) (*Device, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		link Link
		err  error
	)
	switch opts.Transport {
	case TransportUSB, "":
		link, err = openUSB(d.usbContext(), kind, opts.Serial, d.logger)
	case TransportSerial:
		port := opts.Port
		if port == "" {
			port, err = d.findSerialPort(kind, opts.Serial)
			if err != nil {
				return nil, err
			}
		}
		link, err = OpenSerial(port, opts.BaudRate)
	case TransportWebSocket:
		link, err = DialWebSocket(ctx, WebSocketOptions{
			URL:           opts.URL,
			Username:      opts.Username,
			Password:      opts.Password,
			SkipSSLVerify: opts.SkipSSLVerify,
		})
	default:
		return nil, fmt.Errorf("%w: transport %q", ErrNotSupported, opts.Transport)
	}
	if err != nil {
		return nil, err
	}

	dev := NewDevice(link, kind, d.logger)
	if opts.SkipCheck {
		return dev, nil
	}
	if err := dev.Check(ctx); err != nil {
		link.Close()
		return nil, err
	}
	d.logger.Info("device ready", zap.String("kind", kind.String()), zap.String("link", link.String()))
	return dev, nil
}

func (d *Driver) findSerialPort(kind Kind, serial string) (string, error) {
	if serial == "" {
		serial = kind.Serial()
	}
	infos, err := listSerial(d.logger)
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info.Serial == serial {
			return info.Path, nil
		}
	}
	return "", newError(OpOpenDevice, -1, fmt.Errorf("%w: no serial port for %s", ErrDeviceNotFound, serial))
}
