// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package driver

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/firmware"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

// ============================================================================
// Identity
// ============================================================================

func TestKindFromSerial(t *testing.T) {
	tests := []struct {
		serial string
		want   Kind
	}{
		{"SM2M-DECODER", KindDecoder},
		{"SM2M-EMULATOR", KindEmulator},
		{"SM2M-ENCODER", KindEncoder},
		{" SM2M-DECODER\n", KindDecoder},
		{"sm2m-decoder", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := KindFromSerial(tt.serial); got != tt.want {
			t.Errorf("KindFromSerial(%q) = %s, want %s", tt.serial, got, tt.want)
		}
	}
	for _, k := range []Kind{KindDecoder, KindEmulator, KindEncoder} {
		if KindFromSerial(k.Serial()) != k {
			t.Errorf("%s does not round trip through its serial", k)
		}
		parsed, err := ParseKind(strings.ToUpper(k.String()))
		if err != nil || parsed != k {
			t.Errorf("ParseKind(%s) = %s, %v", k, parsed, err)
		}
	}
	if _, err := ParseKind("flux"); err == nil {
		t.Error("ParseKind accepted an unknown kind")
	}
}

func TestParseTransport(t *testing.T) {
	for _, name := range []string{"usb", "serial", "websocket"} {
		if got, err := ParseTransport(name); err != nil || string(got) != name {
			t.Errorf("ParseTransport(%q) = %q, %v", name, got, err)
		}
	}
	if _, err := ParseTransport("pipe"); err == nil {
		t.Error("pipe is not selectable from the command line")
	}
}

func TestMatchSerialPort(t *testing.T) {
	tests := []struct {
		name string
		port *enumerator.PortDetails
		want bool
	}{
		{"match", &enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "0483", PID: "5740"}, true},
		{"upper case hex", &enumerator.PortDetails{IsUSB: true, VID: "0x0483", PID: "0X5740"}, true},
		{"other product", &enumerator.PortDetails{IsUSB: true, VID: "0483", PID: "5741"}, false},
		{"not usb", &enumerator.PortDetails{VID: "0483", PID: "5740"}, false},
		{"garbage", &enumerator.PortDetails{IsUSB: true, VID: "zz", PID: "5740"}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchSerialPort(tt.port); got != tt.want {
				t.Errorf("matchSerialPort = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Errors
// ============================================================================

func TestDriverError(t *testing.T) {
	err := error(newError(OpRead, 1, ErrTimeout))
	if !errors.Is(err, ErrTimeout) {
		t.Error("DriverError does not unwrap to ErrTimeout")
	}
	var de *DriverError
	if !errors.As(err, &de) || de.Op != OpRead || de.Interface != 1 {
		t.Fatalf("errors.As = %#v", de)
	}
	msg := err.Error()
	for _, want := range []string{"read", "vid=0x0483", "pid=0x5740", "interface=1", "timeout"} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q does not contain %q", msg, want)
		}
	}
}

// ============================================================================
// Endpoint selection
// ============================================================================

func ep(addr uint8, tt gousb.TransferType) gousb.EndpointDesc {
	dir := gousb.EndpointDirectionOut
	if addr&0x80 != 0 {
		dir = gousb.EndpointDirectionIn
	}
	return gousb.EndpointDesc{
		Address:       gousb.EndpointAddress(addr),
		Number:        int(addr & 0x0F),
		Direction:     dir,
		MaxPacketSize: 64,
		TransferType:  tt,
	}
}

func setting(number int, eps ...gousb.EndpointDesc) gousb.InterfaceSetting {
	m := make(map[gousb.EndpointAddress]gousb.EndpointDesc, len(eps))
	for _, e := range eps {
		m[e.Address] = e
	}
	return gousb.InterfaceSetting{Number: number, Endpoints: m}
}

func config(settings ...gousb.InterfaceSetting) gousb.ConfigDesc {
	var cfg gousb.ConfigDesc
	for _, s := range settings {
		cfg.Interfaces = append(cfg.Interfaces, gousb.InterfaceDesc{
			Number:      s.Number,
			AltSettings: []gousb.InterfaceSetting{s},
		})
	}
	return cfg
}

func TestSelectEndpoints(t *testing.T) {
	bulk, intr := gousb.TransferTypeBulk, gousb.TransferTypeInterrupt

	tests := []struct {
		name          string
		cfg           gousb.ConfigDesc
		wantInterface int
		wantIn        uint8
		wantOut       uint8
		wantOp        Op
	}{
		{
			name:    "bulk preferred over interrupt",
			cfg:     config(setting(0, ep(0x83, intr), ep(0x81, bulk), ep(0x01, bulk))),
			wantIn:  0x81,
			wantOut: 0x01,
		},
		{
			name:    "interrupt fallback",
			cfg:     config(setting(0, ep(0x81, intr), ep(0x02, intr))),
			wantIn:  0x81,
			wantOut: 0x02,
		},
		{
			name:    "lowest address wins",
			cfg:     config(setting(0, ep(0x83, bulk), ep(0x82, bulk), ep(0x04, bulk), ep(0x03, bulk))),
			wantIn:  0x82,
			wantOut: 0x03,
		},
		{
			name:          "skips notification interface",
			cfg:           config(setting(0, ep(0x82, intr)), setting(1, ep(0x81, bulk), ep(0x01, bulk))),
			wantInterface: 1,
			wantIn:        0x81,
			wantOut:       0x01,
		},
		{
			name:   "no endpoints",
			cfg:    config(setting(0)),
			wantOp: OpNoReadableEndpoint,
		},
		{
			name:   "no OUT endpoint",
			cfg:    config(setting(0, ep(0x81, bulk))),
			wantOp: OpNoWriteableEndpoint,
		},
		{
			name:   "isochronous only",
			cfg:    config(setting(0, ep(0x81, gousb.TransferTypeIsochronous), ep(0x01, gousb.TransferTypeIsochronous))),
			wantOp: OpNoReadableEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectEndpoints(tt.cfg)
			if tt.wantOp != "" {
				var de *DriverError
				if !errors.As(err, &de) || de.Op != tt.wantOp {
					t.Fatalf("err = %v, want op %q", err, tt.wantOp)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectEndpoints: %v", err)
			}
			if sel.Interface != tt.wantInterface {
				t.Errorf("interface = %d, want %d", sel.Interface, tt.wantInterface)
			}
			if uint8(sel.In.Address) != tt.wantIn || uint8(sel.Out.Address) != tt.wantOut {
				t.Errorf("endpoints = 0x%02X/0x%02X, want 0x%02X/0x%02X",
					uint8(sel.In.Address), uint8(sel.Out.Address), tt.wantIn, tt.wantOut)
			}
		})
	}
}

// ============================================================================
// Device over a scripted link
// ============================================================================

type fakeLink struct {
	mu          sync.Mutex
	incoming    chan []byte
	written     [][]byte
	writeStalls int
	reads       int
	respond     func(control.Request) []control.Response
}

func newFakeLink() *fakeLink {
	return &fakeLink{incoming: make(chan []byte, 16)}
}

func (l *fakeLink) queue(rs ...control.Response) {
	for _, r := range rs {
		l.incoming <- control.Encode(r)
	}
}

func (l *fakeLink) ReadContext(ctx context.Context, p []byte) (int, error) {
	l.mu.Lock()
	l.reads++
	l.mu.Unlock()
	select {
	case pkt := <-l.incoming:
		return copy(p, pkt), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (l *fakeLink) WriteContext(ctx context.Context, p []byte) (int, error) {
	l.mu.Lock()
	if l.writeStalls > 0 {
		l.writeStalls--
		l.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	l.written = append(l.written, append([]byte(nil), p...))
	respond := l.respond
	l.mu.Unlock()

	if respond != nil {
		l.queue(respond(control.DecodeRequest(p))...)
	}
	return len(p), nil
}

func (l *fakeLink) Close() error   { return nil }
func (l *fakeLink) String() string { return "fake" }

func echoPongs(req control.Request) []control.Response {
	if ping, ok := req.(control.Ping); ok {
		return []control.Response{control.NewPong(ping)}
	}
	return nil
}

func TestDevice_TryWriteAllRetries(t *testing.T) {
	link := newFakeLink()
	link.writeStalls = 2
	dev := NewDevice(link, KindDecoder, zaptest.NewLogger(t))

	if err := dev.TryWriteAll([]byte{0x01}, 5*time.Millisecond, 2); err != nil {
		t.Fatalf("TryWriteAll: %v", err)
	}
	if len(link.written) != 1 {
		t.Errorf("written = %d packets", len(link.written))
	}
	if got := dev.Statistics().Snapshot().WriteRetries; got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}

	link.writeStalls = 2
	err := dev.TryWriteAll([]byte{0x01}, 5*time.Millisecond, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestDevice_TryReadAllRetries(t *testing.T) {
	link := newFakeLink()
	dev := NewDevice(link, KindDecoder, zaptest.NewLogger(t))

	buf := make([]byte, control.MaxPacketSize)
	_, err := dev.TryReadAll(buf, 5*time.Millisecond, 2)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if link.reads != 3 {
		t.Errorf("reads = %d, want 3", link.reads)
	}

	link.queue(control.Pong{Payload: 1, Version: 2})
	n, err := dev.TryReadAll(buf, 5*time.Millisecond, 0)
	if err != nil || n != 2 {
		t.Errorf("TryReadAll = %d, %v", n, err)
	}
}

func TestDevice_ReadResponseDefaultTimeout(t *testing.T) {
	dev := NewDevice(newFakeLink(), KindDecoder, zaptest.NewLogger(t))

	start := time.Now()
	_, err := dev.ReadResponse(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < DefaultTimeout/2 {
		t.Errorf("returned after %v", elapsed)
	}
}

func TestDevice_Check(t *testing.T) {
	link := newFakeLink()
	link.respond = echoPongs
	dev := NewDevice(link, KindDecoder, zaptest.NewLogger(t))

	if err := dev.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(link.written) != 2 {
		t.Fatalf("written = %d packets, want 2 pings", len(link.written))
	}
	first := control.DecodeRequest(link.written[0]).(control.Ping)
	second := control.DecodeRequest(link.written[1]).(control.Ping)
	if first.Payload == second.Payload {
		t.Error("pings carry the same payload")
	}
	if first.Version != 1 {
		t.Errorf("ping version = %d, want 1", first.Version)
	}
}

func TestDevice_CheckRejectsWrongPong(t *testing.T) {
	tests := []struct {
		name string
		pong control.Pong
	}{
		{"wrong payload", control.Pong{Payload: 9, Version: 2}},
		{"wrong version", control.Pong{Payload: 5, Version: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := newFakeLink()
			link.respond = func(control.Request) []control.Response {
				return []control.Response{tt.pong}
			}
			dev := NewDevice(link, KindDecoder, zaptest.NewLogger(t))
			if err := dev.Check(context.Background()); !errors.Is(err, ErrUnexpectedResponse) {
				t.Errorf("err = %v, want ErrUnexpectedResponse", err)
			}
		})
	}
}

func TestDevice_SkipsParamsAndReportsErrors(t *testing.T) {
	link := newFakeLink()
	dev := NewDevice(link, KindDecoder, zaptest.NewLogger(t))

	link.respond = func(control.Request) []control.Response {
		return []control.Response{
			control.Params{Values: []uint16{1, 2}},
			control.Params{Values: []uint16{3, 4}},
			control.Version{Major: 1, Minor: 2, Patch: 3},
		}
	}
	v, err := dev.Version(context.Background())
	if err != nil || v != (control.Version{Major: 1, Minor: 2, Patch: 3}) {
		t.Fatalf("Version = %v, %v", v, err)
	}

	link.respond = func(control.Request) []control.Response {
		return []control.Response{control.NewInvalidIndex(7)}
	}
	_, err = dev.GetParam(context.Background(), 7)
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Response.Code != control.ErrorInvalidIndex {
		t.Errorf("err = %v, want DeviceError", err)
	}
}

func TestDevice_RefusesInvalidRequests(t *testing.T) {
	link := newFakeLink()
	dev := NewDevice(link, KindEmulator, zaptest.NewLogger(t))
	emu := NewEmulator(dev)
	ctx := context.Background()

	if err := dev.SetParam(ctx, 12, 1); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("SetParam(12) err = %v", err)
	}
	// 20 shares its low nibble with index 4
	if err := dev.SetParam(ctx, 20, 4242); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("SetParam(20) err = %v", err)
	}
	if _, err := dev.GetParam(ctx, 20); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("GetParam(20) err = %v", err)
	}
	if err := emu.DisableGenerator(ctx, 20); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("DisableGenerator(20) err = %v", err)
	}
	if _, err := dev.GetParam(ctx, 200); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("GetParam(200) err = %v", err)
	}
	if err := emu.StartProducer(ctx, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("StartProducer(0) err = %v", err)
	}
	profile := &generator.Profile{FPS: 10, Generators: []generator.Slot{{Index: 12}}}
	if err := emu.ApplyProfile(ctx, profile); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("ApplyProfile err = %v", err)
	}
	if len(link.written) != 0 {
		t.Errorf("%d invalid requests reached the link", len(link.written))
	}
}

func TestDevice_ResetNotSupported(t *testing.T) {
	dev := NewDevice(newFakeLink(), KindDecoder, zaptest.NewLogger(t))
	if err := dev.Reset(); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Reset err = %v, want ErrNotSupported", err)
	}
}

// ============================================================================
// Clients against the simulated devices
// ============================================================================

func startSimulator(t *testing.T) *firmware.Simulator {
	t.Helper()
	sim, err := firmware.NewSimulator(firmware.SimulatorConfig{
		Rand:   rand.New(rand.NewPCG(1, 2)),
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("simulator did not stop")
		}
	})
	return sim
}

func TestClients_Simulator(t *testing.T) {
	sim := startSimulator(t)
	logger := zaptest.NewLogger(t)
	dec := NewDecoder(NewDevice(sim.DecoderLink(), KindDecoder, logger))
	emu := NewEmulator(NewDevice(sim.EmulatorLink(), KindEmulator, logger))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, dev := range []*Device{dec.Device, emu.Device} {
		if err := dev.Check(ctx); err != nil {
			t.Fatalf("%s: Check: %v", dev, err)
		}
		v, err := dev.Version(ctx)
		if err != nil || v != firmware.Version {
			t.Errorf("%s: Version = %v, %v", dev, v, err)
		}
	}

	if err := dec.SetLED(ctx, true); err != nil {
		t.Fatalf("SetLED: %v", err)
	}
	if err := dec.SetParam(ctx, 2, 1234); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	if got, err := dec.GetParam(ctx, 2); err != nil || got != 1234 {
		t.Errorf("GetParam(2) = %d, %v", got, err)
	}

	profile := &generator.Profile{
		FPS: 50,
		Generators: []generator.Slot{
			{Index: 3, Config: generator.Config{Value: 777}},
			{Index: 0, Config: generator.Config{Value: 100, Period: 1, Step: 1}},
		},
	}
	if err := emu.ApplyProfile(ctx, profile); err != nil {
		t.Fatalf("ApplyProfile: %v", err)
	}
	if got, err := emu.GetParam(ctx, 3); err != nil || got != 777 {
		t.Errorf("emulator GetParam(3) = %d, %v", got, err)
	}

	var values []uint16
	for values == nil || values[3] != 777 {
		var err error
		values, err = dec.ReadParams(ctx)
		if err != nil {
			t.Fatalf("ReadParams: %v", err)
		}
		if len(values) != control.MaxParams {
			t.Fatalf("frame carries %d values", len(values))
		}
	}

	if err := emu.StopProducer(ctx); err != nil {
		t.Fatalf("StopProducer: %v", err)
	}
	if err := emu.DisableGenerator(ctx, 0); err != nil {
		t.Fatalf("DisableGenerator: %v", err)
	}
	if c := emu.Statistics().Snapshot(); c.Requests == 0 || c.Responses == 0 {
		t.Errorf("statistics not recorded: %+v", c)
	}
}
