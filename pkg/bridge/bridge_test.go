// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/driver"
	"github.com/artemkorobko/an26sim/pkg/firmware"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

const (
	testUser     = "pilot"
	testPassword = "secret"
)

// startBridge serves the simulated decoder through a bridge. The emulator
// streams frames so the decoder produces PARAMS continuously.
func startBridge(t *testing.T) (*Bridge, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	sim, err := firmware.NewSimulator(firmware.SimulatorConfig{
		Profile: &generator.Profile{
			FPS: 50,
			Generators: []generator.Slot{
				{Index: 4, Config: generator.Config{Value: 4242}},
			},
		},
		Rand:   rand.New(rand.NewPCG(7, 8)),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}

	b := New(sim.DecoderLink(), Config{Username: testUser, Password: testPassword}, logger)
	srv := httptest.NewServer(b.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	simDone := make(chan error, 1)
	bridgeDone := make(chan error, 1)
	go func() { simDone <- sim.Run(ctx) }()
	go func() { bridgeDone <- b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		for name, done := range map[string]chan error{"simulator": simDone, "bridge": bridgeDone} {
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("%s: %v", name, err)
				}
			case <-time.After(2 * time.Second):
				t.Errorf("%s did not stop", name)
			}
		}
		srv.Close()
	})

	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user, pass string) (*driver.WebSocketLink, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return driver.DialWebSocket(ctx, driver.WebSocketOptions{URL: url, Username: user, Password: pass})
}

// ============================================================================
// Tests
// ============================================================================

func TestBridge_DeviceOverWebSocket(t *testing.T) {
	b, url := startBridge(t)

	link, err := dial(t, url, testUser, testPassword)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer link.Close()

	dev := driver.NewDevice(link, driver.KindDecoder, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := dev.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v, err := dev.Version(ctx); err != nil || v != firmware.Version {
		t.Errorf("Version = %v, %v", v, err)
	}

	dec := driver.NewDecoder(dev)
	for {
		values, err := dec.ReadParams(ctx)
		if err != nil {
			t.Fatalf("ReadParams: %v", err)
		}
		if values[4] == 4242 {
			break
		}
	}

	status := b.Status()
	if status.Clients != 1 || status.Requests < 3 || status.Responses == 0 {
		t.Errorf("status = %+v", status)
	}
}

func TestBridge_FansOutToEveryClient(t *testing.T) {
	_, url := startBridge(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		link, err := dial(t, url, testUser, testPassword)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		defer link.Close()

		dec := driver.NewDecoder(driver.NewDevice(link, driver.KindDecoder, zaptest.NewLogger(t)))
		values, err := dec.ReadParams(ctx)
		if err != nil {
			t.Fatalf("client %d: ReadParams: %v", i, err)
		}
		if len(values) != control.MaxParams {
			t.Errorf("client %d: %d values", i, len(values))
		}
	}
}

func TestBridge_RejectsBadCredentials(t *testing.T) {
	_, url := startBridge(t)

	tests := []struct {
		name, user, pass string
	}{
		{"no credentials", "", ""},
		{"wrong password", testUser, "guess"},
		{"wrong user", "copilot", testPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := dial(t, url, tt.user, tt.pass)
			if err == nil {
				link.Close()
				t.Fatal("dial succeeded")
			}
			if !strings.Contains(err.Error(), "401") {
				t.Errorf("err = %v, want HTTP 401", err)
			}
		})
	}
}

func TestBridge_DropsUnknownRequests(t *testing.T) {
	b, url := startBridge(t)

	link, err := dial(t, url, testUser, testPassword)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer link.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := link.WriteContext(ctx, []byte{0xFF, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.Status().Unknown == 0 {
		if time.Now().After(deadline) {
			t.Fatal("unknown request was not counted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBridge_Status(t *testing.T) {
	_, url := startBridge(t)
	base := "http" + strings.TrimPrefix(url, "ws")

	resp, err := http.Get(base + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status code = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/status", nil)
	req.SetBasicAuth(testUser, testPassword)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Device != "pipe:decoder" {
		t.Errorf("device = %q", status.Device)
	}
}

func TestBridge_ClosedLinkStopsRun(t *testing.T) {
	pipe := control.NewPipe("closed", 0)
	b := New(pipe.Host(), Config{}, zaptest.NewLogger(t))
	pipe.Close()

	err := b.Run(context.Background())
	if !errors.Is(err, control.ErrClosed) {
		t.Errorf("Run err = %v, want ErrClosed", err)
	}
}
