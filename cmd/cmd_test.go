// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// ============================================================
// Argument parsing
// ============================================================

func TestParseIndex(t *testing.T) {
	tests := []struct {
		in      string
		want    uint8
		wantErr bool
	}{
		{"0", 0, false},
		{"11", 11, false},
		{"0x0B", 11, false},
		{"12", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseIndex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIndex(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseIndex(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0", 0, false},
		{"65535", 0xFFFF, false},
		{"0x1234", 0x1234, false},
		{"65536", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseValue(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseValue(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFrameMatches(t *testing.T) {
	values := []uint16{10, 20, 30}
	tests := []struct {
		name         string
		index, value int
		want         bool
	}{
		{"any frame", -1, -1, true},
		{"index present", 1, -1, true},
		{"index missing", 5, -1, false},
		{"value match", 2, 30, true},
		{"value mismatch", 2, 31, false},
	}
	for _, tt := range tests {
		if got := frameMatches(values, tt.index, tt.value); got != tt.want {
			t.Errorf("%s: frameMatches = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{61 * time.Second, "1 minute and 1 second"},
		{time.Hour + time.Minute + time.Second, "1 hour, 1 minute, and 1 second"},
		{48 * time.Hour, "2 days"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// ============================================================
// Frame statistics
// ============================================================

func TestFrameStats(t *testing.T) {
	t0 := time.Now()
	s := newFrameStats(t0)

	s.update(control.Params{Values: []uint16{1, 2}}, nil)
	s.update(control.Params{Values: []uint16{1, 5}}, nil)
	s.update(control.NewInvalidIndex(14), nil)
	empty := control.Params{}
	s.update(empty, control.ValidatePacket(empty))
	s.update(control.DecodeResponse([]byte{0xFF}), nil)

	if s.packets != 5 || s.frames != 3 || s.errors != 1 || s.unknown != 1 || s.anomalies != 1 {
		t.Errorf("counters = packets %d frames %d errors %d unknown %d anomalies %d",
			s.packets, s.frames, s.errors, s.unknown, s.anomalies)
	}
	if s.min[1] != 2 || s.max[1] != 5 || s.changes[1] != 1 {
		t.Errorf("param 1: min %d max %d changes %d", s.min[1], s.max[1], s.changes[1])
	}
	if s.changes[0] != 0 {
		t.Errorf("param 0 changes = %d, want 0", s.changes[0])
	}
	if !s.seen[1] || s.seen[2] {
		t.Errorf("seen = %v", s.seen)
	}
	// The empty frame leaves no last values behind
	if s.value(0) != 0 {
		t.Errorf("value(0) = %d after empty frame", s.value(0))
	}

	s.calculateRates(t0.Add(time.Second))
	if s.frameRate != 3 {
		t.Errorf("frameRate = %v, want 3", s.frameRate)
	}
	s.calculateRates(t0.Add(2 * time.Second))
	if s.frameRate != 0 {
		t.Errorf("frameRate = %v, want 0 with no new frames", s.frameRate)
	}

	if out := s.String(); !strings.Contains(out, "Frames: 3") || !strings.Contains(out, "[ 1] last=") {
		t.Errorf("String() = %q", out)
	}
}

// ============================================================
// Monitor TUI
// ============================================================

func TestMonitorModel_Update(t *testing.T) {
	m := initialMonitorModel("pipe:decoder", false)
	now := time.Now()

	next, _ := m.Update(packetMsg{at: now, packet: control.Params{Values: []uint16{7}}})
	m = next.(monitorModel)
	if m.stats.frames != 1 || !m.lastFrame.Equal(now) {
		t.Fatalf("frames = %d, lastFrame = %v", m.stats.frames, m.lastFrame)
	}
	if len(m.eventLog) != 0 {
		t.Errorf("valid frame logged without --show-all: %+v", m.eventLog)
	}

	next, _ = m.Update(packetMsg{at: now, packet: control.NewInvalidIndex(20)})
	m = next.(monitorModel)
	if len(m.eventLog) != 1 || !m.eventLog[0].isError {
		t.Fatalf("event log = %+v", m.eventLog)
	}

	next, _ = m.Update(linkClosedMsg{})
	m = next.(monitorModel)
	if !m.closed {
		t.Error("link close not recorded")
	}
	if view := m.View(); !strings.Contains(view, "Connection closed") {
		t.Errorf("view does not report closed link")
	}
}

func TestMonitorModel_ShowAll(t *testing.T) {
	m := initialMonitorModel("pipe:decoder", true)
	next, _ := m.Update(packetMsg{at: time.Now(), packet: control.Params{Values: []uint16{7}}})
	m = next.(monitorModel)
	if len(m.eventLog) != 1 || m.eventLog[0].isError {
		t.Errorf("event log = %+v", m.eventLog)
	}
}

// ============================================================
// Control TUI
// ============================================================

func TestControlModel_ProcessControlData(t *testing.T) {
	m := initialControlModel(nil, "pipe:emulator")
	t0 := time.Now()

	m.processControlData(controlDataMsg{at: t0, packet: control.Version{Major: 1, Minor: 2, Patch: 3}})
	if m.version != (control.Version{Major: 1, Minor: 2, Patch: 3}).String() {
		t.Errorf("version = %q", m.version)
	}

	m.processControlData(controlDataMsg{at: t0, packet: control.Param{Index: 3, Value: 777}})
	if s := m.slots[3]; !s.known || s.value != 777 || !s.updated.Equal(t0) {
		t.Errorf("slot 3 = %+v", s)
	}

	// Out of range index is reported, not stored
	bad := control.Param{Index: 40, Value: 1}
	m.processControlData(controlDataMsg{at: t0, packet: bad, anomalies: control.ValidatePacket(bad)})
	if m.anomalies != 1 {
		t.Errorf("anomalies = %d, want 1", m.anomalies)
	}

	m.pingPending = true
	m.pingPayload = 7
	m.lastPingTime = t0
	pong := control.NewPong(control.NewPing(7, controlPingVersion))
	m.processControlData(controlDataMsg{at: t0.Add(3 * time.Millisecond), packet: pong})
	if m.pingPending || m.roundTrip != 3*time.Millisecond {
		t.Errorf("pending = %v, roundTrip = %v", m.pingPending, m.roundTrip)
	}

	before := len(m.eventLog)
	m.processControlData(controlDataMsg{at: t0, packet: control.NewInvalidIndex(12)})
	if len(m.eventLog) != before+1 || !m.eventLog[len(m.eventLog)-1].isError {
		t.Errorf("device error not logged: %+v", m.eventLog)
	}

	if c := m.stats.Snapshot(); c.Responses != 5 {
		t.Errorf("responses = %d, want 5", c.Responses)
	}
}

func TestControlModel_GeneratorInputs(t *testing.T) {
	m := initialControlModel(nil, "pipe:emulator")

	gc, err := m.generatorInputs()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if gc.Value != 0 || gc.Period != 1 || gc.Step != 0 || gc.Bounce != 0 {
		t.Errorf("defaults = %+v", gc)
	}

	m.inputs[fieldValue].SetValue("1000")
	m.inputs[fieldStep].SetValue("25")
	m.inputs[fieldBounce].SetValue("4")
	gc, err = m.generatorInputs()
	if err != nil {
		t.Fatalf("generatorInputs: %v", err)
	}
	if gc.Value != 1000 || gc.Step != 25 || gc.Bounce != 4 {
		t.Errorf("config = %+v", gc)
	}

	m.inputs[fieldPeriod].SetValue("300")
	if _, err := m.generatorInputs(); err == nil || !strings.Contains(err.Error(), "period") {
		t.Errorf("err = %v, want period error", err)
	}
}

func TestControlModel_ButtonsWithoutConnection(t *testing.T) {
	m := initialControlModel(nil, "pipe:emulator")

	m.pressButton(buttonEnable)
	if m.slots[0].generator != nil {
		t.Error("generator recorded although the request was not sent")
	}
	m.pressButton(buttonProducer)
	if m.producerRunning {
		t.Error("producer marked running although the request was not sent")
	}
	m.pressButton(buttonLED)
	if m.ledOn {
		t.Error("LED marked on although the request was not sent")
	}

	if len(m.eventLog) != 3 {
		t.Fatalf("event log = %+v", m.eventLog)
	}
	for _, e := range m.eventLog {
		if !e.isError || !strings.Contains(e.message, "connection lost") {
			t.Errorf("entry = %+v", e)
		}
	}
	if c := m.stats.Snapshot(); c.Requests != 0 {
		t.Errorf("requests = %d, want 0", c.Requests)
	}
}

func TestControlModel_ProducerFPSValidation(t *testing.T) {
	m := initialControlModel(nil, "pipe:emulator")
	m.inputs[fieldFPS].SetValue("0")
	m.pressButton(buttonProducer)
	if len(m.eventLog) != 1 || !strings.Contains(m.eventLog[0].message, "FPS") {
		t.Errorf("event log = %+v", m.eventLog)
	}
}

// ============================================================
// Simulator
// ============================================================

func TestSimulatorProfile_Default(t *testing.T) {
	p, err := simulatorProfile("")
	if err != nil {
		t.Fatalf("simulatorProfile: %v", err)
	}
	if p.Name != "default" || p.FPS != 25 || len(p.Generators) != control.MaxParams {
		t.Errorf("profile = %+v", p)
	}
}
