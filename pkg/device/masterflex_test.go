// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package device

import (
	"bytes"
	"strings"
	"testing"

	"github.com/peptideworks/optad/pkg/bus"
	"github.com/peptideworks/optad/pkg/bus/bustest"
)

func newTestPump(port *bustest.ScriptPort) *Masterflex {
	return NewMasterflex("MFLEX_01", "01", bus.NewEngine(port, testLogger()))
}

// initPump runs a successful handshake script.
func initPump(t *testing.T, port *bustest.ScriptPort) *Masterflex {
	t.Helper()
	port.Script([]byte("P?1\r"), []byte{0x06})
	m := newTestPump(port)
	res, msg := m.Execute("INIT", "", "")
	if res != ResultOk {
		t.Fatalf("INIT: result=%v msg=%q", res, msg)
	}
	return m
}

// ============================================================
// Addressing handshake
// ============================================================

func TestMasterflex_HandshakeSuccess(t *testing.T) {
	port := bustest.NewScriptPort()
	m := initPump(t, port)

	if !m.Initialized() {
		t.Fatal("pump not marked initialized after handshake")
	}
	if len(port.Writes) != 2 {
		t.Fatalf("expected ENQ + assignment writes, got %d", len(port.Writes))
	}
	if !bytes.Equal(port.Writes[0], []byte{0x05}) {
		t.Errorf("first write = % X, want lone ENQ", port.Writes[0])
	}
	if !bytes.Equal(port.Writes[1], []byte{0x02, 'P', '0', '1', '\r'}) {
		t.Errorf("assignment frame = % X", port.Writes[1])
	}
}

func TestMasterflex_HandshakeNakAborts(t *testing.T) {
	port := bustest.NewScriptPort([]byte("P?1\r"), []byte{0x15})
	m := newTestPump(port)

	res, _ := m.Execute("INIT", "", "")
	if res != ResultError {
		t.Fatalf("expected INIT failure on NAK, got %v", res)
	}
	if m.Initialized() {
		t.Error("pump initialized despite NAK on assignment")
	}
}

func TestMasterflex_HandshakeSilenceAborts(t *testing.T) {
	port := bustest.NewScriptPort(nil) // no reply to ENQ
	m := newTestPump(port)

	res, _ := m.Execute("INIT", "", "")
	if res != ResultError {
		t.Fatalf("expected INIT failure on silence, got %v", res)
	}
	if m.Initialized() {
		t.Error("pump initialized despite silent bus")
	}
}

func TestMasterflex_HandshakeWrongMarkerAborts(t *testing.T) {
	port := bustest.NewScriptPort([]byte("HELLO\r"))
	m := newTestPump(port)

	if res, _ := m.Execute("INIT", "", ""); res != ResultError {
		t.Fatal("expected INIT failure when reply lacks the address-request marker")
	}
	// Retry with a correct script must succeed from a clean slate.
	port.Script([]byte("P?1\r"), []byte{0x06})
	if res, msg := m.Execute("INIT", "", ""); res != ResultOk {
		t.Fatalf("retry INIT: result=%v msg=%q", res, msg)
	}
}

func TestMasterflex_CommandsGatedOnInit(t *testing.T) {
	// The bus would even ACK, but the gate must reject first.
	port := bustest.NewScriptPort([]byte{0x06})
	m := newTestPump(port)

	for _, command := range []string{"START", "STOP", "SPEED", "REV", "STATUS", "REMOTE", "LOCAL"} {
		res, msg := m.Execute(command, "10", "")
		if res != ResultError {
			t.Errorf("%s before INIT: result=%v msg=%q", command, res, msg)
		}
	}
	if len(port.Writes) != 0 {
		t.Errorf("uninitialized pump touched the bus: %d writes", len(port.Writes))
	}
}

// ============================================================
// Motion and query commands
// ============================================================

func TestMasterflex_StartStopFrames(t *testing.T) {
	port := bustest.NewScriptPort()
	m := initPump(t, port)

	port.Script([]byte{0x06})
	if res, _ := m.Execute("START", "", ""); res != ResultOk {
		t.Fatal("START with ACK should confirm")
	}
	if !bytes.Equal(port.LastWrite(), []byte{0x02, 'P', '0', '1', 'G', '\r'}) {
		t.Errorf("START frame = % X", port.LastWrite())
	}

	port.Script([]byte{0x06})
	if res, _ := m.Execute("STOP", "", ""); res != ResultOk {
		t.Fatal("STOP with ACK should confirm")
	}
	if !bytes.Equal(port.LastWrite(), []byte{0x02, 'P', '0', '1', 'H', '\r'}) {
		t.Errorf("STOP frame = % X", port.LastWrite())
	}
}

func TestMasterflex_NakIsError(t *testing.T) {
	port := bustest.NewScriptPort()
	m := initPump(t, port)

	port.Script([]byte{0x15})
	res, msg := m.Execute("START", "", "")
	if res != ResultError || !strings.Contains(msg, "NAK") {
		t.Errorf("START with NAK: result=%v msg=%q", res, msg)
	}
}

func TestMasterflex_SpeedFrameFormats(t *testing.T) {
	tests := []struct {
		rpm  string
		sign string
		core string
	}{
		{"100", "+", "S+100.0"},
		{"22.5", "-", "S-22.5"},
		{"1000", "+", "S+1000"},
		{"2400", "", "S+2400"},
		{"5", "", "S+5.0"},
	}
	for _, tt := range tests {
		t.Run(tt.core, func(t *testing.T) {
			port := bustest.NewScriptPort()
			m := initPump(t, port)
			port.Script([]byte{0x06})
			res, msg := m.Execute("SPEED", tt.rpm, tt.sign)
			if res != ResultOk {
				t.Fatalf("SPEED: result=%v msg=%q", res, msg)
			}
			want := append([]byte{0x02}, []byte("P01"+tt.core+"\r")...)
			if !bytes.Equal(port.LastWrite(), want) {
				t.Errorf("frame = %q, want %q", port.LastWrite(), want)
			}
		})
	}
}

func TestMasterflex_SpeedRejectsBadInput(t *testing.T) {
	port := bustest.NewScriptPort()
	m := initPump(t, port)

	tests := []struct {
		name string
		rpm  string
		sign string
	}{
		{"non-numeric", "fast", ""},
		{"bad direction", "100", "x"},
		{"negative magnitude", "-100", "+"},
		{"negative magnitude without sign", "-22.5", ""},
		{"five digit field", "10000", "+"},
	}
	before := len(port.Writes)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res, msg := m.Execute("SPEED", tt.rpm, tt.sign); res != ResultError {
				t.Errorf("accepted: result=%v msg=%q", res, msg)
			}
		})
	}
	// Rejected speeds never reach the wire.
	if len(port.Writes) != before {
		t.Errorf("rejected speed transmitted: %q", port.LastWrite())
	}
}

func TestMasterflex_RevolutionsFrameFormat(t *testing.T) {
	port := bustest.NewScriptPort()
	m := initPump(t, port)

	port.Script([]byte{0x06})
	res, msg := m.Execute("REV", "5", "")
	if res != ResultOk {
		t.Fatalf("REV: result=%v msg=%q", res, msg)
	}
	want := append([]byte{0x02}, []byte("P01V00005.00\r")...)
	if !bytes.Equal(port.LastWrite(), want) {
		t.Errorf("frame = %q, want %q", port.LastWrite(), want)
	}
}

func TestMasterflex_StatusNeedsDataLine(t *testing.T) {
	port := bustest.NewScriptPort()
	m := initPump(t, port)

	port.Script([]byte("P01 I1 S+100.0\r"))
	res, msg := m.Execute("STATUS", "", "")
	if res != ResultData || !strings.Contains(msg, "S+100.0") {
		t.Errorf("STATUS: result=%v msg=%q", res, msg)
	}

	// An ACK is the wrong shape for a status query.
	port.Script([]byte{0x06})
	if res, _ := m.Execute("STATUS", "", ""); res != ResultError {
		t.Error("STATUS accepted an ACK instead of a data line")
	}
}

func TestMasterflex_StatusStringBestEffort(t *testing.T) {
	port := bustest.NewScriptPort()
	m := newTestPump(port)
	if got := m.Status(); got != "MFLEX_01:uninitialized" {
		t.Errorf("Status() = %q", got)
	}

	m = initPump(t, port)
	port.Script(nil)
	if got := m.Status(); got != "MFLEX_01:unknown" {
		t.Errorf("Status() on silent bus = %q", got)
	}
}

// ============================================================
// Formatting helpers
// ============================================================

func TestFormatRPM(t *testing.T) {
	tests := []struct {
		rpm  float64
		want string
	}{
		{0, "0.0"},
		{5, "5.0"},
		{100, "100.0"},
		{999.9, "999.9"},
		{1000, "1000"},
		{2400, "2400"},
	}
	for _, tt := range tests {
		if got := formatRPM(tt.rpm); got != tt.want {
			t.Errorf("formatRPM(%v) = %q, want %q", tt.rpm, got, tt.want)
		}
	}
}
