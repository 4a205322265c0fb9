// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package server

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peptideworks/optad/pkg/bus"
	"github.com/peptideworks/optad/pkg/bus/bustest"
	"github.com/peptideworks/optad/pkg/device"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakePin struct{}

func (fakePin) Out(bool) error { return nil }

// newTestRig builds a registry with one relay, one valve, and one pump,
// all driven through a scripted bus port.
func newTestRig(t *testing.T) (*Dispatcher, *bustest.ScriptPort) {
	t.Helper()
	logger := testLogger()
	port := bustest.NewScriptPort()
	engine := bus.NewEngine(port, logger)

	reg := device.NewRegistry(logger)
	require.NoError(t, reg.Register(device.NewRelay("REL_01", fakePin{}, fakePin{})))
	require.NoError(t, reg.Register(device.NewVici("VICI_01", 'Z', engine)))
	require.NoError(t, reg.Register(device.NewMasterflex("MFLEX_01", "01", engine)))

	return NewDispatcher(reg, logger), port
}

func TestDispatch_RelaySequenceReflectedInStatus(t *testing.T) {
	d, port := newTestRig(t)

	assert.True(t, strings.HasPrefix(d.Dispatch("REL_01:ON"), prefixOk))
	assert.True(t, strings.HasPrefix(d.Dispatch("REL_01:OFF"), prefixOk))
	assert.True(t, strings.HasPrefix(d.Dispatch("REL_01:TOGGLE"), prefixOk))

	// STATUS walks every enabled device; script the bus replies the
	// valve and pump status probes will consume.
	port.Script([]byte("B\r"))
	status := d.Dispatch("status")
	assert.True(t, strings.HasPrefix(status, prefixData), status)
	assert.Contains(t, status, "REL_01:ON")
	assert.Contains(t, status, "VICI_01:B")
	assert.Contains(t, status, "MFLEX_01:uninitialized")
}

func TestDispatch_UnknownDevice(t *testing.T) {
	d, _ := newTestRig(t)
	assert.Equal(t, "ERROR: Device not found: NOPE_01", d.Dispatch("NOPE_01:ON"))
}

func TestDispatch_MalformedLines(t *testing.T) {
	d, _ := newTestRig(t)
	for _, line := range []string{"garbage", ":", "REL_01:", ":ON"} {
		assert.True(t, strings.HasPrefix(d.Dispatch(line), prefixError), "line %q", line)
	}
}

func TestDispatch_CaseInsensitiveRouting(t *testing.T) {
	d, _ := newTestRig(t)
	assert.True(t, strings.HasPrefix(d.Dispatch("rel_01:on"), prefixOk))
}

func TestDispatch_Help(t *testing.T) {
	d, _ := newTestRig(t)
	resp := d.Dispatch("HELP")
	assert.True(t, strings.HasPrefix(resp, prefixData), resp)
	assert.Contains(t, resp, "DEVICE_ID:COMMAND")
}

func TestDispatch_PrefixMatchesResultKind(t *testing.T) {
	d, port := newTestRig(t)

	// Valve motion: Ok without any reply bytes.
	assert.True(t, strings.HasPrefix(d.Dispatch("VICI_01:GOTO:B"), prefixOk))

	// Valve query: Data when a line arrives.
	port.Script([]byte("B\r"))
	resp := d.Dispatch("VICI_01:POSITION")
	assert.True(t, strings.HasPrefix(resp, prefixData), resp)
	assert.Contains(t, resp, "position: B")

	// Pump gated on the handshake: Error regardless of bus state.
	assert.True(t, strings.HasPrefix(d.Dispatch("MFLEX_01:START"), prefixError))
}

func TestDispatch_PumpHandshakeThenStatus(t *testing.T) {
	d, port := newTestRig(t)

	port.Script([]byte("P?1\r"), []byte{0x06})
	resp := d.Dispatch("MFLEX_01:INIT")
	require.True(t, strings.HasPrefix(resp, prefixOk), resp)

	// A later command must not re-run the handshake: exactly one frame.
	before := len(port.Writes)
	port.Script([]byte("P01 I1\r"))
	resp = d.Dispatch("MFLEX_01:STATUS")
	assert.True(t, strings.HasPrefix(resp, prefixData), resp)
	assert.Equal(t, before+1, len(port.Writes))
}

func TestDispatch_IdempotentCrossDeviceTransactions(t *testing.T) {
	d, port := newTestRig(t)

	// Interleave valve and pump traffic; each transaction must set its
	// own electrical profile, so the mode sequence alternates.
	port.Script([]byte("P?1\r"), []byte{0x06})
	require.True(t, strings.HasPrefix(d.Dispatch("MFLEX_01:INIT"), prefixOk))
	require.True(t, strings.HasPrefix(d.Dispatch("VICI_01:GOTO:2"), prefixOk))
	require.True(t, strings.HasPrefix(d.Dispatch("VICI_01:GOTO:2"), prefixOk))

	modes := port.Modes
	require.GreaterOrEqual(t, len(modes), 4)
	last := modes[len(modes)-1]
	assert.Equal(t, 9600, last.BaudRate, "valve profile must be re-established per transaction")
	assert.Equal(t, 4800, modes[0].BaudRate, "pump profile first")
}
