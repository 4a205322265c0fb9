// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package bus_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/peptideworks/optad/pkg/bus"
	"github.com/peptideworks/optad/pkg/bus/bustest"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fastProfile(term byte) bus.Profile {
	return bus.Profile{
		Mode:       serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		Settle:     time.Millisecond,
		Guard:      time.Millisecond,
		Total:      50 * time.Millisecond,
		Gap:        15 * time.Millisecond,
		Terminator: term,
	}
}

func TestTransact_ReconfiguresBeforeEveryTransaction(t *testing.T) {
	port := bustest.NewScriptPort(nil, nil)
	e := bus.NewEngine(port, testLogger())

	p1 := fastProfile(0)
	p2 := fastProfile(0)
	p2.Mode = serial.Mode{BaudRate: 4800, DataBits: 7, Parity: serial.OddParity, StopBits: serial.OneStopBit}

	if _, err := e.Transact(p1, []byte("one"), false); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if _, err := e.Transact(p2, []byte("two"), false); err != nil {
		t.Fatalf("Transact: %v", err)
	}

	if len(port.Modes) != 2 {
		t.Fatalf("expected 2 mode changes, got %d", len(port.Modes))
	}
	if port.Modes[0].BaudRate != 9600 || port.Modes[1].BaudRate != 4800 {
		t.Errorf("mode sequence wrong: %+v", port.Modes)
	}
	if port.Modes[1].Parity != serial.OddParity || port.Modes[1].DataBits != 7 {
		t.Errorf("second profile not applied: %+v", port.Modes[1])
	}
	if port.Drains != 2 {
		t.Errorf("expected stale input drained per transaction, got %d drains", port.Drains)
	}
}

func TestTransact_WritesFrameVerbatim(t *testing.T) {
	port := bustest.NewScriptPort(nil)
	e := bus.NewEngine(port, testLogger())

	frame := []byte("/ZGO2\r")
	if _, err := e.Transact(fastProfile(0), frame, false); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if !bytes.Equal(port.LastWrite(), frame) {
		t.Errorf("frame on wire = %q, want %q", port.LastWrite(), frame)
	}
}

func TestTransact_TerminatedReply(t *testing.T) {
	port := bustest.NewScriptPort([]byte("B\r"))
	e := bus.NewEngine(port, testLogger())

	reply, err := e.Transact(fastProfile('\r'), []byte("/ZCP\r"), true)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if !reply.Terminated {
		t.Error("expected terminated reply")
	}
	if string(reply.Data) != "B" {
		t.Errorf("reply data = %q, want %q", reply.Data, "B")
	}
}

func TestTransact_GapEndsUnterminatedReply(t *testing.T) {
	port := bustest.NewScriptPort([]byte{0x06})
	e := bus.NewEngine(port, testLogger())

	start := time.Now()
	reply, err := e.Transact(fastProfile('\r'), []byte("frame"), true)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if reply.Terminated {
		t.Error("single byte reply should not be terminated")
	}
	if !bytes.Equal(reply.Data, []byte{0x06}) {
		t.Errorf("reply data = % X, want 06", reply.Data)
	}
	// Must have ended at the gap deadline, well before the total one.
	if elapsed := time.Since(start); elapsed >= 50*time.Millisecond {
		t.Errorf("gap policy did not end reception early (took %v)", elapsed)
	}
}

func TestTransact_SilenceExpiresAtTotalTimeout(t *testing.T) {
	port := bustest.NewScriptPort(nil)
	e := bus.NewEngine(port, testLogger())

	reply, err := e.Transact(fastProfile('\r'), []byte("frame"), true)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if len(reply.Data) != 0 || reply.Terminated {
		t.Errorf("expected empty reply, got %+v", reply)
	}
}

func TestTransact_NoReplyExpectedSkipsReadWindow(t *testing.T) {
	port := bustest.NewScriptPort(nil)
	e := bus.NewEngine(port, testLogger())

	start := time.Now()
	if _, err := e.Transact(fastProfile('\r'), []byte("frame"), false); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 40*time.Millisecond {
		t.Errorf("fire-and-forget transaction waited for a reply (%v)", elapsed)
	}
}
