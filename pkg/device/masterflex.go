// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/peptideworks/optad/pkg/bus"
)

// Masterflex satellite protocol control bytes.
const (
	mflexSTX = 0x02
	mflexENQ = 0x05
	mflexACK = 0x06
	mflexNAK = 0x15
)

// addressRequestMarker opens the line a freshly powered pump sends in
// answer to ENQ, asking the controller to assign it a satellite number.
const addressRequestMarker = "P?"

// mflexProfile is the pump's electrical dialect: 4800 7O1, incompatible
// with the valve sharing the line.
var mflexProfile = bus.Profile{
	Mode:       serial.Mode{BaudRate: 4800, DataBits: 7, Parity: serial.OddParity, StopBits: serial.OneStopBit},
	Settle:     30 * time.Millisecond,
	Guard:      20 * time.Millisecond,
	Total:      2 * time.Second,
	Gap:        100 * time.Millisecond,
	Terminator: '\r',
}

// handshakeState tracks the pump addressing handshake. Only the INIT
// command moves it; any unmet condition drops straight back to
// uninitialized with no partial state retained.
type handshakeState int

const (
	hsUninitialized handshakeState = iota
	hsAwaitEnquiryReply
	hsAwaitAssignAck
	hsInitialized
)

// replyKind classifies a pump reply per the satellite protocol.
type replyKind int

const (
	replyNone replyKind = iota
	replyAck
	replyNak
	replyData
	replyGarbled
)

// Masterflex is a peristaltic pump on the shared line. The pump cannot
// self-identify, so every bus command is gated on the addressing
// handshake having assigned it the configured satellite number.
type Masterflex struct {
	id     string
	addr   string
	engine *bus.Engine
	state  handshakeState
}

// NewMasterflex returns a pump that will claim the given satellite
// number (a short numeric string such as "01") once INIT succeeds.
func NewMasterflex(id, addr string, engine *bus.Engine) *Masterflex {
	return &Masterflex{id: id, addr: addr, engine: engine}
}

func (m *Masterflex) ID() string { return m.id }

func (m *Masterflex) Kind() Kind { return KindPump }

// Init succeeds without bus traffic. The addressing handshake is
// deliberately left to an explicit INIT command so a pump powered on
// after the controller can still be claimed.
func (m *Masterflex) Init() error { return nil }

// Initialized reports whether the addressing handshake has completed.
func (m *Masterflex) Initialized() bool { return m.state == hsInitialized }

func (m *Masterflex) Execute(command, param1, param2 string) (Result, string) {
	cmd := strings.ToUpper(command)
	if cmd == "INIT" {
		return m.runHandshake()
	}
	if !m.Initialized() {
		return ResultError, fmt.Sprintf("%s not initialized; run INIT first", m.id)
	}

	switch cmd {
	case "SPEED":
		return m.speed(param1, param2)
	case "START":
		return m.confirm("G", fmt.Sprintf("%s started", m.id))
	case "STOP":
		return m.confirm("H", fmt.Sprintf("%s stopped", m.id))
	case "REV":
		return m.revolutions(param1)
	case "REMOTE":
		return m.confirm("R", fmt.Sprintf("%s in remote mode", m.id))
	case "LOCAL":
		return m.confirm("L", fmt.Sprintf("%s in local mode", m.id))
	case "STATUS":
		return m.status()
	default:
		return ResultError, fmt.Sprintf("unknown pump command: %s", command)
	}
}

// runHandshake walks the ENQ/identify/assign/ACK sequence that gives
// the pump its satellite number.
func (m *Masterflex) runHandshake() (Result, string) {
	m.state = hsAwaitEnquiryReply
	kind, line, err := m.exchange([]byte{mflexENQ})
	if err != nil {
		m.state = hsUninitialized
		return ResultError, fmt.Sprintf("%s bus error: %v", m.id, err)
	}
	if kind != replyData || !strings.HasPrefix(line, addressRequestMarker) {
		m.state = hsUninitialized
		return ResultError, fmt.Sprintf("%s did not request an address (reply %s)", m.id, describeReply(kind, line))
	}

	m.state = hsAwaitAssignAck
	kind, line, err = m.exchange(m.frame(""))
	if err != nil {
		m.state = hsUninitialized
		return ResultError, fmt.Sprintf("%s bus error: %v", m.id, err)
	}
	if kind != replyAck {
		m.state = hsUninitialized
		return ResultError, fmt.Sprintf("%s rejected address assignment (reply %s)", m.id, describeReply(kind, line))
	}

	m.state = hsInitialized
	return ResultOk, fmt.Sprintf("%s initialized as satellite %s", m.id, m.addr)
}

// speed takes an unsigned rpm magnitude; direction travels only in the
// sign parameter. The magnitude must fit the protocol's 4-digit field.
func (m *Masterflex) speed(rpmStr, sign string) (Result, string) {
	rpm, err := strconv.ParseFloat(rpmStr, 64)
	if err != nil || rpm < 0 {
		return ResultError, fmt.Sprintf("%s invalid speed: %q", m.id, rpmStr)
	}
	if rpm >= 10000 {
		return ResultError, fmt.Sprintf("%s speed out of range: %q", m.id, rpmStr)
	}
	switch sign {
	case "", "+", "-":
	default:
		return ResultError, fmt.Sprintf("%s invalid direction: %q", m.id, sign)
	}
	if sign == "" {
		sign = "+"
	}
	return m.confirm("S"+sign+formatRPM(rpm), fmt.Sprintf("%s speed set to %s%.1f rpm", m.id, sign, rpm))
}

func (m *Masterflex) revolutions(revStr string) (Result, string) {
	rev, err := strconv.ParseFloat(revStr, 64)
	if err != nil {
		return ResultError, fmt.Sprintf("%s invalid revolutions: %q", m.id, revStr)
	}
	return m.confirm(fmt.Sprintf("V%08.2f", rev), fmt.Sprintf("%s set to run %.2f revolutions", m.id, rev))
}

// confirm sends a motion/mode frame; only an ACK counts as success.
func (m *Masterflex) confirm(core, okMsg string) (Result, string) {
	kind, line, err := m.exchange(m.frame(core))
	if err != nil {
		return ResultError, fmt.Sprintf("%s bus error: %v", m.id, err)
	}
	switch kind {
	case replyAck:
		return ResultOk, okMsg
	case replyNak:
		return ResultError, fmt.Sprintf("%s rejected command %s (NAK)", m.id, core)
	default:
		return ResultError, fmt.Sprintf("%s gave no acknowledgment for %s (reply %s)", m.id, core, describeReply(kind, line))
	}
}

// status queries the pump; only a data line counts as success.
func (m *Masterflex) status() (Result, string) {
	kind, line, err := m.exchange(m.frame("I"))
	if err != nil {
		return ResultError, fmt.Sprintf("%s bus error: %v", m.id, err)
	}
	if kind != replyData {
		return ResultError, fmt.Sprintf("%s status query failed (reply %s)", m.id, describeReply(kind, line))
	}
	return ResultData, fmt.Sprintf("%s status: %s", m.id, line)
}

// exchange runs one transaction under the pump profile and classifies
// whatever came back.
func (m *Masterflex) exchange(frame []byte) (replyKind, string, error) {
	reply, err := m.engine.Transact(mflexProfile, frame, true)
	if err != nil {
		return replyNone, "", err
	}
	kind, line := classifyReply(reply)
	return kind, line, nil
}

// frame builds the wire form STX P<addr><core> CR. An empty core yields
// the address-assignment frame.
func (m *Masterflex) frame(core string) []byte {
	b := make([]byte, 0, len(m.addr)+len(core)+3)
	b = append(b, mflexSTX, 'P')
	b = append(b, m.addr...)
	b = append(b, core...)
	return append(b, '\r')
}

// classifyReply sorts a raw reply into the satellite protocol's
// categories: a lone ACK or NAK byte, a CR-terminated printable data
// line, silence, or garbage that stopped without its terminator.
func classifyReply(r bus.Reply) (replyKind, string) {
	if len(r.Data) == 0 {
		return replyNone, ""
	}
	if len(r.Data) == 1 {
		switch r.Data[0] {
		case mflexACK:
			return replyAck, ""
		case mflexNAK:
			return replyNak, ""
		}
	}
	line := strings.TrimSpace(string(r.Data))
	if r.Terminated && printable(line) {
		return replyData, line
	}
	return replyGarbled, line
}

func describeReply(kind replyKind, line string) string {
	switch kind {
	case replyNone:
		return "timeout"
	case replyAck:
		return "ACK"
	case replyNak:
		return "NAK"
	case replyData:
		return fmt.Sprintf("%q", line)
	default:
		return fmt.Sprintf("garbled %q", line)
	}
}

func printable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return false
		}
	}
	return true
}

// formatRPM renders a speed the way the satellite protocol wants it:
// a 4-digit integer at or above 1000 rpm, a fixed one-decimal value
// below that.
func formatRPM(rpm float64) string {
	if math.Abs(rpm) >= 1000 {
		return fmt.Sprintf("%04d", int(rpm))
	}
	return fmt.Sprintf("%.1f", rpm)
}

// Status is best-effort: an I query once initialized, and a plain
// marker before that or when the pump cannot be reached.
func (m *Masterflex) Status() string {
	if !m.Initialized() {
		return fmt.Sprintf("%s:uninitialized", m.id)
	}
	kind, line, err := m.exchange(m.frame("I"))
	if err != nil || kind != replyData {
		return fmt.Sprintf("%s:%s", m.id, statusUnknown)
	}
	return fmt.Sprintf("%s:%s", m.id, line)
}
