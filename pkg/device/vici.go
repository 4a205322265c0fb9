// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package device

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/peptideworks/optad/pkg/bus"
)

// viciProfile is the electrical dialect of the VICI multi-position
// actuator: 9600 8N1, carriage-return framed replies.
var viciProfile = bus.Profile{
	Mode:       serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
	Settle:     30 * time.Millisecond,
	Guard:      50 * time.Millisecond,
	Total:      time.Second,
	Gap:        100 * time.Millisecond,
	Terminator: '\r',
}

// Vici is a multi-position selector valve on the shared line. It is
// stateless between commands: every operation re-issues a fresh
// transaction and the device caches no position.
type Vici struct {
	id     string
	addr   byte
	engine *bus.Engine
}

// NewVici returns a valve with the given single-character bus address.
func NewVici(id string, addr byte, engine *bus.Engine) *Vici {
	return &Vici{id: id, addr: addr, engine: engine}
}

func (v *Vici) ID() string { return v.id }

func (v *Vici) Kind() Kind { return KindValve }

// Init succeeds without touching the line; the valve holds no state and
// each command re-establishes its own bus profile anyway.
func (v *Vici) Init() error { return nil }

func (v *Vici) Execute(command, param1, _ string) (Result, string) {
	switch strings.ToUpper(command) {
	case "GOTO":
		if param1 == "" {
			return ResultError, fmt.Sprintf("%s GOTO requires a position", v.id)
		}
		pos := strings.ToUpper(param1)
		return v.move("GO"+pos, fmt.Sprintf("%s moving to position %s", v.id, pos))
	case "TOGGLE":
		return v.move("TO", fmt.Sprintf("%s toggling position", v.id))
	case "HOME":
		return v.move("HM", fmt.Sprintf("%s homing", v.id))
	case "CW":
		return v.move("CW", fmt.Sprintf("%s stepping clockwise", v.id))
	case "CCW":
		return v.move("CC", fmt.Sprintf("%s stepping counterclockwise", v.id))
	case "POSITION":
		line, res := v.query("CP")
		if res != ResultData {
			return res, line
		}
		return ResultData, fmt.Sprintf("%s position: %s", v.id, line)
	case "STATUS":
		line, res := v.query("STAT")
		if res != ResultData {
			return res, line
		}
		return ResultData, fmt.Sprintf("%s status: %s", v.id, line)
	default:
		return ResultError, fmt.Sprintf("unknown valve command: %s", command)
	}
}

// move issues a motion frame. The valve protocol confirms motion by
// accepting the frame, not by replying, so a clean transmit is success.
func (v *Vici) move(core, okMsg string) (Result, string) {
	if _, err := v.engine.Transact(viciProfile, v.frame(core), false); err != nil {
		return ResultError, fmt.Sprintf("%s bus error: %v", v.id, err)
	}
	return ResultOk, okMsg
}

// query issues a frame that expects a CR-terminated reply and returns
// the cleaned payload line.
func (v *Vici) query(core string) (string, Result) {
	reply, err := v.engine.Transact(viciProfile, v.frame(core), true)
	if err != nil {
		return fmt.Sprintf("%s bus error: %v", v.id, err), ResultError
	}
	line := cleanViciReply(reply.Data)
	switch {
	case len(reply.Data) == 0:
		return fmt.Sprintf("%s did not respond", v.id), ResultError
	case !reply.Terminated:
		return fmt.Sprintf("%s sent an incomplete response: %q", v.id, line), ResultError
	}
	return line, ResultData
}

// frame builds the wire form /<address><core>\r.
func (v *Vici) frame(core string) []byte {
	b := make([]byte, 0, len(core)+3)
	b = append(b, '/', v.addr)
	b = append(b, core...)
	return append(b, '\r')
}

// cleanViciReply strips the newline bytes the actuator interleaves with
// its carriage-return framing.
func cleanViciReply(data []byte) string {
	return strings.TrimSpace(strings.ReplaceAll(string(data), "\n", ""))
}

// Status is best-effort: a position query, with an unknown marker when
// the valve cannot be reached.
func (v *Vici) Status() string {
	line, res := v.query("CP")
	if res != ResultData {
		return fmt.Sprintf("%s:%s", v.id, statusUnknown)
	}
	return fmt.Sprintf("%s:%s", v.id, line)
}
