// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package device

import (
	"fmt"
	"strings"
)

// Pin is a single output line. It is satisfied by the periph.io adapter
// in gpio.go and by test doubles.
type Pin interface {
	Out(high bool) error
}

// Relay drives one channel of the relay bank: an output line switching
// the relay coil and an indicator line mirroring it on the front panel.
// Relays never touch the shared bus; every operation is direct I/O.
type Relay struct {
	id        string
	out       Pin
	indicator Pin
	on        bool
}

// NewRelay returns a relay channel driving the given output and
// indicator lines. The lines are fixed for the life of the device.
func NewRelay(id string, out, indicator Pin) *Relay {
	return &Relay{id: id, out: out, indicator: indicator}
}

func (r *Relay) ID() string { return r.id }

func (r *Relay) Kind() Kind { return KindRelay }

// Init forces both lines low so the channel starts in a known state.
func (r *Relay) Init() error {
	if err := r.drive(false); err != nil {
		return fmt.Errorf("relay %s init: %w", r.id, err)
	}
	return nil
}

func (r *Relay) Execute(command, _, _ string) (Result, string) {
	switch strings.ToUpper(command) {
	case "ON":
		return r.set(true)
	case "OFF":
		return r.set(false)
	case "TOGGLE":
		return r.set(!r.on)
	default:
		return ResultError, fmt.Sprintf("unknown relay command: %s", command)
	}
}

func (r *Relay) set(on bool) (Result, string) {
	if err := r.drive(on); err != nil {
		return ResultError, fmt.Sprintf("%s output failed: %v", r.id, err)
	}
	r.on = on
	return ResultOk, fmt.Sprintf("%s switched %s", r.id, stateWord(on))
}

// drive sets both lines; the indicator always follows the output.
func (r *Relay) drive(on bool) error {
	if err := r.out.Out(on); err != nil {
		return err
	}
	return r.indicator.Out(on)
}

func (r *Relay) Status() string {
	return fmt.Sprintf("%s:%s", r.id, stateWord(r.on))
}

func stateWord(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
