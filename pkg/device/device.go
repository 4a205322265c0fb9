// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

// Package device models the instruments hanging off the controller: a
// relay bank on direct GPIO, a VICI selector valve and a Masterflex
// peristaltic pump on the shared RS-485 line. Each device owns the wire
// protocol of its instrument class behind one common contract.
package device

// Kind identifies a device's instrument class. The set is closed:
// adding an instrument class means adding a variant, not changing the
// existing ones.
type Kind int

const (
	KindRelay Kind = iota
	KindValve
	KindPump
)

func (k Kind) String() string {
	switch k {
	case KindRelay:
		return "relay"
	case KindValve:
		return "valve"
	case KindPump:
		return "pump"
	default:
		return "unknown"
	}
}

// Result classifies a device's response to a command: a confirmation,
// a failure, or queried information carried in the message.
type Result int

const (
	ResultOk Result = iota
	ResultError
	ResultData
)

// Device is the common contract all instrument variants implement.
//
// Init configures hardware or bus state and is called once, by the
// registry, at registration time. Execute runs one command with up to
// two parameters and returns a classification plus a human-readable
// message. Status always succeeds; variants that need the bus report an
// unknown marker instead of propagating a transport failure.
type Device interface {
	ID() string
	Kind() Kind
	Init() error
	Execute(command, param1, param2 string) (Result, string)
	Status() string
}

const statusUnknown = "unknown"
