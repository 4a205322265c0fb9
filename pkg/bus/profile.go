// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

// Package bus drives request/response transactions on the shared
// half-duplex RS-485 line behind the instrument deck.
//
// The valve and pump on that line speak mutually incompatible electrical
// dialects, so the line's parameters belong to the transaction, not to
// the port: every transaction carries a Profile and the engine
// reconfigures the driver before touching the wire.
package bus

import (
	"time"

	"go.bug.st/serial"
)

// Profile describes the electrical and timing parameters one device
// protocol requires for a single transaction on the shared line.
type Profile struct {
	// Mode holds the electrical parameters (baud rate, data bits,
	// parity, stop bits) the target device requires.
	Mode serial.Mode

	// Settle is how long the line is left alone after reconfiguration
	// before any traffic is attempted.
	Settle time.Duration

	// Guard is the post-transmit delay before reception is trusted
	// again, sized so the transceiver never samples its own echo.
	Guard time.Duration

	// Total bounds the whole response window, measured from the end of
	// the guard interval.
	Total time.Duration

	// Gap ends reception once no further bytes arrive for this long
	// after at least one byte was received. This is what allows
	// variable-length replies without a fixed terminator.
	Gap time.Duration

	// Terminator, when non-zero, ends reception immediately. The
	// terminator byte itself is not included in the reply data.
	Terminator byte
}
