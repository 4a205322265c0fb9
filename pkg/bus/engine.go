// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package bus

import (
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// pollInterval is the read timeout used while polling for reply bytes.
// It bounds how stale a deadline check can get, not how long a reply
// may take.
const pollInterval = 5 * time.Millisecond

// Port is the subset of a serial port the engine needs. It is satisfied
// by go.bug.st/serial.Port and by test doubles.
type Port interface {
	io.ReadWriter
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Drain() error
}

// Reply is the raw outcome of one read window on the bus.
//
// Data is empty when nothing arrived before the total timeout.
// Terminated reports whether the profile's terminator byte arrived;
// a non-empty unterminated reply means bytes stopped at the gap or
// total deadline instead. Callers classify the reply per their own
// protocol.
type Reply struct {
	Data       []byte
	Terminated bool
}

// Engine executes transactions on the shared half-duplex line. It holds
// no protocol knowledge; devices supply the profile and frame and
// classify whatever comes back.
type Engine struct {
	port Port
	log  log.FieldLogger
}

// NewEngine returns an engine driving the given port.
func NewEngine(port Port, logger log.FieldLogger) *Engine {
	return &Engine{port: port, log: logger}
}

// Transact runs one request/response exchange under the given profile:
// reconfigure the line, drain stale input, transmit the frame with
// guard timing, and (when expectReply is set) read a reply under the
// profile's total/gap timeout policy.
//
// A transport failure returns an error. An empty or unterminated reply
// is not an error at this layer; it comes back in the Reply for the
// calling device to judge.
func (e *Engine) Transact(p Profile, frame []byte, expectReply bool) (Reply, error) {
	if err := e.reconfigure(p); err != nil {
		return Reply{}, err
	}
	if err := e.transmit(p, frame); err != nil {
		return Reply{}, err
	}
	if !expectReply {
		return Reply{}, nil
	}
	return e.receive(p)
}

// reconfigure resets the line driver to the profile's electrical
// parameters and lets it settle. The previous transaction may have left
// the line in the other device's dialect, so this runs before every
// transaction unconditionally.
func (e *Engine) reconfigure(p Profile) error {
	if err := e.port.SetMode(&p.Mode); err != nil {
		return fmt.Errorf("bus reconfigure: %w", err)
	}
	time.Sleep(p.Settle)
	if err := e.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("bus drain: %w", err)
	}
	return nil
}

func (e *Engine) transmit(p Profile, frame []byte) error {
	e.log.WithFields(log.Fields{
		"baud":  p.Mode.BaudRate,
		"frame": fmt.Sprintf("% X", frame),
	}).Debug("bus transmit")

	for off := 0; off < len(frame); {
		n, err := e.port.Write(frame[off:])
		if err != nil {
			return fmt.Errorf("bus write: %w", err)
		}
		off += n
	}
	if err := e.port.Drain(); err != nil {
		return fmt.Errorf("bus flush: %w", err)
	}
	time.Sleep(p.Guard)
	return nil
}

// receive polls the port under two deadlines at once: a total ceiling
// on the whole window, and a gap ceiling that ends reception once bytes
// stop flowing after at least one arrived.
func (e *Engine) receive(p Profile) (Reply, error) {
	if err := e.port.SetReadTimeout(pollInterval); err != nil {
		return Reply{}, fmt.Errorf("bus read timeout: %w", err)
	}

	var data []byte
	start := time.Now()
	lastByte := start
	chunk := make([]byte, 64)

	for {
		n, err := e.port.Read(chunk)
		if err != nil {
			return Reply{}, fmt.Errorf("bus read: %w", err)
		}
		for i := 0; i < n; i++ {
			b := chunk[i]
			if p.Terminator != 0 && b == p.Terminator {
				e.log.WithField("reply", fmt.Sprintf("% X", data)).Debug("bus reply terminated")
				return Reply{Data: data, Terminated: true}, nil
			}
			data = append(data, b)
		}
		if n > 0 {
			lastByte = time.Now()
			continue
		}

		now := time.Now()
		if len(data) == 0 {
			if now.Sub(start) >= p.Total {
				e.log.Debug("bus reply window expired with no data")
				return Reply{}, nil
			}
		} else if now.Sub(lastByte) >= p.Gap || now.Sub(start) >= p.Total {
			e.log.WithField("reply", fmt.Sprintf("% X", data)).Debug("bus reply ended by timeout")
			return Reply{Data: data}, nil
		}
	}
}
