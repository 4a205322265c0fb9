// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

// Package bustest provides a scripted in-memory bus port for testing
// device protocols without hardware.
package bustest

import (
	"sync"
	"time"

	"go.bug.st/serial"
)

// ScriptPort implements bus.Port. Each write consumes the next scripted
// reply and makes it available to subsequent reads, which mimics the
// half-duplex request/response pattern of the real line.
type ScriptPort struct {
	mu sync.Mutex

	// script holds the reply bytes served after each write, in order.
	// A nil entry means silence for that exchange.
	script [][]byte

	pending     []byte
	readTimeout time.Duration

	// Recorded activity, for assertions.
	Writes [][]byte
	Modes  []serial.Mode
	Drains int
}

// NewScriptPort returns a port that serves the given replies, one per
// write, in order.
func NewScriptPort(replies ...[]byte) *ScriptPort {
	return &ScriptPort{script: replies, readTimeout: time.Millisecond}
}

// Script appends further replies to the script.
func (p *ScriptPort) Script(replies ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, replies...)
}

func (p *ScriptPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Writes = append(p.Writes, append([]byte(nil), b...))
	if len(p.script) > 0 {
		p.pending = append(p.pending, p.script[0]...)
		p.script = p.script[1:]
	}
	return len(b), nil
}

func (p *ScriptPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		timeout := p.readTimeout
		p.mu.Unlock()
		// Emulate a blocking read that returns empty on timeout, the
		// way go.bug.st/serial behaves with SetReadTimeout.
		time.Sleep(timeout)
		return 0, nil
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *ScriptPort) SetMode(mode *serial.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Modes = append(p.Modes, *mode)
	return nil
}

func (p *ScriptPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t <= 0 {
		t = time.Millisecond
	}
	p.readTimeout = t
	return nil
}

// ResetInputBuffer discards undelivered reply bytes, like draining a
// real port. Scripted replies not yet triggered by a write survive.
func (p *ScriptPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.Drains++
	return nil
}

func (p *ScriptPort) Drain() error { return nil }

// LastWrite returns the most recent frame written, or nil.
func (p *ScriptPort) LastWrite() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Writes) == 0 {
		return nil
	}
	return p.Writes[len(p.Writes)-1]
}
