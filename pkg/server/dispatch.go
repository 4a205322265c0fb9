// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package server

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/peptideworks/optad/pkg/device"
)

// Response prefixes, one per result classification.
const (
	prefixOk    = "OK: "
	prefixData  = "DATA: "
	prefixError = "ERROR: "
)

const helpText = "Commands: STATUS | HELP | DEVICE_ID:COMMAND[:PARAM1[:PARAM2]] | " +
	"relay: ON OFF TOGGLE | valve: GOTO TOGGLE HOME CW CCW POSITION STATUS | " +
	"pump: INIT SPEED START STOP REV STATUS REMOTE LOCAL"

// Dispatcher resolves command lines against the device registry and
// formats the single response line every transport writes back.
type Dispatcher struct {
	registry *device.Registry
	log      log.FieldLogger
}

// NewDispatcher returns a dispatcher over the given registry.
func NewDispatcher(registry *device.Registry, logger log.FieldLogger) *Dispatcher {
	return &Dispatcher{registry: registry, log: logger}
}

// Dispatch executes one command line and returns the response line,
// without a terminator. Every path returns here; nothing a command does
// is fatal to the caller's loop.
func (d *Dispatcher) Dispatch(line string) string {
	line = strings.TrimSpace(line)

	// Global commands bypass device routing entirely.
	if strings.EqualFold(line, "STATUS") {
		status := d.registry.AggregateStatus()
		if status == "" {
			return prefixData + "no devices enabled"
		}
		return prefixData + status
	}
	if strings.EqualFold(line, "HELP") {
		return prefixData + helpText
	}

	cmd, err := Parse(line)
	if err != nil {
		return prefixError + err.Error()
	}

	dev := d.registry.Find(cmd.Device)
	if dev == nil {
		return prefixError + "Device not found: " + cmd.Device
	}

	result, msg := dev.Execute(cmd.Name, cmd.Param1, cmd.Param2)
	d.log.WithFields(log.Fields{
		"device":  dev.ID(),
		"command": cmd.Name,
		"result":  resultWord(result),
	}).Debug("command dispatched")

	return respond(result, msg)
}

func respond(r device.Result, msg string) string {
	switch r {
	case device.ResultOk:
		return prefixOk + msg
	case device.ResultData:
		return prefixData + msg
	default:
		return prefixError + msg
	}
}

func resultWord(r device.Result) string {
	switch r {
	case device.ResultOk:
		return "ok"
	case device.ResultData:
		return "data"
	default:
		return "error"
	}
}
