// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

// Package server exposes the instrument command protocol over the
// controller's transports. All front-ends feed one parser and one
// dispatcher; responses carry an OK/DATA/ERROR prefix chosen from the
// device's result classification.
package server

import (
	"errors"
	"strings"
)

// Command is one parsed device command line. It lives only for the
// duration of its dispatch.
type Command struct {
	Device string
	Name   string
	Param1 string
	Param2 string
}

// ErrFormat is returned for lines that do not match
// DEVICE_ID:COMMAND[:PARAM1[:PARAM2]].
var ErrFormat = errors.New("invalid command; expected DEVICE_ID:COMMAND[:PARAM1[:PARAM2]]")

// Parse splits a command line on colons. The device and command tokens
// are mandatory and must be non-blank; anything past the fourth colon
// stays attached to the second parameter.
func Parse(line string) (Command, error) {
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 2 {
		return Command{}, ErrFormat
	}
	cmd := Command{
		Device: strings.TrimSpace(parts[0]),
		Name:   strings.TrimSpace(parts[1]),
	}
	if cmd.Device == "" || cmd.Name == "" {
		return Command{}, ErrFormat
	}
	if len(parts) > 2 {
		cmd.Param1 = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		cmd.Param2 = strings.TrimSpace(parts[3])
	}
	return cmd, nil
}
