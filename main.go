// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 PeptideWorks
//
// Optad - instrument controller for the automated peptide synthesizer.
//
// Runs the controller daemon and provides client tooling for talking to
// a running controller over serial, TCP, or WebSocket.

package main

import (
	"os"

	"github.com/peptideworks/optad/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
