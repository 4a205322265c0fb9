// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 PeptideWorks

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Client connection flags, shared by send and console.
	portName string
	baudRate int
	tcpAddr  string
	wsURL    string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "optad",
	Short: "Peptide synthesizer instrument controller",
	Long: `Optad - instrument controller for the automated peptide synthesizer.

The controller owns the relay bank, the VICI selector valve, and the
Masterflex pump, and exposes one textual command protocol over a serial
console, a TCP listener, and optionally WebSocket:

  DEVICE_ID:COMMAND[:PARAM1[:PARAM2]]     e.g. VICI_01:GOTO:B
  STATUS | HELP                           global commands

Run the controller with 'optad serve'. Talk to a running controller with
'optad send' for one-shot commands or 'optad console' for an interactive
session:

  Serial:    --port /dev/ttyACM0 [--baud 115200]
  TCP:       --addr host:9100
  WebSocket: --url ws://host:9101`,
	Version: "1.2.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port of a running controller")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&tcpAddr, "addr", "a", "", "TCP address of a running controller (host:port)")
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL of a running controller (ws:// or wss://)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
