// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 PeptideWorks

package cmd

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send one command line to a running controller",
	Long: `Send one command line to a running controller and print the response.

The command is sent verbatim over the connection selected by --port,
--addr or --url, for example:

  optad send REL_01:ON
  optad send VICI_01:GOTO:B
  optad send STATUS`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	line := strings.TrimSpace(args[0])
	if line == "" {
		return fmt.Errorf("command line is empty")
	}

	conn, desc, err := OpenClientConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if verbose {
		fmt.Printf("Connected via %s\n", desc)
	}

	if tc, ok := conn.(net.Conn); ok {
		tc.SetDeadline(time.Now().Add(10 * time.Second))
	}

	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("send failed: %v", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := reader.ReadString('\n')
	if err != nil && resp == "" {
		return fmt.Errorf("no response: %v", err)
	}

	fmt.Println(strings.TrimRight(resp, "\r\n"))
	return nil
}
