// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 PeptideWorks

package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console for a running controller",
	Long: `Interactive console for a running controller.

Opens a session over the connection selected by --port, --addr or
--url and exchanges command lines interactively. Responses are
classified by their OK/DATA/ERROR prefix.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	conn, desc, err := OpenClientConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	responses := make(chan consoleLineMsg, 16)
	go readResponses(conn, responses)

	p := tea.NewProgram(initialConsoleModel(conn, desc, responses))
	_, err = p.Run()
	return err
}

// readResponses forwards response lines from the controller to the TUI.
func readResponses(conn Connection, out chan<- consoleLineMsg) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		out <- consoleLineMsg{line: line}
	}
	out <- consoleLineMsg{closed: true, err: scanner.Err()}
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type transcriptKind int

const (
	kindSent transcriptKind = iota
	kindOk
	kindData
	kindError
	kindInfo
)

type transcriptEntry struct {
	timestamp time.Time
	kind      transcriptKind
	text      string
}

type consoleModel struct {
	conn         Connection
	connInfo     string
	responses    <-chan consoleLineMsg
	input        textinput.Model
	transcript   []transcriptEntry
	maxEntries   int
	disconnected bool
	width        int
	height       int
	quitting     bool
}

type consoleLineMsg struct {
	line   string
	closed bool
	err    error
}

func initialConsoleModel(conn Connection, connInfo string, responses <-chan consoleLineMsg) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "DEVICE_ID:COMMAND[:PARAM1[:PARAM2]]"
	ti.CharLimit = 120
	ti.Width = 60
	ti.Focus()

	return consoleModel{
		conn:       conn,
		connInfo:   connInfo,
		responses:  responses,
		input:      ti,
		transcript: make([]transcriptEntry, 0),
		maxEntries: 200,
		width:      80,
		height:     24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForResponse())
}

func (m consoleModel) waitForResponse() tea.Cmd {
	return func() tea.Msg {
		return <-m.responses
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case consoleLineMsg:
		if msg.closed {
			m.disconnected = true
			if msg.err != nil {
				m.addEntry(kindError, fmt.Sprintf("connection lost: %v", msg.err))
			} else {
				m.addEntry(kindInfo, "connection closed by controller")
			}
			return m, nil
		}
		m.addEntry(classifyResponse(msg.line), msg.line)
		return m, m.waitForResponse()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) handleEnter() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	m.input.Reset()

	if m.disconnected {
		m.addEntry(kindError, "not connected")
		return m, nil
	}

	m.addEntry(kindSent, line)
	if _, err := m.conn.Write([]byte(line + "\r\n")); err != nil {
		m.disconnected = true
		m.addEntry(kindError, fmt.Sprintf("send failed: %v", err))
	}
	return m, nil
}

func (m *consoleModel) addEntry(kind transcriptKind, text string) {
	m.transcript = append(m.transcript, transcriptEntry{
		timestamp: time.Now(),
		kind:      kind,
		text:      text,
	})
	if len(m.transcript) > m.maxEntries {
		m.transcript = m.transcript[len(m.transcript)-m.maxEntries:]
	}
}

// classifyResponse maps a response line to a transcript kind by its
// protocol prefix.
func classifyResponse(line string) transcriptKind {
	switch {
	case strings.HasPrefix(line, "OK:"):
		return kindOk
	case strings.HasPrefix(line, "DATA:"):
		return kindData
	case strings.HasPrefix(line, "ERROR:"):
		return kindError
	default:
		return kindInfo
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m consoleModel) View() string {
	if m.quitting {
		return "Disconnected.\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	sentStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	okStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	dataStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("14"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("OPTAD CONSOLE"))
	s.WriteString("\n")
	status := m.connInfo
	if m.disconnected {
		status += " (disconnected)"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Enter sends, Esc quits", status)))
	s.WriteString("\n\n")

	logHeight := m.height - 8
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.transcript) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.transcript) == 0 {
		logContent.WriteString(headerStyle.Render("  (no traffic yet; try STATUS or HELP)"))
	} else {
		for i := startIdx; i < len(m.transcript); i++ {
			entry := m.transcript[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			var rendered string
			switch entry.kind {
			case kindSent:
				rendered = sentStyle.Render("> " + entry.text)
			case kindOk:
				rendered = okStyle.Render(entry.text)
			case kindData:
				rendered = dataStyle.Render(entry.text)
			case kindError:
				rendered = errorStyle.Render(entry.text)
			default:
				rendered = infoStyle.Render(entry.text)
			}
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), rendered))
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")

	return s.String()
}
