// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/artemkorobko/an26sim/pkg/control"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// Monitor TUI model
type monitorModel struct {
	connection    string
	showAll       bool
	stats         *frameStats
	eventLog      []eventLogEntry
	maxLogEntries int
	lastFrame     time.Time
	closed        bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type packetMsg struct {
	at        time.Time
	packet    control.Packet
	anomalies []control.ValidationError
}
type readErrMsg struct {
	err error
}
type linkClosedMsg struct{}

func initialMonitorModel(connection string, showAll bool) monitorModel {
	now := time.Now()
	return monitorModel{
		connection:    connection,
		showAll:       showAll,
		stats:         newFrameStats(now),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.calculateRates(time.Time(msg))
		return m, tickCmd()

	case packetMsg:
		m.stats.update(msg.packet, msg.anomalies)
		if _, ok := msg.packet.(control.Params); ok {
			m.lastFrame = msg.at
		}

		name := control.OpcodeName(msg.packet)
		for _, a := range msg.anomalies {
			m.addLogEntry(msg.at, fmt.Sprintf("%s: %s", name, a.Message), true)
		}
		switch msg.packet.(type) {
		case control.Error, control.Unknown:
			if len(msg.anomalies) == 0 {
				m.addLogEntry(msg.at, control.FormatPacket(msg.packet), true)
			}
		case control.Params:
			if m.showAll && len(msg.anomalies) == 0 {
				m.addLogEntry(msg.at, control.FormatPacket(msg.packet), false)
			}
		default:
			if len(msg.anomalies) == 0 {
				m.addLogEntry(msg.at, control.FormatPacket(msg.packet), false)
			}
		}

	case readErrMsg:
		m.addLogEntry(time.Now(), fmt.Sprintf("READ ERROR: %v", msg.err), true)

	case linkClosedMsg:
		m.closed = true
		m.addLogEntry(time.Now(), "Connection closed", true)
	}

	return m, nil
}

func (m *monitorModel) addLogEntry(at time.Time, message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: at,
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("AN26SIM - FRAME MONITOR"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Mode: %s | Press 'q' to quit",
		m.connection, mode)))
	s.WriteString("\n\n")

	// Link status
	switch {
	case m.closed:
		s.WriteString(errorStyle.Render("✗ Connection closed"))
	case m.lastFrame.IsZero():
		s.WriteString(warningStyle.Render("⏳ Waiting for frames..."))
	case time.Since(m.lastFrame) > 2*time.Second:
		s.WriteString(warningStyle.Render(fmt.Sprintf("⏳ No frames for %s", formatUptime(time.Since(m.lastFrame)))))
	default:
		s.WriteString(statsValueStyle.Render("✓ Receiving frames"))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  (uptime %s)", formatUptime(time.Since(m.stats.start)))))
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Packets:"), statsValueStyle.Render(fmt.Sprintf("%d", st.packets)),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.frames)),
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.frameRate)),
	))

	problems := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return statsValueStyle.Render("0")
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Device Errors:"), problems(st.errors),
		statsLabelStyle.Render("Unknown:"), problems(st.unknown),
		statsLabelStyle.Render("Anomalies:"), problems(st.anomalies),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Parameter table (only shown once a frame arrived)
	if st.frames > 0 {
		s.WriteString(statsLabelStyle.Render("Parameters:"))
		s.WriteString("\n")

		table := strings.Builder{}
		table.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %7s %6s %7s %7s %8s", "#", "value", "hex", "min", "max", "changes")))
		for i := 0; i < control.MaxParams; i++ {
			table.WriteString("\n")
			if !st.seen[i] {
				table.WriteString(headerStyle.Render(fmt.Sprintf("%-4d %7s", i, "-")))
				continue
			}
			line := fmt.Sprintf("%-4d %7d %6s %7d %7d %8d",
				i, st.value(i), fmt.Sprintf("%04X", st.value(i)), st.min[i], st.max[i], st.changes[i])
			if i >= len(st.last) {
				table.WriteString(headerStyle.Render(line))
			} else {
				table.WriteString(statsValueStyle.Render(line))
			}
		}

		s.WriteString(boxStyle.Render(table.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 28 // Reserve space for header, stats and table
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
