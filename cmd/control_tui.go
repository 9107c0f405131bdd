// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Artem Korobko

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/artemkorobko/an26sim/pkg/control"
	"github.com/artemkorobko/an26sim/pkg/generator"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	pingIntervalSeconds = 5 // Send ping requests every N seconds
	controlPingVersion  = 1
)

// Focus states
const (
	focusParamList = iota
	focusValue
	focusPeriod
	focusStep
	focusBounce
	focusFPS
	focusButtons
	focusCount
)

// Buttons, left to right
const (
	buttonEnable = iota
	buttonDisable
	buttonSet
	buttonProducer
	buttonLED
	buttonCount
)

// Input fields, in focus order starting at focusValue
const (
	fieldValue = iota
	fieldPeriod
	fieldStep
	fieldBounce
	fieldFPS
)

var inputFields = []struct {
	label       string
	placeholder string
	limit       int
}{
	{"Value", "0", 5},
	{"Period", "1", 3},
	{"Step", "0", 5},
	{"Bounce", "0", 3},
	{"FPS", "25", 3},
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// paramSlot is what the console knows about one emulator parameter
type paramSlot struct {
	index     int
	value     uint16
	known     bool
	generator *generator.Config // set from this console, nil when manual
	updated   time.Time
}

// Implement list.Item interface
func (s paramSlot) Title() string { return fmt.Sprintf("Param %2d", s.index) }
func (s paramSlot) Description() string {
	value := "?"
	if s.known {
		value = fmt.Sprintf("%d", s.value)
	}
	if s.generator != nil {
		return value + " (generator)"
	}
	return value
}
func (s paramSlot) FilterValue() string { return strconv.Itoa(s.index) }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string
	version  string

	// Parameters
	slots     [control.MaxParams]paramSlot
	paramList list.Model

	// Control
	inputs          []textinput.Model
	focusedField    int
	selectedButton  int
	producerRunning bool
	producerFPS     uint8
	ledOn           bool

	// Monitoring
	stats         *control.Statistics
	anomalies     uint64
	eventLog      []eventLogEntry
	maxLogEntries int

	// Ping state
	lastPingTime time.Time
	pingPayload  uint8
	pingPending  bool
	roundTrip    time.Duration

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlDataMsg struct {
	at        time.Time
	packet    control.Response
	anomalies []control.ValidationError
}

type controlBatchMsg struct {
	messages []controlDataMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

type reconnectFailedMsg struct {
	err     error
	retryIn time.Duration
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	inputs := make([]textinput.Model, len(inputFields))
	for i, f := range inputFields {
		ti := textinput.New()
		ti.Placeholder = f.placeholder
		ti.CharLimit = f.limit
		ti.Width = 8
		inputs[i] = ti
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	paramList := list.New([]list.Item{}, delegate, 30, 10)
	paramList.Title = "Parameters"
	paramList.SetShowStatusBar(false)
	paramList.SetShowHelp(false)
	paramList.SetFilteringEnabled(false)

	m := controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		version:       "?",
		paramList:     paramList,
		inputs:        inputs,
		focusedField:  focusParamList,
		stats:         control.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		producerFPS:   25,
		width:         80,
		height:        24,
	}
	for i := range m.slots {
		m.slots[i].index = i
	}
	m.updateParamList()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		if !m.connectionLost {
			m.pollParams()
			if time.Since(m.lastPingTime) >= pingIntervalSeconds*time.Second {
				m.sendPing(time.Time(msg))
			}
		}
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, data := range msg.messages {
			m.processControlData(data)
		}
		m.updateParamList()

	case connectionLostMsg:
		m.connectionLost = true
		m.pingPending = false
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectFailedMsg:
		m.addLogEntry(fmt.Sprintf("Reconnect failed (retry in %v): %v", msg.retryIn, msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusParamList {
		m.paramList, cmd = m.paramList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	inInput := m.focusedField >= focusValue && m.focusedField <= focusFPS

	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if !inInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		if m.focusedField == focusButtons {
			m.pressButton(m.selectedButton)
			return m, nil
		}
		if inInput {
			return m.cycleFocus(1), nil
		}

	case "left", "h":
		if m.focusedField == focusButtons {
			m.selectedButton = (m.selectedButton + buttonCount - 1) % buttonCount
			return m, nil
		}

	case "right", "l":
		if m.focusedField == focusButtons {
			m.selectedButton = (m.selectedButton + 1) % buttonCount
			return m, nil
		}

	case "up", "k", "down", "j":
		if m.focusedField == focusParamList {
			var cmd tea.Cmd
			m.paramList, cmd = m.paramList.Update(msg)
			return m, cmd
		}
	}

	// Pass through to focused input
	if inInput {
		var cmd tea.Cmd
		i := m.focusedField - focusValue
		m.inputs[i], cmd = m.inputs[i].Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	// For now, pass mouse events to the list
	m.paramList, _ = m.paramList.Update(msg)

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	m.setFocus((m.focusedField + delta + focusCount) % focusCount)
	return m
}

func (m *controlModel) setFocus(field int) {
	m.focusedField = field
	for i := range m.inputs {
		if i == field-focusValue {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("AN26SIM CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch ←/→=buttons", connStatus)))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf(" %s %s", statsLabelStyle.Render("Firmware:"), statsValueStyle.Render(m.version)))
	if m.roundTrip > 0 {
		s.WriteString(fmt.Sprintf("  %s %s", statsLabelStyle.Render("Round trip:"),
			statsValueStyle.Render(m.roundTrip.Round(time.Microsecond).String())))
	}
	s.WriteString("\n\n")

	// Layout: left panel (parameters) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusParamList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	paramPanel := listStyle.Render(m.paramList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, paramPanel, " ", controlPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	slot := m.selectedSlot()
	if slot == nil {
		s.WriteString(headerStyle.Render("No parameter selected"))
		return s.String()
	}

	// Selected parameter info
	value := "unknown"
	if slot.known {
		value = fmt.Sprintf("%d (0x%04X), read %s ago", slot.value, slot.value,
			time.Since(slot.updated).Round(time.Second))
	}
	s.WriteString(fmt.Sprintf("%s Param %d\n", statsLabelStyle.Render("Selected:"), slot.index))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Value:"), statsValueStyle.Render(value)))
	if slot.generator != nil {
		g := slot.generator
		s.WriteString(fmt.Sprintf("%s value=%d period=%d step=%d bounce=%d\n",
			statsLabelStyle.Render("Generator:"), g.Value, g.Period, g.Step, g.Bounce))
	} else {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Generator:"), headerStyle.Render("none")))
	}
	producer := "stopped"
	if m.producerRunning {
		producer = fmt.Sprintf("running at %d fps", m.producerFPS)
	}
	s.WriteString(fmt.Sprintf("%s %s\n\n", statsLabelStyle.Render("Producer:"), statsValueStyle.Render(producer)))

	// Input fields
	for i, f := range inputFields {
		s.WriteString(statsLabelStyle.Render(fmt.Sprintf("%-7s ", f.label+":")))
		if m.focusedField == focusValue+i {
			s.WriteString(m.inputs[i].View())
		} else {
			// Show as plain text when not focused
			s.WriteString(fmt.Sprintf("[%s]", m.inputValue(i)))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Buttons
	labels := [buttonCount]string{
		buttonEnable:   "Enable Generator",
		buttonDisable:  "Disable Generator",
		buttonSet:      "Set Value",
		buttonProducer: "Start Producer",
		buttonLED:      "LED On",
	}
	if m.producerRunning {
		labels[buttonProducer] = "Stop Producer"
	}
	if m.ledOn {
		labels[buttonLED] = "LED Off"
	}
	buttons := make([]string, 0, buttonCount)
	for i, label := range labels {
		text := "[ " + label + " ]"
		if m.focusedField == focusButtons && m.selectedButton == i {
			buttons = append(buttons, focusedButtonStyle.Render(text))
		} else {
			buttons = append(buttons, buttonStyle.Render(text))
		}
	}
	s.WriteString(strings.Join(buttons[:buttonProducer], " "))
	s.WriteString("\n")
	s.WriteString(strings.Join(buttons[buttonProducer:], " "))

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	c := m.stats.Snapshot()

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Requests)),
		statsLabelStyle.Render("Responses:"), statsValueStyle.Render(fmt.Sprintf("%d", c.Responses)),
		statsLabelStyle.Render("Device Errors:"), func() string {
			if n := c.ByOpcode[control.OpcodeName(control.Error{})]; n > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", n))
			}
			return statsValueStyle.Render("0")
		}(),
		statsLabelStyle.Render("Anomalies:"), func() string {
			if n := m.anomalies + c.Unknown; n > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", n))
			}
			return statsValueStyle.Render("0")
		}(),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	// Calculate available height for log
	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processControlData(msg controlDataMsg) {
	m.stats.Response(msg.packet)

	name := control.OpcodeName(msg.packet)
	for _, a := range msg.anomalies {
		m.anomalies++
		m.addLogEntry(fmt.Sprintf("%s: %s", name, a.Message), true)
	}

	switch p := msg.packet.(type) {
	case control.Version:
		if v := p.String(); v != m.version {
			m.version = v
			m.addLogEntry(fmt.Sprintf("Firmware version %s", v), false)
		}

	case control.Pong:
		if m.pingPending && p == control.NewPong(control.NewPing(m.pingPayload, controlPingVersion)) {
			m.pingPending = false
			m.roundTrip = msg.at.Sub(m.lastPingTime)
		} else {
			m.addLogEntry(fmt.Sprintf("Unexpected %s", control.FormatPacket(p)), true)
		}

	case control.Param:
		if int(p.Index) < len(m.slots) {
			slot := &m.slots[p.Index]
			slot.value = p.Value
			slot.known = true
			slot.updated = msg.at
		}

	case control.Error:
		m.addLogEntry(control.FormatPacket(p), true)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// sendRequest writes a request and logs the outcome. An empty description
// logs failures only.
func (m *controlModel) sendRequest(req control.Request, description string) bool {
	if m.connectionLost || m.connMgr == nil {
		m.addLogEntry(fmt.Sprintf("Cannot send %s: connection lost", control.OpcodeName(req)), true)
		return false
	}
	if err := m.connMgr.send(req); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", control.OpcodeName(req), err), true)
		return false
	}
	m.stats.Request(req)
	if description != "" {
		m.addLogEntry(description, false)
	}
	return true
}

// pollParams asks for every parameter value. Polling stops at the first
// failed write.
func (m *controlModel) pollParams() {
	for i := range m.slots {
		if !m.sendRequest(control.NewGetParam(uint8(i)), "") {
			return
		}
	}
}

func (m *controlModel) sendPing(now time.Time) {
	if m.pingPending {
		m.addLogEntry(fmt.Sprintf("No answer to ping payload=%d", m.pingPayload), true)
	}
	m.pingPayload++
	m.lastPingTime = now
	m.pingPending = m.sendRequest(control.NewPing(m.pingPayload, controlPingVersion), "")
}

func (m *controlModel) pressButton(button int) {
	slot := m.selectedSlot()
	if slot == nil {
		return
	}
	index := uint8(slot.index)

	switch button {
	case buttonEnable:
		gc, err := m.generatorInputs()
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		req := control.NewEnableGenerator(index, gc.Period, gc.Value, gc.Step, gc.Bounce)
		if m.sendRequest(req, fmt.Sprintf("Generator enabled on param %d", index)) {
			slot.generator = &gc
		}

	case buttonDisable:
		if m.sendRequest(control.NewDisableGenerator(index), fmt.Sprintf("Generator disabled on param %d", index)) {
			slot.generator = nil
		}

	case buttonSet:
		value, err := m.parseInput(fieldValue, 16)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		m.sendRequest(control.NewSetParam(index, uint16(value)), fmt.Sprintf("Param %d set to %d", index, value))

	case buttonProducer:
		if m.producerRunning {
			if m.sendRequest(control.StopGenerators{}, "Producer stopped") {
				m.producerRunning = false
			}
			return
		}
		fps, err := m.parseInput(fieldFPS, 8)
		if err != nil || fps == 0 {
			m.addLogEntry(fmt.Sprintf("FPS must be between 1 and 255, got %q", m.inputValue(fieldFPS)), true)
			return
		}
		if m.sendRequest(control.NewStartGenerators(uint8(fps)), fmt.Sprintf("Producer started at %d fps", fps)) {
			m.producerRunning = true
			m.producerFPS = uint8(fps)
		}

	case buttonLED:
		on := !m.ledOn
		state := "off"
		if on {
			state = "on"
		}
		if m.sendRequest(control.NewLed(on), "LED "+state) {
			m.ledOn = on
		}
	}
}

// generatorInputs builds a generator config from the input fields.
func (m *controlModel) generatorInputs() (generator.Config, error) {
	var gc generator.Config
	value, err := m.parseInput(fieldValue, 16)
	if err != nil {
		return gc, err
	}
	period, err := m.parseInput(fieldPeriod, 8)
	if err != nil {
		return gc, err
	}
	step, err := m.parseInput(fieldStep, 16)
	if err != nil {
		return gc, err
	}
	bounce, err := m.parseInput(fieldBounce, 8)
	if err != nil {
		return gc, err
	}
	gc.Value = uint16(value)
	gc.Period = uint8(period)
	gc.Step = uint16(step)
	gc.Bounce = uint8(bounce)
	return gc, nil
}

// parseInput parses input i as an unsigned integer of the given bit size.
func (m *controlModel) parseInput(i, bits int) (uint64, error) {
	s := m.inputValue(i)
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q (0-%d)", strings.ToLower(inputFields[i].label), s, uint64(1)<<bits-1)
	}
	return n, nil
}

// inputValue returns the typed value or the placeholder.
func (m *controlModel) inputValue(i int) string {
	if v := strings.TrimSpace(m.inputs[i].Value()); v != "" {
		return v
	}
	return m.inputs[i].Placeholder
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) selectedSlot() *paramSlot {
	idx := m.paramList.Index()
	if idx < 0 || idx >= len(m.slots) {
		return nil
	}
	return &m.slots[idx]
}

func (m *controlModel) updateParamList() {
	items := make([]list.Item, len(m.slots))
	for i, s := range m.slots {
		items[i] = s
	}
	m.paramList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 2
	if listHeight < 5 {
		listHeight = 5
	}
	m.paramList.SetSize(28, listHeight)
}
