package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"heartlung/models"
)

// StateSource yields point-in-time copies of the monitoring state
type StateSource interface {
	Snapshot() models.Snapshot
}

// SuctionToggler executes the operator's suction command
type SuctionToggler interface {
	ToggleSuction() error
}

// VitalsJudge flags vitals outside their safe bands
type VitalsJudge interface {
	OutOfRange(s models.TelemetrySample) map[models.AnomalyType]bool
}

const (
	refreshInterval = 100 * time.Millisecond
	sparkWidth      = 30
	gaugeHeight     = 10
	eventLines      = 8
)

type tickMsg time.Time
type toggleDoneMsg struct{ err error }

// Model is the terminal dashboard. It only ever reads snapshots.
type Model struct {
	source  StateSource
	toggler SuctionToggler
	judge   VitalsJudge
	cal     models.CalibrationConfig
	timeout time.Duration

	snap     models.Snapshot
	toggling bool
	lastErr  error

	width, height int
}

func New(source StateSource, toggler SuctionToggler, judge VitalsJudge, cal models.CalibrationConfig, heartbeatTimeout time.Duration) Model {
	return Model{
		source:  source,
		toggler: toggler,
		judge:   judge,
		cal:     cal,
		timeout: heartbeatTimeout,
		snap:    source.Snapshot(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) toggle() tea.Cmd {
	toggler := m.toggler
	return func() tea.Msg {
		return toggleDoneMsg{err: toggler.ToggleSuction()}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		m.snap = m.source.Snapshot()
		return m, tick()

	case toggleDoneMsg:
		m.toggling = false
		m.lastErr = msg.err
		m.snap = m.source.Snapshot()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "s", " ":
			// one command in flight at a time
			if m.toggling || m.toggler == nil {
				return m, nil
			}
			m.toggling = true
			return m, m.toggle()
		}
	}
	return m, nil
}

func (m Model) View() string {
	snap := m.snap

	top := m.renderHeader(snap)
	params := m.renderParameters(snap)
	level := m.renderLevel(snap)
	trends := m.renderTrends(snap)
	events := m.renderEvents(snap)

	middle := lipgloss.JoinHorizontal(lipgloss.Top, params, " ", level)
	body := lipgloss.JoinVertical(lipgloss.Left, top, middle, trends, events, m.renderFooter(snap))
	return body
}

func (m Model) renderHeader(snap models.Snapshot) string {
	title := titleStyle.Render("Heart-Lung Machine Monitor")

	var link string
	switch snap.Telemetry.LinkStatus(snap.TakenAt, m.timeout) {
	case models.LinkLive:
		link = goodStyle.Render("● Connected")
	case models.LinkStale:
		link = warnStyle.Render("● No Data")
	default:
		link = dangerStyle.Render("● Disconnected")
	}

	badge := badgeNormal.Render("NORMAL")
	if snap.Telemetry.AlarmActive || snap.Level.AlertActive {
		badge = badgeAlarm.Render("ALARM")
	}

	clock := headerStyle.Render(snap.TakenAt.Format("15:04:05"))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", link, "  ", badge, "  ", clock)
}

type paramRow struct {
	label string
	value string
	bad   bool
}

func (m Model) renderParameters(snap models.Snapshot) string {
	t := snap.Telemetry
	flags := map[models.AnomalyType]bool{}
	if m.judge != nil && t.Connected {
		flags = m.judge.OutOfRange(t)
	}

	suction := "OFF"
	if t.SuctionOn {
		suction = "ON"
	}

	rows := []paramRow{
		{"Heart Rate", fmt.Sprintf("%.0f bpm", t.HeartRate), flags[models.HeartRateOutOfRange]},
		{"Pressure", fmt.Sprintf("%.0f mmHg", t.Pressure), flags[models.PressureOutOfRange]},
		{"Bubble Value", fmt.Sprintf("%d", t.BubbleValue), flags[models.BubbleValueLow]},
		{"SPO2 Value", fmt.Sprintf("%d", t.SpO2Value), flags[models.SpO2OutOfRange]},
		{"Temperature", fmt.Sprintf("%.1f °C", t.Temperature), flags[models.TemperatureOutOfRange]},
		{"Liquid Level", fmt.Sprintf("%d px", snap.Level.CurrentLevelY), snap.Level.AlertActive},
		{"Suction", suction, false},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("System Parameters"))
	b.WriteString("\n")
	for _, r := range rows {
		value := goodStyle.Render(r.value)
		if r.bad {
			value = dangerStyle.Render(r.value + " !")
		}
		b.WriteString(fmt.Sprintf("%-14s %s\n", r.label, value))
	}

	b.WriteString("\n")
	action := "[s] Enable Suction Pump"
	if t.SuctionOn {
		action = "[s] Disable Suction Pump"
	}
	if m.toggling {
		action = "sending..."
	}
	b.WriteString(infoStyle.Render(action))

	style := boxStyle
	if t.AlarmActive {
		style = alertBox
	}
	return style.Width(34).Render(b.String())
}

func (m Model) renderLevel(snap models.Snapshot) string {
	r := snap.Level
	height := float64(m.cal.BottleHeight())
	if height <= 0 {
		height = 1
	}

	fraction := float64(r.CurrentLevelY) / height
	gauge := Gauge(fraction, gaugeHeight, m.cal.NormalTopFraction, m.cal.NormalBottomFraction)

	var class string
	switch r.Classification {
	case models.LevelNormal:
		class = goodStyle.Render(string(r.Classification))
	case models.LevelHigh, models.LevelLow:
		class = dangerStyle.Render(string(r.Classification))
	default:
		class = faintStyle.Render(string(r.Classification))
	}

	maintained := faintStyle.Render("settling")
	if r.IsMaintained {
		maintained = goodStyle.Render("stable")
	}

	info := []string{
		titleStyle.Render("Reservoir"),
		class,
		fmt.Sprintf("%d / %d px", r.CurrentLevelY, m.cal.BottleHeight()),
		fmt.Sprintf("high > %d", m.cal.HighThreshold()),
		fmt.Sprintf("low  < %d", m.cal.LowThreshold()),
		maintained,
	}

	content := lipgloss.JoinHorizontal(lipgloss.Top,
		strings.Join(gauge, "\n"), "  ", strings.Join(info, "\n"))

	style := boxStyle
	if r.AlertActive {
		style = alertBox
	}
	return style.Render(content)
}

func (m Model) renderTrends(snap models.Snapshot) string {
	h := snap.History
	line := func(label string, vals []float64, format string) string {
		spark := Spark(vals, sparkWidth)
		if spark == "" {
			spark = faintStyle.Render("-")
		}
		last := "-"
		if len(vals) > 0 {
			last = fmt.Sprintf(format, vals[len(vals)-1])
		}
		return fmt.Sprintf("%-6s %-*s %s", label, sparkWidth, spark, headerStyle.Render(last))
	}

	lines := []string{
		titleStyle.Render("Trends"),
		line("HR", h.HeartRate, "%.0f"),
		line("P", h.Pressure, "%.1f"),
		line("T", h.Temperature, "%.1f"),
		line("Level", h.Level, "%.0f"),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderEvents(snap models.Snapshot) string {
	events := snap.Events
	if len(events) > eventLines {
		events = events[len(events)-eventLines:]
	}

	lines := []string{titleStyle.Render("Event Log")}
	if len(events) == 0 {
		lines = append(lines, faintStyle.Render("no events"))
	}
	for _, e := range events {
		lines = append(lines, severityStyle(e.Severity).Render(e.String()))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderFooter(snap models.Snapshot) string {
	help := "s: toggle suction • q: quit"
	if m.lastErr != nil {
		help += " • " + dangerStyle.Render(m.lastErr.Error())
	}
	return footerStyle.Render(fmt.Sprintf("%s • commands sent: %d", help, snap.Actuation.Transmissions))
}

func severityStyle(s models.Severity) lipgloss.Style {
	switch s {
	case models.SeveritySuccess:
		return goodStyle
	case models.SeverityWarn:
		return warnStyle
	case models.SeverityError, models.SeverityAlarm:
		return dangerStyle
	default:
		return headerStyle
	}
}
