// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/ecustat/internal/monitoring"
	"github.com/Thermoquad/ecustat/pkg/condition"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
	"github.com/Thermoquad/ecustat/pkg/redraw"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	alarmStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("9")).
			Padding(0, 2)
)

// stateStyle colours the condition badge
func stateStyle(s condition.State) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch s {
	case condition.Normal:
		return base.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	case condition.Caution:
		return base.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11"))
	case condition.Warning, condition.SyncLoss:
		return base.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
	case condition.Recovery:
		return base.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14"))
	default:
		return base.Foreground(lipgloss.Color("250")).Background(lipgloss.Color("238"))
	}
}

// Messages
type dashTickMsg time.Time
type frameMsg struct {
	frame pipeline.Frame
	stats speeduino.Statistics
}
type logMsg logEntry
type dumpMsg string

// loopDoneMsg tells the TUI the poll loop has returned.
type loopDoneMsg struct{ err error }

// dashboardModel renders frames from the poll loop.
type dashboardModel struct {
	connInfo string
	started  time.Time

	frame    pipeline.Frame
	hasFrame bool
	regions  map[redraw.Regions]string
	stats    speeduino.Statistics

	eventLog      []logEntry
	maxLogEntries int

	progress   progress.Model
	orderInput textinput.Model
	editing    bool

	keys   chan<- byte
	orders chan<- speeduino.FieldOrder

	dump     string
	showHelp bool
	width    int
	height   int
	quitting bool
}

func newDashboardModel(connInfo string, keys chan<- byte, orders chan<- speeduino.FieldOrder) dashboardModel {
	ti := textinput.New()
	ti.Placeholder = speeduino.DefaultFieldOrder.String()
	ti.CharLimit = 48
	ti.Width = 40

	return dashboardModel{
		connInfo:      connInfo,
		started:       time.Now(),
		regions:       make(map[redraw.Regions]string),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		orderInput:    ti,
		keys:          keys,
		orders:        orders,
		width:         80,
		height:        24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return dashTickCmd()
}

func dashTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return dashTickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateOrderInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "d", "r", "s", "c":
			m.sendKey(msg.String()[0])
		case "o":
			m.editing = true
			m.orderInput.SetValue("")
			return m, m.orderInput.Focus()
		case "?":
			m.showHelp = !m.showHelp
		case "esc":
			m.dump = ""
			m.showHelp = false
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.regions = make(map[redraw.Regions]string)
		if m.hasFrame {
			m.renderRegions(redraw.AllRegions)
		}

	case dashTickMsg:
		m.stats.CalculateRates()
		return m, dashTickCmd()

	case frameMsg:
		m.frame = msg.frame
		m.hasFrame = true
		m.stats = msg.stats
		// The terminal repaints the whole view anyway; the dirty bits only
		// matter for the blink overlay here.
		m.renderRegions(redraw.AllRegions)

	case logMsg:
		m.addLogEntry(logEntry(msg))

	case dumpMsg:
		m.dump = string(msg)

	case loopDoneMsg:
		if msg.err != nil {
			m.addLogEntry(logEntry{timestamp: time.Now(), message: msg.err.Error(), isError: true})
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *dashboardModel) updateOrderInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		m.orderInput.Blur()
		order, err := speeduino.ParseFieldOrder(strings.Split(m.orderInput.Value(), ","))
		if err != nil {
			m.addLogEntry(logEntry{timestamp: time.Now(), message: err.Error(), isError: true})
			return m, nil
		}
		select {
		case m.orders <- order:
		default:
		}
		return m, nil
	case "esc":
		m.editing = false
		m.orderInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.orderInput, cmd = m.orderInput.Update(msg)
	return m, cmd
}

// sendKey forwards a console command to the poll loop without blocking the UI
func (m *dashboardModel) sendKey(k byte) {
	select {
	case m.keys <- k:
	default:
	}
}

func (m *dashboardModel) addLogEntry(entry logEntry) {
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// renderRegions refreshes the cached text of the given regions
func (m *dashboardModel) renderRegions(dirty redraw.Regions) {
	dirty.Each(func(r redraw.Regions) {
		m.regions[r] = m.renderRegion(r)
	})
}

func (m *dashboardModel) renderRegion(r redraw.Regions) string {
	f := &m.frame
	s := &f.Snapshot

	switch r {
	case redraw.Header:
		line := stateStyle(f.State).Render(f.State.String())
		line += headerStyle.Render(fmt.Sprintf("  for %s", f.Elapsed.Truncate(time.Second)))
		if f.State == condition.Recovery {
			line += "  " + m.progress.ViewAs(float64(f.Progress)/100)
		}
		return line

	case redraw.PrimaryField:
		if !s.IsDataValid {
			return labelStyle.Render("RPM ") + headerStyle.Render("-----")
		}
		style := valueStyle
		if f.Overspeed {
			style = errorStyle
		}
		return labelStyle.Render("RPM ") + style.Render(fmt.Sprintf("%5d", s.RPM))

	case redraw.CoreGroup:
		if !s.IsDataValid {
			return headerStyle.Render("CLT ---   AFR -----   BAT ----")
		}
		return fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("CLT"), valueStyle.Render(fmt.Sprintf("%d°C", s.CoolantC)),
			labelStyle.Render("AFR"), valueStyle.Render(fmt.Sprintf("%.2f", s.AFR())),
			labelStyle.Render("BAT"), valueStyle.Render(fmt.Sprintf("%.1fV", s.BatteryVolts())),
		)

	case redraw.SecondaryGroup:
		if !s.IsDataValid {
			return headerStyle.Render("MAP ---   TPS ---   IAT ---")
		}
		return fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("MAP"), valueStyle.Render(fmt.Sprintf("%dkPa", s.MAPkPa)),
			labelStyle.Render("TPS"), valueStyle.Render(fmt.Sprintf("%d%%", s.ThrottlePct)),
			labelStyle.Render("IAT"), valueStyle.Render(fmt.Sprintf("%d°C", s.IntakeC)),
		)

	case redraw.Footer:
		sync := warningStyle.Render("no")
		if s.IsSynced {
			sync = valueStyle.Render("yes")
		}
		return headerStyle.Render(fmt.Sprintf("sync=%s losses=%d frames=%d errors=%d",
			sync, s.SyncLossCount, f.Counters.FramesReceived, f.Counters.FramesErrored))

	case redraw.FullScreenOverride:
		if f.State == condition.SyncLoss && f.Phase.Visible() {
			return alarmStyle.Width(m.width - 4).Render("SYNC LOSS")
		}
		return ""
	}
	return ""
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("ECUSTAT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Session: %s | Press '?' for keys, 'q' to quit",
		m.connInfo, formatUptime(uint64(time.Since(m.started).Milliseconds())))))
	s.WriteString("\n\n")

	if !m.hasFrame {
		s.WriteString(warningStyle.Render("⏳ Waiting for data..."))
		s.WriteString("\n\n")
	} else if override := m.regions[redraw.FullScreenOverride]; override != "" {
		// The sync-loss overlay replaces the gauges in its visible half
		s.WriteString(override)
		s.WriteString("\n\n")
	} else {
		gauges := strings.Join([]string{
			m.regions[redraw.Header],
			m.regions[redraw.PrimaryField],
			m.regions[redraw.CoreGroup],
			m.regions[redraw.SecondaryGroup],
			m.regions[redraw.Footer],
		}, "\n")
		s.WriteString(boxStyle.Render(gauges))
		s.WriteString("\n\n")
	}

	// Statistics
	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, m.stats.ValidPercent())),
		labelStyle.Render("Rejected:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.Rejected)),
	)
	statsContent += fmt.Sprintf("%s A=%d B=%d kv=%d csv=%d   %s %s",
		labelStyle.Render("Formats:"), m.stats.BinaryA, m.stats.BinaryB, m.stats.KeyValueLines, m.stats.CSVLines,
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)),
	)
	s.WriteString(boxStyle.Render(statsContent))
	s.WriteString("\n\n")

	if m.editing {
		s.WriteString(labelStyle.Render("CSV order: "))
		s.WriteString(m.orderInput.View())
		s.WriteString("\n\n")
	}

	if m.showHelp {
		s.WriteString(boxStyle.Render(consoleHelp + "\no=edit CSV order  esc=close"))
		s.WriteString("\n\n")
	}

	if m.dump != "" {
		s.WriteString(boxStyle.Render(strings.TrimRight(m.dump, "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18
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
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	return s.String()
}

// runDashboard runs the poll loop in the background and the TUI in front.
// The loop only hands the TUI value copies.
func runDashboard(s *monitorSession, cm *connectionManager, connInfo string) error {
	keys := make(chan byte, 8)
	orders := make(chan speeduino.FieldOrder, 1)
	stop := make(chan struct{})

	p := tea.NewProgram(newDashboardModel(connInfo, keys, orders), tea.WithAltScreen())

	s.notify = func(msg string, isError bool) {
		p.Send(logMsg{timestamp: time.Now(), message: msg, isError: isError})
	}
	monitoring.SetLogger(func(format string, v ...interface{}) {
		p.Send(logMsg{timestamp: time.Now(), message: fmt.Sprintf(format, v...)})
	})
	defer monitoring.SetLogger(log.Printf)

	loopDone := make(chan error, 1)
	go func() {
		err := s.run(cm, loopIO{
			keys:   keys,
			orders: orders,
			stop:   stop,
			render: func(f pipeline.Frame) {
				p.Send(frameMsg{frame: f, stats: *s.stats})
			},
			print: func(msg string) {
				if strings.Contains(msg, "\n") {
					p.Send(dumpMsg(msg))
					return
				}
				p.Send(logMsg{timestamp: time.Now(), message: msg})
			},
			reconnect: monitorReconnect,
		})
		loopDone <- err
		// No-op once the TUI has already exited.
		p.Send(loopDoneMsg{err: err})
	}()

	_, err := p.Run()
	close(stop)
	loopErr := <-loopDone
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return loopErr
}

// formatUptime formats milliseconds as a human-friendly duration
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
