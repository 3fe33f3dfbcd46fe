package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"netmon-sim/internal/config"
	"netmon-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// samplesMsg carries the rows of one snapshot.
type samplesMsg struct{ rows []telemetry.SampleRow }

// logMsg carries a formatted log line for the viewport.
type logMsg struct{ line string }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

const maxTUILogLines = 1000

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleOn     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleOff    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// TUIWriter renders the device fleet and its log using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		// Quitting the TUI stops the whole process unless Close started it.
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(row telemetry.SampleRow) error {
	w.program.Send(samplesMsg{rows: []telemetry.SampleRow{row}})
	return nil
}

// WriteBatch sends a whole snapshot as one update.
func (w *TUIWriter) WriteBatch(rows []telemetry.SampleRow) error {
	cp := make([]telemetry.SampleRow, len(rows))
	copy(cp, rows)
	w.program.Send(samplesMsg{rows: cp})
	return nil
}

// WriteLog implements LogWriter.
func (w *TUIWriter) WriteLog(e telemetry.LogEntry) error {
	st, ok := levelStyles[e.Level]
	if !ok {
		st = lipgloss.NewStyle()
	}
	line := fmt.Sprintf("%s %s %s",
		styleTime.Render("["+e.Timestamp.Format(time.RFC3339)+"]"),
		st.Render(strings.ToUpper(string(e.Level))),
		e.Message)
	w.program.Send(logMsg{line: line})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg        *config.SimulationConfig
	table      table.Model
	vp         viewport.Model
	order      []string
	latest     map[string]telemetry.SampleRow
	lastTS     time.Time
	logs       []string
	admin      bool
	wrap       bool
	autoscroll bool
	height     int
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	cols := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Name", Width: 16},
		{Title: "Address", Width: 16},
		{Title: "Status", Width: 8},
		{Title: "Mbps", Width: 8},
	}
	m := tuiModel{
		cfg:        cfg,
		table:      table.New(table.WithColumns(cols)),
		vp:         viewport.New(0, 0),
		latest:     make(map[string]telemetry.SampleRow),
		autoscroll: true,
	}
	if cfg != nil {
		for _, d := range cfg.Devices {
			m.order = append(m.order, d.ID)
		}
	}
	m.refreshTable()
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	case samplesMsg:
		for _, r := range msg.rows {
			if _, ok := m.latest[r.DeviceID]; !ok && !m.known(r.DeviceID) {
				m.order = append(m.order, r.DeviceID)
			}
			m.latest[r.DeviceID] = r
			if r.Timestamp.After(m.lastTS) {
				m.lastTS = r.Timestamp
			}
		}
		m.refreshTable()
		m.layout()
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxTUILogLines {
			m.logs = m.logs[len(m.logs)-maxTUILogLines:]
		}
		m.refreshViewport()
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func (m tuiModel) known(id string) bool {
	for _, o := range m.order {
		if o == id {
			return true
		}
	}
	return false
}

func (m *tuiModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.order))
	for _, id := range m.order {
		r, ok := m.latest[id]
		if !ok {
			rows = append(rows, table.Row{id, "", "", "-", "-"})
			continue
		}
		rows = append(rows, table.Row{id, r.Name, r.Address, string(r.Status), fmt.Sprintf("%.1f", r.Bandwidth)})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

func (m *tuiModel) layout() {
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.table.View()) + lipgloss.Height(m.renderBottom()) + 3
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			l = wordwrap.String(l, m.vp.Width)
		}
		lines = append(lines, l)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) summary() telemetry.FleetSummary {
	snap := telemetry.Snapshot{Timestamp: m.lastTS}
	for _, id := range m.order {
		if r, ok := m.latest[id]; ok {
			snap.Devices = append(snap.Devices, telemetry.Device{ID: r.DeviceID, Status: r.Status, Bandwidth: r.Bandwidth})
		}
	}
	return snap.Summary()
}

func (m tuiModel) renderHeader() string {
	cluster := ""
	if m.cfg != nil {
		cluster = m.cfg.ClusterID
	}
	s := m.summary()
	return fmt.Sprintf("%s %s  %s %s  total=%.1f Mbps",
		styleHeader.Render("NETMON"), cluster,
		styleOn.Render(fmt.Sprintf("online=%d", s.Online)),
		styleOff.Render(fmt.Sprintf("offline=%d", s.Offline)),
		s.TotalBandwidth)
}

func indicator(on bool) string {
	if on {
		return styleOn.Render("●")
	}
	return styleOff.Render("●")
}

func (m tuiModel) renderBottom() string {
	return fmt.Sprintf("Admin UI %s | Wrap %s | Scroll %s | q quit",
		indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll))
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.renderHeader(),
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}
