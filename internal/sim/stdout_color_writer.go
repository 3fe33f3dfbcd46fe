// ColorStdoutWriter prints human-friendly, colorized telemetry to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"netmon-sim/internal/config"
	"netmon-sim/internal/telemetry"
)

var (
	styleTime    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleDevice  = lipgloss.NewStyle().Bold(true)
	styleOnline  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleOffline = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleBand    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	levelStyles  = map[telemetry.Level]lipgloss.Style{
		telemetry.LevelInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		telemetry.LevelWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		telemetry.LevelAlert:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		telemetry.LevelCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
)

// ColorStdoutWriter prints sample rows and log lines using terminal styles.
type ColorStdoutWriter struct {
	cfg  *config.SimulationConfig
	out  io.Writer
	once sync.Once
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(cfg *config.SimulationConfig) *ColorStdoutWriter {
	return &ColorStdoutWriter{cfg: cfg, out: os.Stdout}
}

func (w *ColorStdoutWriter) printOverview() {
	if w.cfg == nil {
		return
	}

	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Cluster:\t%s\n", w.cfg.ClusterID)
	fmt.Fprintf(tw, "Tick Interval:\t%s\n", w.cfg.TickInterval())
	fmt.Fprintf(tw, "Flip Probability:\t%.2f\n", w.cfg.Flip())
	fmt.Fprintf(tw, "History Capacity:\t%d\n", w.cfg.HistoryCapacity)
	fmt.Fprintf(tw, "Log Capacity:\t%d\n", w.cfg.LogCapacity)
	tw.Flush()

	fmt.Fprintln(w.out, "\nDevices:")
	tw = tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tName\tAddress\n")
	for _, d := range w.cfg.Devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, d.Address)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write prints one sample row.
func (w *ColorStdoutWriter) Write(row telemetry.SampleRow) error {
	w.once.Do(w.printOverview)
	status := styleOnline
	if row.Status == telemetry.StatusOffline {
		status = styleOffline
	}
	_, err := fmt.Fprintf(w.out, "%s %s %s (%s) %s %s\n",
		styleTime.Render("["+row.Timestamp.Format(time.RFC3339)+"]"),
		styleDevice.Render(row.DeviceID),
		row.Name, row.Address,
		status.Render(string(row.Status)),
		styleBand.Render(fmt.Sprintf("%.1f Mbps", row.Bandwidth)),
	)
	return err
}

// WriteBatch prints multiple sample rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.SampleRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteLog prints a log entry with its level highlighted.
func (w *ColorStdoutWriter) WriteLog(e telemetry.LogEntry) error {
	w.once.Do(w.printOverview)
	st, ok := levelStyles[e.Level]
	if !ok {
		st = lipgloss.NewStyle()
	}
	_, err := fmt.Fprintf(w.out, "%s %s %s\n",
		styleTime.Render("["+e.Timestamp.Format(time.RFC3339)+"]"),
		st.Render(strings.ToUpper(string(e.Level))),
		e.Message,
	)
	return err
}
