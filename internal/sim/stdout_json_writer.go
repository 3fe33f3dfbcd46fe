package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"netmon-sim/internal/config"
	"netmon-sim/internal/telemetry"
)

// JSONStdoutWriter prints sample rows and log entries as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// NewStdoutWriters picks the colorized writer for terminals and JSON otherwise.
func NewStdoutWriters(cfg *config.SimulationConfig, color bool) (TelemetryWriter, LogWriter) {
	if color {
		w := NewColorStdoutWriter(cfg)
		return w, w
	}
	w := NewJSONStdoutWriter()
	return w, w
}

// Write outputs a sample row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.SampleRow) error {
	return w.emit(row)
}

// WriteBatch outputs multiple sample rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.SampleRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteLog outputs a log entry in JSON format.
func (w *JSONStdoutWriter) WriteLog(e telemetry.LogEntry) error {
	return w.emit(e)
}

func (w *JSONStdoutWriter) emit(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
