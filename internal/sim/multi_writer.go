package sim

import (
	"errors"

	"netmon-sim/internal/telemetry"
)

// MultiWriter fan-outs sample rows and log entries to multiple writers.
// Every writer is attempted; errors are joined.
type MultiWriter struct {
	telewriters []TelemetryWriter
	logwriters  []LogWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(tws []TelemetryWriter, lws []LogWriter) *MultiWriter {
	return &MultiWriter{telewriters: tws, logwriters: lws}
}

// Write sends a sample row to all writers.
func (mw *MultiWriter) Write(row telemetry.SampleRow) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, w.Write(row))
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.SampleRow) error {
	var errs []error
	for _, w := range mw.telewriters {
		errs = append(errs, writeRows(w, rows))
	}
	return errors.Join(errs...)
}

// WriteLog sends a log entry to all log writers.
func (mw *MultiWriter) WriteLog(e telemetry.LogEntry) error {
	var errs []error
	for _, w := range mw.logwriters {
		errs = append(errs, w.WriteLog(e))
	}
	return errors.Join(errs...)
}

// WriteLogs sends multiple log entries to all log writers, using batch if supported.
func (mw *MultiWriter) WriteLogs(entries []telemetry.LogEntry) error {
	var errs []error
	for _, w := range mw.logwriters {
		errs = append(errs, writeLogs(w, entries))
	}
	return errors.Join(errs...)
}

// SetAdminStatus forwards the admin indicator to writers that display it.
func (mw *MultiWriter) SetAdminStatus(listening bool) {
	for _, w := range mw.telewriters {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(listening)
		}
	}
}
