package sim

import "netmon-sim/internal/telemetry"

// TelemetryWriter is an interface to support different output writers.
type TelemetryWriter interface {
	Write(telemetry.SampleRow) error
}

// LogWriter handles log entries derived from transitions.
type LogWriter interface {
	WriteLog(telemetry.LogEntry) error
}

// Optional: Writers can also support batch mode
type batchWriter interface {
	WriteBatch([]telemetry.SampleRow) error
}

// Optional: Log writers may support batch mode
type batchLogWriter interface {
	WriteLogs([]telemetry.LogEntry) error
}

// AdminStatusWriter allows writers to receive admin UI status updates.
type AdminStatusWriter interface {
	SetAdminStatus(listening bool)
}

func writeRows(w TelemetryWriter, rows []telemetry.SampleRow) error {
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func writeLogs(w LogWriter, entries []telemetry.LogEntry) error {
	if bw, ok := w.(batchLogWriter); ok {
		return bw.WriteLogs(entries)
	}
	for _, e := range entries {
		if err := w.WriteLog(e); err != nil {
			return err
		}
	}
	return nil
}
