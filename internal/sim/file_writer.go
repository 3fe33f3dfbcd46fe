package sim

import (
	"encoding/json"
	"os"

	"netmon-sim/internal/telemetry"
)

// FileWriter writes sample rows and log entries to JSONL files.
type FileWriter struct {
	sampleFile *os.File
	logFile    *os.File
	sampleEnc  *json.Encoder
	logEnc     *json.Encoder
}

// NewFileWriter creates a FileWriter. logPath may be empty to skip the log file.
func NewFileWriter(samplePath, logPath string) (*FileWriter, error) {
	sf, err := os.Create(samplePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{sampleFile: sf, sampleEnc: json.NewEncoder(sf)}
	if logPath != "" {
		lf, err := os.Create(logPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.logFile = lf
		fw.logEnc = json.NewEncoder(lf)
	}
	return fw, nil
}

// Write logs a single sample row.
func (f *FileWriter) Write(row telemetry.SampleRow) error {
	return f.sampleEnc.Encode(row)
}

// WriteBatch logs multiple sample rows.
func (f *FileWriter) WriteBatch(rows []telemetry.SampleRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteLog appends a log entry, if enabled.
func (f *FileWriter) WriteLog(e telemetry.LogEntry) error {
	if f.logEnc == nil {
		return nil
	}
	return f.logEnc.Encode(e)
}

// WriteLogs appends multiple log entries.
func (f *FileWriter) WriteLogs(entries []telemetry.LogEntry) error {
	for _, e := range entries {
		if err := f.WriteLog(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.sampleFile != nil {
		if e := f.sampleFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.logFile != nil {
		if e := f.logFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
