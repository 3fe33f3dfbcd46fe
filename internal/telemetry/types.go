// Device state, events and export rows
package telemetry

import (
	"fmt"
	"os"
	"time"
)

// Status is the observed reachability of a device.
type Status string

// Device status constants.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOnline, StatusOffline:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Toggle returns the opposite status.
func (s Status) Toggle() Status {
	if s == StatusOnline {
		return StatusOffline
	}
	return StatusOnline
}

// MetaCriticality is the device meta key that selects the offline log level.
const MetaCriticality = "criticality"

// Device holds identity and current observed state of a monitored device.
type Device struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Address   string            `json:"ip"`
	Meta      map[string]string `json:"meta,omitempty"`
	Status    Status            `json:"status"`
	Bandwidth float64           `json:"bandwidth"`
}

// Clone returns a deep copy of d.
func (d Device) Clone() Device {
	c := d
	if d.Meta != nil {
		c.Meta = make(map[string]string, len(d.Meta))
		for k, v := range d.Meta {
			c.Meta[k] = v
		}
	}
	return c
}

// TransitionEvent is emitted when a device status flips between ticks.
type TransitionEvent struct {
	DeviceID  string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"ip"`
	From      Status    `json:"oldStatus"`
	To        Status    `json:"newStatus"`
	Timestamp time.Time `json:"ts"`
}

// Snapshot is the full fleet state after one tick. Tick counts from 1; zero
// means the snapshot did not come from a tick.
type Snapshot struct {
	Devices   []Device  `json:"devices"`
	Timestamp time.Time `json:"ts"`
	Tick      uint64    `json:"tick,omitempty"`
}

// Clone returns a snapshot that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	devices := make([]Device, len(s.Devices))
	for i, d := range s.Devices {
		devices[i] = d.Clone()
	}
	return Snapshot{Devices: devices, Timestamp: s.Timestamp, Tick: s.Tick}
}

// FleetSummary aggregates a snapshot into counts.
type FleetSummary struct {
	Total          int       `json:"total"`
	Online         int       `json:"online"`
	Offline        int       `json:"offline"`
	TotalBandwidth float64   `json:"total_bandwidth"`
	Timestamp      time.Time `json:"ts"`
}

// Summary counts online and offline devices in the snapshot.
func (s Snapshot) Summary() FleetSummary {
	sum := FleetSummary{Total: len(s.Devices), Timestamp: s.Timestamp}
	for _, d := range s.Devices {
		if d.Status == StatusOnline {
			sum.Online++
		} else {
			sum.Offline++
		}
		sum.TotalBandwidth += d.Bandwidth
	}
	sum.TotalBandwidth = round1(sum.TotalBandwidth)
	return sum
}

// HistorySample is one retained observation of one device.
type HistorySample struct {
	Timestamp time.Time `json:"ts"`
	Status    Status    `json:"status"`
	Bandwidth float64   `json:"bandwidth"`
}

// Level is the severity of a log entry.
type Level string

// Log levels, lowest first.
const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelAlert    Level = "alert"
	LevelCritical Level = "critical"
)

// LogEntry is a human-readable record, usually derived from a transition.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	DeviceID  string    `json:"deviceId,omitempty"`
}

// SampleRow is one exported device sample.
type SampleRow struct {
	ClusterID string    `json:"cluster_id"` // TAG
	DeviceID  string    `json:"device_id"`  // TAG
	Name      string    `json:"name"`       // FIELD
	Address   string    `json:"ip"`         // FIELD
	Status    Status    `json:"status"`     // FIELD
	Bandwidth float64   `json:"bandwidth"`  // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// SampleRows flattens a snapshot into export rows.
func SampleRows(clusterID string, s Snapshot) []SampleRow {
	rows := make([]SampleRow, 0, len(s.Devices))
	for _, d := range s.Devices {
		rows = append(rows, SampleRow{
			ClusterID: clusterID,
			DeviceID:  d.ID,
			Name:      d.Name,
			Address:   d.Address,
			Status:    d.Status,
			Bandwidth: d.Bandwidth,
			Timestamp: s.Timestamp,
		})
	}
	return rows
}

// SampleTableName holds the table name used when writing samples to GreptimeDB.
// It defaults to "device_samples" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var SampleTableName = envOr("GREPTIMEDB_TABLE", "device_samples")

// LogTableName is the GreptimeDB table for log entries (GREPTIMEDB_LOG_TABLE).
var LogTableName = envOr("GREPTIMEDB_LOG_TABLE", "device_logs")

func (SampleRow) TableName() string {
	return SampleTableName
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
