package sim

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"netmon-sim/internal/telemetry"
)

const (
	defaultGreptimePort = 4001
	greptimeTimeout     = 5 * time.Second
)

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes samples and log entries to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client      greptimeClient
	sampleTable string
	logTable    string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
// Empty table names fall back to telemetry.SampleTableName / LogTableName.
func NewGreptimeDBWriter(endpoint, database, sampleTable, logTable string) (*GreptimeDBWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if sampleTable == "" {
		sampleTable = telemetry.SampleTableName
	}
	if logTable == "" {
		logTable = telemetry.LogTableName
	}
	return &GreptimeDBWriter{client: client, sampleTable: sampleTable, logTable: logTable}, nil
}

// Write inserts a single sample row.
func (w *GreptimeDBWriter) Write(row telemetry.SampleRow) error {
	return w.WriteBatch([]telemetry.SampleRow{row})
}

// WriteBatch inserts multiple sample rows in one request.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.SampleRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.sampleTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		column{"cluster_id", types.STRING, true},
		column{"device_id", types.STRING, true},
		column{"name", types.STRING, false},
		column{"ip", types.STRING, false},
		column{"status", types.STRING, false},
		column{"bandwidth", types.FLOAT64, false},
	); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.ClusterID, r.DeviceID, r.Name, r.Address, string(r.Status), r.Bandwidth, r.Timestamp); err != nil {
			return err
		}
	}
	return w.send(w.sampleTable, tbl, len(rows))
}

// WriteLog inserts a single log entry.
func (w *GreptimeDBWriter) WriteLog(e telemetry.LogEntry) error {
	return w.WriteLogs([]telemetry.LogEntry{e})
}

// WriteLogs inserts multiple log entries in one request.
func (w *GreptimeDBWriter) WriteLogs(entries []telemetry.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tbl, err := table.New(w.logTable)
	if err != nil {
		return err
	}
	if err := addColumns(tbl,
		column{"device_id", types.STRING, true},
		column{"level", types.STRING, true},
		column{"message", types.STRING, false},
	); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, e := range entries {
		if err := tbl.AddRow(e.DeviceID, string(e.Level), e.Message, e.Timestamp); err != nil {
			return err
		}
	}
	return w.send(w.logTable, tbl, len(entries))
}

type column struct {
	name string
	typ  types.ColumnType
	tag  bool
}

func addColumns(tbl *table.Table, cols ...column) error {
	for _, c := range cols {
		var err error
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *GreptimeDBWriter) send(name string, tbl *table.Table, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), greptimeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		slog.Error("greptime write failed", "table", name, "err", err)
		return err
	}
	slog.Debug("greptime write", "table", name, "rows", n)
	return nil
}
