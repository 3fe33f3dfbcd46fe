package sim

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"netmon-sim/internal/telemetry"
)

// ReplayLog replays sample rows recorded as JSON lines from r to writer.
// A speed >0 scales the recorded gaps; speed <= 0 replays without delay.
func ReplayLog(ctx context.Context, r io.Reader, writer TelemetryWriter, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var row telemetry.SampleRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(row.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its sample rows.
func ReplayLogFile(ctx context.Context, path string, writer TelemetryWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
