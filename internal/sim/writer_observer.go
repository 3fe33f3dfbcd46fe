package sim

import (
	"context"
	"log/slog"
	"sync/atomic"

	"netmon-sim/internal/logging"
	"netmon-sim/internal/telemetry"
)

// DefaultQueueSize bounds the number of pending sink jobs.
const DefaultQueueSize = 64

type sinkJob struct {
	rows  []telemetry.SampleRow
	entry *telemetry.LogEntry
}

// WriterObserver bridges simulator and aggregator events to writers. Events
// are queued and written by Run; when the queue is full the event is dropped,
// so a slow sink never holds up a tick.
type WriterObserver struct {
	clusterID string
	tw        TelemetryWriter
	lw        LogWriter
	queue     chan sinkJob
	dropped   atomic.Uint64
}

// NewWriterObserver creates an observer feeding tw and lw. Either may be nil.
func NewWriterObserver(clusterID string, tw TelemetryWriter, lw LogWriter, size int) *WriterObserver {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &WriterObserver{clusterID: clusterID, tw: tw, lw: lw, queue: make(chan sinkJob, size)}
}

// OnTransition is a no-op: transitions reach writers as log entries.
func (w *WriterObserver) OnTransition(telemetry.TransitionEvent) {}

// OnSnapshot queues one sample row per device.
func (w *WriterObserver) OnSnapshot(s telemetry.Snapshot) {
	if w.tw == nil {
		return
	}
	w.enqueue(sinkJob{rows: telemetry.SampleRows(w.clusterID, s)})
}

// OnLog queues a log entry.
func (w *WriterObserver) OnLog(e telemetry.LogEntry) {
	if w.lw == nil {
		return
	}
	w.enqueue(sinkJob{entry: &e})
}

func (w *WriterObserver) enqueue(j sinkJob) {
	select {
	case w.queue <- j:
	default:
		w.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (w *WriterObserver) Dropped() uint64 { return w.dropped.Load() }

// Run drains the queue until ctx is done, then flushes what is left.
func (w *WriterObserver) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	for {
		select {
		case j := <-w.queue:
			w.write(log, j)
		case <-ctx.Done():
			for {
				select {
				case j := <-w.queue:
					w.write(log, j)
				default:
					if n := w.Dropped(); n > 0 {
						log.Warn("sink queue overflowed", "dropped", n)
					}
					return
				}
			}
		}
	}
}

func (w *WriterObserver) write(log *slog.Logger, j sinkJob) {
	if j.entry != nil {
		if err := w.lw.WriteLog(*j.entry); err != nil {
			log.Error("log write failed", "device_id", j.entry.DeviceID, "err", err)
		}
		return
	}
	if err := writeRows(w.tw, j.rows); err != nil {
		log.Error("sample write failed", "rows", len(j.rows), "err", err)
	}
}
