package scenario

import (
	"fmt"
	"log/slog"
	"sync"

	"netmon-sim/internal/telemetry"
)

// Forcer applies status overrides.
type Forcer interface {
	ForceStatus(id string, status telemetry.Status) bool
}

// Journal records operator-visible log lines.
type Journal interface {
	AppendLog(level telemetry.Level, message, deviceID string) telemetry.LogEntry
}

// Runner drives a scenario from simulator snapshots. The first snapshot
// enters the first phase.
type Runner struct {
	sc      *Scenario
	forcer  Forcer
	journal Journal
	log     *slog.Logger

	mu      sync.Mutex
	current string
	ticks   int
	started bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJournal records phase changes in j.
func WithJournal(j Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner prepares sc to be driven against forcer.
func NewRunner(sc *Scenario, forcer Forcer, opts ...RunnerOption) *Runner {
	r := &Runner{sc: sc, forcer: forcer, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Phase returns the current phase name, empty before the first snapshot.
func (r *Runner) Phase() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Done reports whether the current phase has no way out.
func (r *Runner) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return false
	}
	p, _ := r.sc.Phase(r.current)
	return len(p.Triggers) == 0
}

// OnTransition is a no-op; phases react to snapshots.
func (r *Runner) OnTransition(telemetry.TransitionEvent) {}

// OnSnapshot counts the tick and advances the scenario when a trigger fires.
func (r *Runner) OnSnapshot(s telemetry.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sc.Phases) == 0 {
		return
	}
	if !r.started {
		r.started = true
		r.enter(r.sc.Phases[0].Name)
		return
	}
	r.ticks++
	sum := s.Summary()
	events := []Event{
		{Type: EventTicks, Value: r.ticks},
		{Type: EventOffline, Value: sum.Offline},
		{Type: EventOnline, Value: sum.Online},
	}
	for _, ev := range events {
		if next, ok := r.sc.NextPhase(r.current, ev); ok {
			r.enter(next)
			return
		}
	}
}

func (r *Runner) enter(name string) {
	prev := r.current
	r.current = name
	r.ticks = 0
	p, _ := r.sc.Phase(name)
	r.log.Info("scenario phase", "scenario", r.sc.Name, "from", prev, "to", name)
	if r.journal != nil {
		r.journal.AppendLog(telemetry.LevelInfo, fmt.Sprintf("scenario %s: %s", r.sc.Name, name), "")
	}
	for _, a := range p.Actions {
		st, err := telemetry.ParseStatus(a.Status)
		if err != nil {
			continue
		}
		if !r.forcer.ForceStatus(a.Device, st) {
			r.log.Warn("scenario action for unknown device", "device_id", a.Device, "phase", name)
		}
	}
}
