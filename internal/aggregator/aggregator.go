// Package aggregator keeps bounded device history and a shared event log fed
// by simulator ticks.
package aggregator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"netmon-sim/internal/telemetry"
)

const (
	DefaultHistoryCapacity = 200
	DefaultLogCapacity     = 1000
	DefaultLogLimit        = 200
)

// ErrNotFound is matched by NotFoundError.
var ErrNotFound = errors.New("device not found")

// NotFoundError reports a history lookup for an unknown device.
type NotFoundError struct {
	DeviceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("device %q not found", e.DeviceID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Subscription identifies a log observer.
type Subscription struct {
	ID uuid.UUID
}

type logSubscriber struct {
	id uuid.UUID
	fn func(telemetry.LogEntry)
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Aggregator implements the simulator observer contract. Transitions are held
// back until the snapshot that closes their tick, then committed together
// with the history samples.
type Aggregator struct {
	// pubMu keeps observer delivery in log order.
	pubMu       sync.Mutex
	mu          sync.RWMutex
	gate        sync.Locker
	historyCap  int
	logCap      int
	order       []string
	history     map[string]*ring[telemetry.HistorySample]
	logs        *ring[telemetry.LogEntry]
	pending     []telemetry.TransitionEvent
	lastTick    uint64
	criticality map[string]string
	subs        []logSubscriber
	now         func() time.Time
	log         *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithHistoryCapacity bounds the samples kept per device.
func WithHistoryCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.historyCap = n
		}
	}
}

// WithLogCapacity bounds the shared log.
func WithLogCapacity(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.logCap = n
		}
	}
}

// WithDeviceMeta seeds criticality before the first snapshot arrives.
func WithDeviceMeta(devices []telemetry.Device) Option {
	return func(a *Aggregator) {
		for _, d := range devices {
			if c, ok := d.Meta[telemetry.MetaCriticality]; ok {
				a.criticality[d.ID] = c
			}
		}
	}
}

// WithClock injects the clock used by AppendLog.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithReadGate makes GetHistory, GetLogs and DeviceIDs hold l, typically
// the feeding simulator's ReadGate, so queries never overlap a tick.
func WithReadGate(l sync.Locker) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.gate = l
		}
	}
}

// WithLogger sets the logger used for observer failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// New creates an aggregator with an empty history ring per device id.
func New(deviceIDs []string, opts ...Option) *Aggregator {
	a := &Aggregator{
		historyCap:  DefaultHistoryCapacity,
		logCap:      DefaultLogCapacity,
		history:     make(map[string]*ring[telemetry.HistorySample], len(deviceIDs)),
		criticality: make(map[string]string),
		gate:        nopLocker{},
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logs = newRing[telemetry.LogEntry](a.logCap)
	for _, id := range deviceIDs {
		a.ensure(id)
	}
	return a
}

func (a *Aggregator) ensure(id string) *ring[telemetry.HistorySample] {
	r, ok := a.history[id]
	if !ok {
		r = newRing[telemetry.HistorySample](a.historyCap)
		a.history[id] = r
		a.order = append(a.order, id)
	}
	return r
}

// OnSnapshot appends one sample per device and commits the transitions
// received since the previous snapshot. A snapshot repeating the last tick
// number is ignored.
func (a *Aggregator) OnSnapshot(s telemetry.Snapshot) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	a.mu.Lock()
	if s.Tick != 0 && s.Tick == a.lastTick {
		a.pending = nil
		a.mu.Unlock()
		return
	}
	if s.Tick != 0 {
		a.lastTick = s.Tick
	}
	for _, d := range s.Devices {
		if c, ok := d.Meta[telemetry.MetaCriticality]; ok {
			a.criticality[d.ID] = c
		}
		a.ensure(d.ID).push(telemetry.HistorySample{Timestamp: s.Timestamp, Status: d.Status, Bandwidth: d.Bandwidth})
	}
	entries := make([]telemetry.LogEntry, 0, len(a.pending))
	for _, ev := range a.pending {
		e := a.transitionEntry(ev)
		a.logs.push(e)
		entries = append(entries, e)
	}
	a.pending = nil
	subs := a.subscribers()
	a.mu.Unlock()

	for _, e := range entries {
		a.publish(subs, e)
	}
}

// OnTransition queues the status change for the snapshot closing its tick.
func (a *Aggregator) OnTransition(ev telemetry.TransitionEvent) {
	a.mu.Lock()
	a.pending = append(a.pending, ev)
	a.mu.Unlock()
}

func (a *Aggregator) transitionEntry(ev telemetry.TransitionEvent) telemetry.LogEntry {
	level := telemetry.LevelInfo
	if ev.To != telemetry.StatusOnline {
		level = Severity(a.criticality[ev.DeviceID])
	}
	return telemetry.LogEntry{
		Timestamp: ev.Timestamp,
		Level:     level,
		Message:   fmt.Sprintf("%s (%s) changed: %s → %s", ev.Name, ev.Address, ev.From, ev.To),
		DeviceID:  ev.DeviceID,
	}
}

// AppendLog adds a system entry, such as an operator action, stamped with
// the current time.
func (a *Aggregator) AppendLog(level telemetry.Level, message, deviceID string) telemetry.LogEntry {
	entry := telemetry.LogEntry{Timestamp: a.now().UTC(), Level: level, Message: message, DeviceID: deviceID}
	a.pubMu.Lock()
	defer a.pubMu.Unlock()
	a.mu.Lock()
	a.logs.push(entry)
	subs := a.subscribers()
	a.mu.Unlock()

	a.publish(subs, entry)
	return entry
}

// Severity maps a device criticality to the level logged when it goes offline.
func Severity(criticality string) telemetry.Level {
	switch criticality {
	case "low":
		return telemetry.LevelWarning
	case "high":
		return telemetry.LevelCritical
	default:
		return telemetry.LevelAlert
	}
}

// GetHistory returns the retained samples of one device, oldest first.
func (a *Aggregator) GetHistory(id string) ([]telemetry.HistorySample, error) {
	a.gate.Lock()
	defer a.gate.Unlock()
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.history[id]
	if !ok {
		return nil, &NotFoundError{DeviceID: id}
	}
	return r.tail(r.len()), nil
}

// GetLogs returns the newest limit entries, oldest first. A non-positive
// limit means DefaultLogLimit.
func (a *Aggregator) GetLogs(limit int) []telemetry.LogEntry {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	a.gate.Lock()
	defer a.gate.Unlock()
	a.mu.RLock()
	defer a.mu.RUnlock()
	if limit > a.logCap {
		limit = a.logCap
	}
	return a.logs.tail(limit)
}

// DeviceIDs lists devices with a history ring in first-seen order.
func (a *Aggregator) DeviceIDs() []string {
	a.gate.Lock()
	defer a.gate.Unlock()
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// SubscribeLogs registers fn for every entry appended from now on. fn must
// not append to the log itself.
func (a *Aggregator) SubscribeLogs(fn func(telemetry.LogEntry)) Subscription {
	s := logSubscriber{id: uuid.New(), fn: fn}
	a.mu.Lock()
	a.subs = append(a.subs, s)
	a.mu.Unlock()
	return Subscription{ID: s.id}
}

// UnsubscribeLogs removes a log observer and reports whether it was present.
func (a *Aggregator) UnsubscribeLogs(sub Subscription) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.subs {
		if s.id == sub.ID {
			a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Aggregator) subscribers() []logSubscriber {
	out := make([]logSubscriber, len(a.subs))
	copy(out, a.subs)
	return out
}

func (a *Aggregator) publish(subs []logSubscriber, entry telemetry.LogEntry) {
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.log.Error("log observer panicked", "subscription", s.id, "panic", r)
				}
			}()
			s.fn(entry)
		}()
	}
}
