// Simulator advancing device state and reporting transitions
package sim

import (
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"netmon-sim/internal/registry"
	"netmon-sim/internal/telemetry"
)

// ErrStopped is returned by Tick after Shutdown.
var ErrStopped = errors.New("simulator stopped")

// DefaultTickInterval matches the reference deployment.
const DefaultTickInterval = 2 * time.Second

type forced struct {
	index  int
	status telemetry.Status
}

// TickResult is what one simulation step produced.
type TickResult struct {
	Transitions []telemetry.TransitionEvent
	Snapshot    telemetry.Snapshot
}

// Simulator advances the device fleet one discrete step per tick.
type Simulator struct {
	clusterID    string
	devices      []*telemetry.Device
	baseline     []telemetry.Status
	index        map[string]int
	gen          *telemetry.Generator
	rand         *rand.Rand
	now          func() time.Time
	tickInterval time.Duration
	flip         float64
	log          *slog.Logger
	ticks        uint64
	stopped      bool

	// gate is held for writing across a whole tick, dispatch included, so
	// readers never see a tick half applied. mu guards device state.
	gate        sync.RWMutex
	mu          sync.RWMutex
	dispatching bool
	deferred    []forced

	obsMu     sync.RWMutex
	observers []subscriber
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand injects the random source; use a seeded source for replayable runs.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rand = r }
}

// WithClock injects the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithFlipProbability sets the per-tick status flip chance.
func WithFlipProbability(p float64) Option {
	return func(s *Simulator) { s.flip = p }
}

// WithTickInterval sets the Run loop interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Simulator) { s.tickInterval = d }
}

// WithLogger sets the logger used for observer failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// NewSimulator takes ownership of the registry's live devices.
func NewSimulator(clusterID string, reg *registry.Registry, opts ...Option) *Simulator {
	s := &Simulator{
		clusterID:    clusterID,
		devices:      reg.Live(),
		index:        make(map[string]int, reg.Len()),
		now:          time.Now,
		tickInterval: DefaultTickInterval,
		flip:         telemetry.DefaultFlipProbability,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	s.gen = telemetry.NewGenerator(s.rand, s.flip)

	// The first tick compares against the initial status.
	s.baseline = make([]telemetry.Status, len(s.devices))
	for i, d := range s.devices {
		s.baseline[i] = d.Status
		s.index[d.ID] = i
	}
	return s
}

// ClusterID returns the identity stamped on exported rows.
func (s *Simulator) ClusterID() string { return s.clusterID }

// TickInterval returns the Run loop interval.
func (s *Simulator) TickInterval() time.Duration { return s.tickInterval }

// Tick advances every device once, then notifies observers: transitions
// first, in registry order, followed by exactly one snapshot. All events of
// a tick share one timestamp. Status forced by an observer during dispatch
// is applied once every observer has seen the tick.
func (s *Simulator) Tick() (TickResult, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	res, err := s.advance()
	if err != nil {
		return TickResult{}, err
	}
	s.dispatch(res)
	s.settle()
	return res, nil
}

// ReadGate returns a lock that excludes ticks in flight. Stores fed by this
// simulator take it on their read paths; observers must never take it.
func (s *Simulator) ReadGate() sync.Locker { return s.gate.RLocker() }

func (s *Simulator) settle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatching = false
	for _, f := range s.deferred {
		s.force(f.index, f.status)
	}
	s.deferred = nil
}

func (s *Simulator) advance() (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return TickResult{}, ErrStopped
	}

	ts := s.now().UTC()
	var transitions []telemetry.TransitionEvent
	for i, d := range s.devices {
		s.gen.Step(d)
		if d.Status == s.baseline[i] {
			continue
		}
		transitions = append(transitions, telemetry.TransitionEvent{
			DeviceID:  d.ID,
			Name:      d.Name,
			Address:   d.Address,
			From:      s.baseline[i],
			To:        d.Status,
			Timestamp: ts,
		})
		s.baseline[i] = d.Status
	}
	s.ticks++
	s.dispatching = true
	return TickResult{
		Transitions: transitions,
		Snapshot:    telemetry.Snapshot{Devices: s.copyDevices(), Timestamp: ts, Tick: s.ticks},
	}, nil
}

// ForceStatus sets a device status directly, bypassing the flip rule. It
// emits no event; the new status becomes the transition baseline. Unknown ids
// and unknown statuses return false and change nothing. Called from an
// observer while a tick is dispatched, the change lands when the tick ends.
func (s *Simulator) ForceStatus(id string, status telemetry.Status) bool {
	if status != telemetry.StatusOnline && status != telemetry.StatusOffline {
		return false
	}
	i, ok := s.index[id]
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.dispatching {
		s.deferred = append(s.deferred, forced{index: i, status: status})
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.gate.Lock()
	defer s.gate.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force(i, status)
	return true
}

func (s *Simulator) force(i int, status telemetry.Status) {
	d := s.devices[i]
	d.Status = status
	if status == telemetry.StatusOffline {
		d.Bandwidth = 0
	}
	s.baseline[i] = status
}

// ListDevices returns copies of the current device states as of the last
// completed tick.
func (s *Simulator) ListDevices() []telemetry.Device {
	s.gate.RLock()
	defer s.gate.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyDevices()
}

// Snapshot returns the current fleet state stamped with the current time.
func (s *Simulator) Snapshot() telemetry.Snapshot {
	s.gate.RLock()
	defer s.gate.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return telemetry.Snapshot{Devices: s.copyDevices(), Timestamp: s.now().UTC()}
}

// TickCount returns how many ticks have completed.
func (s *Simulator) TickCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

// Shutdown stops further ticks and drops all observers.
func (s *Simulator) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.obsMu.Lock()
	s.observers = nil
	s.obsMu.Unlock()
}

func (s *Simulator) copyDevices() []telemetry.Device {
	out := make([]telemetry.Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.Clone()
	}
	return out
}
