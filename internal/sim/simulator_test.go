package sim

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"netmon-sim/internal/config"
	"netmon-sim/internal/registry"
	"netmon-sim/internal/telemetry"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSimulator(t *testing.T, flip float64, seed int64) *Simulator {
	t.Helper()
	reg, err := registry.New(config.Default().Devices, registry.WithRand(rand.New(rand.NewSource(seed))))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewSimulator("cluster-test", reg,
		WithRand(rand.New(rand.NewSource(seed))),
		WithFlipProbability(flip),
		WithClock(func() time.Time { return fixedNow }),
	)
}

// recorder captures events in arrival order.
type recorder struct {
	order       []string
	transitions []telemetry.TransitionEvent
	snapshots   []telemetry.Snapshot
}

func (r *recorder) OnTransition(ev telemetry.TransitionEvent) {
	r.order = append(r.order, "transition")
	r.transitions = append(r.transitions, ev)
}

func (r *recorder) OnSnapshot(s telemetry.Snapshot) {
	r.order = append(r.order, "snapshot")
	r.snapshots = append(r.snapshots, s)
}

func TestSimulator_TickInvariants(t *testing.T) {
	sim := newTestSimulator(t, 0.3, 7)
	for i := 0; i < 500; i++ {
		res, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if len(res.Snapshot.Devices) != 3 {
			t.Fatalf("expected 3 devices, got %d", len(res.Snapshot.Devices))
		}
		for _, d := range res.Snapshot.Devices {
			if d.Bandwidth < 0 {
				t.Fatalf("negative bandwidth for %s: %v", d.ID, d.Bandwidth)
			}
			if d.Status == telemetry.StatusOffline && d.Bandwidth != 0 {
				t.Fatalf("offline device %s has bandwidth %v", d.ID, d.Bandwidth)
			}
		}
	}
	if sim.TickCount() != 500 {
		t.Fatalf("expected 500 ticks, got %d", sim.TickCount())
	}
}

func TestSimulator_TransitionIffStatusChanged(t *testing.T) {
	sim := newTestSimulator(t, 0.5, 11)
	prev := map[string]telemetry.Status{}
	for _, d := range sim.ListDevices() {
		prev[d.ID] = d.Status
	}
	for i := 0; i < 200; i++ {
		res, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		changed := map[string]bool{}
		for _, ev := range res.Transitions {
			if ev.From == ev.To {
				t.Fatalf("transition without change: %+v", ev)
			}
			if prev[ev.DeviceID] != ev.From {
				t.Fatalf("transition from %s, previous status was %s", ev.From, prev[ev.DeviceID])
			}
			changed[ev.DeviceID] = true
		}
		for _, d := range res.Snapshot.Devices {
			if (d.Status != prev[d.ID]) != changed[d.ID] {
				t.Fatalf("tick %d: device %s status %s->%s, transition reported=%v", i, d.ID, prev[d.ID], d.Status, changed[d.ID])
			}
			prev[d.ID] = d.Status
		}
	}
}

func TestSimulator_NoFlipNoTransitions(t *testing.T) {
	sim := newTestSimulator(t, 0, 1)
	rec := &recorder{}
	sim.Subscribe(rec)
	for i := 0; i < 1000; i++ {
		if _, err := sim.Tick(); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if len(rec.transitions) != 0 {
		t.Fatalf("expected no transitions, got %d", len(rec.transitions))
	}
	if len(rec.snapshots) != 1000 {
		t.Fatalf("expected 1000 snapshots, got %d", len(rec.snapshots))
	}
}

func TestSimulator_AlwaysFlipReportsEveryDevice(t *testing.T) {
	sim := newTestSimulator(t, 1, 1)
	res, err := sim.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(res.Transitions))
	}
	ids := []string{"dev-1", "dev-2", "dev-3"}
	for i, ev := range res.Transitions {
		if ev.DeviceID != ids[i] {
			t.Fatalf("transition %d for %s, want %s", i, ev.DeviceID, ids[i])
		}
		if !ev.Timestamp.Equal(res.Snapshot.Timestamp) {
			t.Fatalf("transition ts %v differs from snapshot ts %v", ev.Timestamp, res.Snapshot.Timestamp)
		}
	}
}

func TestSimulator_ForceStatus(t *testing.T) {
	sim := newTestSimulator(t, 0, 3)
	rec := &recorder{}
	sim.Subscribe(rec)

	if sim.ForceStatus("nope", telemetry.StatusOffline) {
		t.Fatalf("unknown id should return false")
	}
	if sim.ForceStatus("dev-1", telemetry.Status("degraded")) {
		t.Fatalf("unknown status should return false")
	}
	if len(rec.order) != 0 {
		t.Fatalf("ForceStatus must not emit events, got %v", rec.order)
	}

	if !sim.ForceStatus("dev-1", telemetry.StatusOffline) {
		t.Fatalf("ForceStatus dev-1 failed")
	}
	for _, d := range sim.ListDevices() {
		if d.ID == "dev-1" && (d.Status != telemetry.StatusOffline || d.Bandwidth != 0) {
			t.Fatalf("dev-1 not forced offline: %+v", d)
		}
	}
	if len(rec.order) != 0 {
		t.Fatalf("ForceStatus must not emit events, got %v", rec.order)
	}

	res, err := sim.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Transitions) != 0 {
		t.Fatalf("forced status should be the baseline, got %+v", res.Transitions)
	}
	if res.Snapshot.Devices[0].Bandwidth != 0 {
		t.Fatalf("offline device should report 0 bandwidth")
	}
}

func TestSimulator_TransitionsBeforeSnapshot(t *testing.T) {
	sim := newTestSimulator(t, 1, 5)
	rec := &recorder{}
	sim.Subscribe(rec)
	if _, err := sim.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	want := []string{"transition", "transition", "transition", "snapshot"}
	if len(rec.order) != len(want) {
		t.Fatalf("got events %v, want %v", rec.order, want)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Fatalf("got events %v, want %v", rec.order, want)
		}
	}
	if !rec.snapshots[0].Timestamp.Equal(fixedNow) {
		t.Fatalf("snapshot ts %v, want %v", rec.snapshots[0].Timestamp, fixedNow)
	}
}

func TestSimulator_ObserverPanicIsolated(t *testing.T) {
	sim := newTestSimulator(t, 1, 5)
	sim.Subscribe(ObserverFuncs{Snapshot: func(telemetry.Snapshot) { panic("boom") }})
	rec := &recorder{}
	sim.Subscribe(rec)
	if _, err := sim.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.snapshots) != 1 || len(rec.transitions) != 3 {
		t.Fatalf("healthy observer missed events: %v", rec.order)
	}
	if _, err := sim.Tick(); err != nil {
		t.Fatalf("second tick: %v", err)
	}
}

func TestSimulator_ObserversGetCopies(t *testing.T) {
	sim := newTestSimulator(t, 0, 5)
	sim.Subscribe(ObserverFuncs{Snapshot: func(s telemetry.Snapshot) {
		s.Devices[0].Meta["location"] = "tampered"
		s.Devices[0].Name = "tampered"
	}})
	rec := &recorder{}
	sim.Subscribe(rec)
	if _, err := sim.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rec.snapshots[0].Devices[0].Meta["location"] != "Lab" {
		t.Fatalf("observer saw another observer's mutation")
	}
	d := sim.ListDevices()[0]
	if d.Name != "Gateway-1" || d.Meta["location"] != "Lab" {
		t.Fatalf("simulator state mutated through snapshot: %+v", d)
	}
}

func TestSimulator_Unsubscribe(t *testing.T) {
	sim := newTestSimulator(t, 0, 5)
	rec := &recorder{}
	sub := sim.Subscribe(rec)
	if sim.ObserverCount() != 1 {
		t.Fatalf("expected 1 observer")
	}
	if !sim.Unsubscribe(sub) {
		t.Fatalf("unsubscribe failed")
	}
	if sim.Unsubscribe(sub) {
		t.Fatalf("second unsubscribe should report false")
	}
	if _, err := sim.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(rec.order) != 0 {
		t.Fatalf("unsubscribed observer received %v", rec.order)
	}
}

func TestSimulator_Shutdown(t *testing.T) {
	sim := newTestSimulator(t, 0, 5)
	sim.Subscribe(&recorder{})
	sim.Shutdown()
	if _, err := sim.Tick(); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if sim.ObserverCount() != 0 {
		t.Fatalf("observers should be dropped on shutdown")
	}
}

func TestSimulator_InitialOfflineDevice(t *testing.T) {
	seeds := []config.Device{
		{ID: "a", Name: "A", Address: "10.0.0.1", InitialStatus: "offline"},
		{ID: "b", Name: "B", Address: "10.0.0.2"},
	}
	reg, err := registry.New(seeds, registry.WithRand(rand.New(rand.NewSource(2))))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sim := NewSimulator("c", reg, WithFlipProbability(0), WithRand(rand.New(rand.NewSource(2))))
	res, err := sim.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Transitions) != 0 {
		t.Fatalf("first tick compares against initial status, got %+v", res.Transitions)
	}
	if res.Snapshot.Devices[0].Status != telemetry.StatusOffline || res.Snapshot.Devices[0].Bandwidth != 0 {
		t.Fatalf("device a should stay offline: %+v", res.Snapshot.Devices[0])
	}
}

func TestSimulator_SnapshotCarriesTickNumber(t *testing.T) {
	sim := newTestSimulator(t, 0, 3)
	for want := uint64(1); want <= 3; want++ {
		res, err := sim.Tick()
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if res.Snapshot.Tick != want {
			t.Fatalf("snapshot tick = %d, want %d", res.Snapshot.Tick, want)
		}
	}
}

// forcingObserver forces dev-1 offline from inside dispatch and records what
// later observers of the same tick see.
type forcingObserver struct {
	sim *Simulator
	ok  bool
}

func (f *forcingObserver) OnTransition(telemetry.TransitionEvent) {}

func (f *forcingObserver) OnSnapshot(telemetry.Snapshot) {
	f.ok = f.sim.ForceStatus("dev-1", telemetry.StatusOffline)
}

func TestSimulator_ForceFromObserverLandsAfterTick(t *testing.T) {
	sim := newTestSimulator(t, 0, 5)
	f := &forcingObserver{sim: sim}
	sim.Subscribe(f)
	rec := &recorder{}
	sim.Subscribe(rec)

	res, err := sim.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !f.ok {
		t.Fatalf("ForceStatus from an observer should be accepted")
	}
	if rec.snapshots[0].Devices[0].Status != telemetry.StatusOnline || res.Snapshot.Devices[0].Status != telemetry.StatusOnline {
		t.Fatalf("the dispatched tick must not change under observers")
	}
	d := sim.ListDevices()[0]
	if d.Status != telemetry.StatusOffline || d.Bandwidth != 0 {
		t.Fatalf("forced status not applied after tick: %+v", d)
	}

	res, err = sim.Tick()
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Transitions) != 0 {
		t.Fatalf("forced status must become the baseline, got %+v", res.Transitions)
	}
}

// parkedObserver blocks the tick inside dispatch.
type parkedObserver struct {
	entered chan struct{}
	release chan struct{}
}

func (g *parkedObserver) OnTransition(telemetry.TransitionEvent) {}

func (g *parkedObserver) OnSnapshot(telemetry.Snapshot) {
	close(g.entered)
	<-g.release
}

func TestSimulator_ReadersWaitForTick(t *testing.T) {
	sim := newTestSimulator(t, 1, 5)
	g := &parkedObserver{entered: make(chan struct{}), release: make(chan struct{})}
	sim.Subscribe(g)

	done := make(chan struct{})
	go func() {
		_, _ = sim.Tick()
		close(done)
	}()
	<-g.entered

	listed := make(chan []telemetry.Device, 1)
	go func() { listed <- sim.ListDevices() }()
	gated := make(chan struct{})
	go func() {
		l := sim.ReadGate()
		l.Lock()
		l.Unlock()
		close(gated)
	}()

	select {
	case <-listed:
		t.Fatalf("ListDevices returned while a tick was dispatched")
	case <-gated:
		t.Fatalf("ReadGate acquired while a tick was dispatched")
	case <-time.After(50 * time.Millisecond):
	}

	close(g.release)
	<-done
	<-gated
	for _, d := range <-listed {
		if d.Status != telemetry.StatusOffline {
			t.Fatalf("reader should see the completed tick, got %+v", d)
		}
	}
}
