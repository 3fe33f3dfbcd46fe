package sim

import (
	"github.com/google/uuid"

	"netmon-sim/internal/telemetry"
)

// Observer receives simulator events. Calls happen on the ticking goroutine,
// so implementations must return quickly; anything slow belongs behind a queue
// (see WriterObserver).
type Observer interface {
	OnTransition(telemetry.TransitionEvent)
	OnSnapshot(telemetry.Snapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Transition func(telemetry.TransitionEvent)
	Snapshot   func(telemetry.Snapshot)
}

func (f ObserverFuncs) OnTransition(ev telemetry.TransitionEvent) {
	if f.Transition != nil {
		f.Transition(ev)
	}
}

func (f ObserverFuncs) OnSnapshot(s telemetry.Snapshot) {
	if f.Snapshot != nil {
		f.Snapshot(s)
	}
}

// Subscription identifies one registered observer.
type Subscription struct {
	ID uuid.UUID
}

type subscriber struct {
	id  uuid.UUID
	obs Observer
}

// Subscribe registers o for every future event.
func (s *Simulator) Subscribe(o Observer) Subscription {
	sub := subscriber{id: uuid.New(), obs: o}
	s.obsMu.Lock()
	s.observers = append(s.observers, sub)
	s.obsMu.Unlock()
	return Subscription{ID: sub.id}
}

// Unsubscribe removes a registration. It reports whether it was present.
func (s *Simulator) Unsubscribe(sub Subscription) bool {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, o := range s.observers {
		if o.id == sub.ID {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return true
		}
	}
	return false
}

// ObserverCount returns the number of registered observers.
func (s *Simulator) ObserverCount() int {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return len(s.observers)
}

func (s *Simulator) dispatch(res TickResult) {
	s.obsMu.RLock()
	observers := make([]subscriber, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, o := range observers {
		for _, ev := range res.Transitions {
			s.notify(o, func() { o.obs.OnTransition(ev) })
		}
		snap := res.Snapshot.Clone()
		s.notify(o, func() { o.obs.OnSnapshot(snap) })
	}
}

// notify shields the tick from a misbehaving observer.
func (s *Simulator) notify(o subscriber, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("observer panicked", "subscription", o.id, "panic", r)
		}
	}()
	fn()
}
