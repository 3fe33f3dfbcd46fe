package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"netmon-sim/internal/telemetry"
)

// Event types understood by triggers.
const (
	// EventTicks counts ticks spent in the current phase.
	EventTicks = "ticks"
	// EventOffline is the number of offline devices in the latest snapshot.
	EventOffline = "offline"
	// EventOnline is the number of online devices in the latest snapshot.
	EventOnline = "online"
)

// Scenario is a scripted sequence of outage phases.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase forces device statuses on entry and moves on when a trigger fires.
type Phase struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Actions     []Action  `yaml:"actions,omitempty"`
	Triggers    []Trigger `yaml:"triggers,omitempty"`
}

// Action overrides one device status.
type Action struct {
	Device string `yaml:"device"`
	Status string `yaml:"status"`
}

// Trigger moves the scenario to another phase once an event reaches Value.
type Trigger struct {
	Event string `yaml:"event"`
	Value int    `yaml:"value"`
	Next  string `yaml:"next"`
}

// Event represents a runtime occurrence that may advance the scenario.
type Event struct {
	Type  string
	Value int
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks phase names, trigger targets and action statuses.
func (s *Scenario) Validate() error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("scenario %q: no phases", s.Name)
	}
	names := make(map[string]struct{}, len(s.Phases))
	for _, p := range s.Phases {
		if p.Name == "" {
			return fmt.Errorf("scenario %q: phase without name", s.Name)
		}
		if _, dup := names[p.Name]; dup {
			return fmt.Errorf("scenario %q: duplicate phase %q", s.Name, p.Name)
		}
		names[p.Name] = struct{}{}
	}
	for _, p := range s.Phases {
		for _, a := range p.Actions {
			if _, err := telemetry.ParseStatus(a.Status); err != nil {
				return fmt.Errorf("scenario %q phase %q: %w", s.Name, p.Name, err)
			}
		}
		for _, tr := range p.Triggers {
			switch tr.Event {
			case EventTicks, EventOffline, EventOnline:
			default:
				return fmt.Errorf("scenario %q phase %q: unknown event %q", s.Name, p.Name, tr.Event)
			}
			if _, ok := names[tr.Next]; !ok {
				return fmt.Errorf("scenario %q phase %q: unknown next phase %q", s.Name, p.Name, tr.Next)
			}
		}
	}
	return nil
}

// Phase looks up a phase by name.
func (s *Scenario) Phase(name string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// NextPhase returns the name of the next phase given the current phase and event.
// If no trigger matches, ok will be false.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	p, found := s.Phase(current)
	if !found {
		return "", false
	}
	for _, tr := range p.Triggers {
		if tr.Event == ev.Type && ev.Value >= tr.Value {
			return tr.Next, true
		}
	}
	return "", false
}
