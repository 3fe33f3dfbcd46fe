// Package registry holds the monitored device set.
package registry

import (
	"math/rand"
	"time"

	"netmon-sim/internal/config"
	"netmon-sim/internal/telemetry"
)

// Registry is the ordered, in-memory list of monitored devices. The live
// device values are owned by the simulator; everyone else gets copies.
type Registry struct {
	devices []*telemetry.Device
	index   map[string]int
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	rand *rand.Rand
}

// WithRand sets the source used to draw initial bandwidth for seeds without one.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rand = r }
}

// New builds a registry from seed entries. Invalid seeds (duplicate or empty
// ids, missing names or addresses) yield a *config.ConfigError.
func New(seeds []config.Device, opts ...Option) (*Registry, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if err := config.ValidateDevices(seeds); err != nil {
		return nil, err
	}

	gen := telemetry.NewGenerator(o.rand, 0)
	r := &Registry{index: make(map[string]int, len(seeds))}
	for i, s := range seeds {
		d := &telemetry.Device{
			ID:      s.ID,
			Name:    s.Name,
			Address: s.Address,
			Status:  telemetry.StatusOnline,
		}
		if len(s.Meta) > 0 {
			d.Meta = make(map[string]string, len(s.Meta))
			for k, v := range s.Meta {
				d.Meta[k] = v
			}
		}
		if s.InitialStatus != "" {
			st, err := telemetry.ParseStatus(s.InitialStatus)
			if err != nil {
				return nil, &config.ConfigError{Field: "devices", Reason: "bad initial status", Err: err}
			}
			d.Status = st
		}
		switch {
		case d.Status == telemetry.StatusOffline:
			d.Bandwidth = 0
		case s.InitialBandwidth != nil:
			d.Bandwidth = *s.InitialBandwidth
		default:
			d.Bandwidth = gen.InitialBandwidth()
		}
		r.devices = append(r.devices, d)
		r.index[s.ID] = i
	}
	return r, nil
}

// List returns copies of all devices in registry order.
func (r *Registry) List() []telemetry.Device {
	out := make([]telemetry.Device, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Clone()
	}
	return out
}

// IDs returns device ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.devices))
	for i, d := range r.devices {
		ids[i] = d.ID
	}
	return ids
}

// Live returns the mutable device set. Only the simulator may call it.
func (r *Registry) Live() []*telemetry.Device {
	return r.devices
}

// Lookup returns the registry position of id.
func (r *Registry) Lookup(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// Len returns the number of devices.
func (r *Registry) Len() int { return len(r.devices) }
