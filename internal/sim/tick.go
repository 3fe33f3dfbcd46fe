package sim

import (
	"context"
	"errors"
	"time"

	"netmon-sim/internal/logging"
)

// Run starts the simulation loop and stops when the context is done.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "cluster_id", s.clusterID, "tick_interval", s.tickInterval, "devices", len(s.devices))
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.Tick()
			if errors.Is(err, ErrStopped) {
				log.Info("simulator shut down")
				return
			}
			if len(res.Transitions) > 0 {
				log.Debug("tick", "transitions", len(res.Transitions), "ts", res.Snapshot.Timestamp)
			}
		case <-ctx.Done():
			log.Info("stopping simulator", "ticks", s.TickCount())
			return
		}
	}
}
