package main

import (
	"netmon-sim/internal/config"
	"netmon-sim/internal/sim"
)

// writerOptions selects the sinks fed by the simulator.
type writerOptions struct {
	PrintOnly bool
	Color     bool
	TUI       bool
	LogFile   string
	Endpoint  string
	Database  string
}

// newWriters sets up sample and log writers based on flags and runtime
// settings. It returns the writers and a cleanup function to close any
// resources.
func newWriters(cfg *config.SimulationConfig, opts writerOptions) (sim.TelemetryWriter, sim.LogWriter, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	tw, lw, closer, err := baseWriters(cfg, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	if opts.LogFile == "" {
		return tw, lw, cleanup, nil
	}

	fw, err := sim.NewFileWriter(opts.LogFile, opts.LogFile+".logs")
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	closers = append(closers, fw.Close)
	mw := sim.NewMultiWriter([]sim.TelemetryWriter{tw, fw}, []sim.LogWriter{lw, fw})
	return mw, mw, cleanup, nil
}

// baseWriters chooses the primary sink: the TUI, STDOUT or GreptimeDB.
func baseWriters(cfg *config.SimulationConfig, opts writerOptions) (sim.TelemetryWriter, sim.LogWriter, func() error, error) {
	if opts.TUI {
		w := sim.NewTUIWriter(cfg)
		return w, w, w.Close, nil
	}
	if opts.PrintOnly || opts.Endpoint == "" {
		tw, lw := sim.NewStdoutWriters(cfg, opts.Color)
		return tw, lw, nil, nil
	}
	w, err := sim.NewGreptimeDBWriter(opts.Endpoint, opts.Database, "", "")
	if err != nil {
		return nil, nil, nil, err
	}
	return w, w, nil, nil
}
