package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"netmon-sim/internal/admin"
	"netmon-sim/internal/aggregator"
	"netmon-sim/internal/config"
	"netmon-sim/internal/logging"
	"netmon-sim/internal/registry"
	"netmon-sim/internal/scenario"
	"netmon-sim/internal/sim"
)

var (
	simPrintOnly  bool
	simConfigPath string
	simSchemaPath string
	simLogFile    string
	simTUI        bool
	simScenario   string
	simSeed       int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the real-time device simulator",
	Long:  "simulate ticks the device fleet, serves the monitoring dashboard and exports samples and events.",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.BoolVar(&simPrintOnly, "print-only", false, "Print samples to STDOUT instead of writing to DB")
	f.StringVar(&simConfigPath, "config", "config/devices.yaml", "Path to device configuration YAML")
	f.StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	f.StringVar(&simLogFile, "log-file", "", "Path to export samples (JSONL); events go to <path>.logs")
	f.BoolVar(&simTUI, "tui", false, "Render the fleet in a terminal UI")
	f.StringVar(&simScenario, "scenario", "", "Built-in scenario name or path to a scenario YAML")
	f.Int64Var(&simSeed, "seed", 0, "Random seed (0 picks one from the clock)")
	f.String("cluster-id", "", "Cluster identity stamped on exported rows")
	f.Duration("tick", 0, "Tick interval (e.g. 500ms, 2s)")
	f.String("listen", ":8080", "Dashboard listen address")
}

func loadDeviceConfig(cmd *cobra.Command) (*config.SimulationConfig, error) {
	cfg, err := config.Load(simConfigPath, simSchemaPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		slog.Warn("no device configuration found, using built-in devices", "path", simConfigPath)
		return config.Default(), nil
	}
	return nil, err
}

func loadScenario(name string) (*scenario.Scenario, error) {
	if arc, ok := scenario.BuiltIn()[name]; ok {
		return &arc, nil
	}
	return scenario.Load(name)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	rt, log, err := runtimeFor(cmd, simTUI)
	if err != nil {
		return err
	}
	cfg, err := loadDeviceConfig(cmd)
	if err != nil {
		return err
	}
	rt.Apply(cfg)

	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	reg, err := registry.New(cfg.Devices, registry.WithRand(rand.New(rand.NewSource(seed))))
	if err != nil {
		return err
	}

	simulator := sim.NewSimulator(cfg.ClusterID, reg,
		sim.WithRand(rand.New(rand.NewSource(seed+1))),
		sim.WithFlipProbability(cfg.Flip()),
		sim.WithTickInterval(cfg.TickInterval()),
		sim.WithLogger(log),
	)
	agg := aggregator.New(reg.IDs(),
		aggregator.WithHistoryCapacity(cfg.HistoryCapacity),
		aggregator.WithLogCapacity(cfg.LogCapacity),
		aggregator.WithDeviceMeta(reg.List()),
		aggregator.WithLogger(log),
		aggregator.WithReadGate(simulator.ReadGate()),
	)

	tw, lw, cleanup, err := newWriters(cfg, writerOptions{
		PrintOnly: simPrintOnly,
		Color:     term.IsTerminal(int(os.Stdout.Fd())),
		TUI:       simTUI,
		LogFile:   simLogFile,
		Endpoint:  rt.GreptimeEndpoint,
		Database:  rt.GreptimeDatabase,
	})
	if err != nil {
		return err
	}
	defer cleanup()
	sinks := sim.NewWriterObserver(cfg.ClusterID, tw, lw, 0)

	srv := admin.NewServer(cfg.ClusterID, simulator, agg, log)

	simulator.Subscribe(agg)
	simulator.Subscribe(sinks)
	simulator.Subscribe(srv)
	agg.SubscribeLogs(sinks.OnLog)
	agg.SubscribeLogs(srv.OnLog)

	if simScenario != "" {
		sc, err := loadScenario(simScenario)
		if err != nil {
			return err
		}
		simulator.Subscribe(scenario.NewRunner(sc, simulator, scenario.WithJournal(agg), scenario.WithLogger(log)))
		log.Info("scenario loaded", "name", sc.Name, "phases", len(sc.Phases))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, log)

	sinksDone := make(chan struct{})
	go func() {
		sinks.Run(ctx)
		close(sinksDone)
	}()
	go simulator.Run(ctx)

	if as, ok := tw.(sim.AdminStatusWriter); ok {
		as.SetAdminStatus(true)
	}
	serveErr := srv.Start(ctx, rt.ListenAddr)
	if serveErr != nil {
		stop()
	}

	<-ctx.Done()
	simulator.Shutdown()
	<-sinksDone
	log.Info("device simulation stopped", "ticks", simulator.TickCount(), "dropped_sink_events", sinks.Dropped(), "dropped_ws_frames", srv.Dropped())
	if serveErr != nil {
		return fmt.Errorf("serve dashboard: %w", serveErr)
	}
	return nil
}
