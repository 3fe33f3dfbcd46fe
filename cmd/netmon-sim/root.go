package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"netmon-sim/internal/config"
	"netmon-sim/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "netmon-sim",
	Short: "Network device monitoring simulator",
	Long:  "netmon-sim simulates a fleet of network devices and serves a live monitoring dashboard.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// runtimeFor resolves runtime settings for cmd and installs the default
// logger. quiet discards log output, for modes that own the terminal.
func runtimeFor(cmd *cobra.Command, quiet bool) (*config.Runtime, *slog.Logger, error) {
	rt, err := config.LoadRuntime(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	var out io.Writer = os.Stderr
	if quiet {
		out = io.Discard
	}
	log := logging.NewWithWriter(out, rt.LogLevel, rt.LogFormat)
	slog.SetDefault(log)
	return rt, log, nil
}
