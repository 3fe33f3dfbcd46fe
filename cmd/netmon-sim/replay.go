package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"netmon-sim/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a sample log file",
	Long:  "replay feeds sample rows from a JSONL log file back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		rt, log, err := runtimeFor(cmd, false)
		if err != nil {
			return err
		}
		tw, _, cleanup, err := newWriters(nil, writerOptions{
			PrintOnly: replayPrintOnly,
			Color:     term.IsTerminal(int(os.Stdout.Fd())),
			Endpoint:  rt.GreptimeEndpoint,
			Database:  rt.GreptimeDatabase,
		})
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log.Info("replaying samples", "input", replayInput, "speed", replaySpeed)
		return sim.ReplayLogFile(ctx, replayInput, tw, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to sample log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print samples to STDOUT instead of writing to DB")
	replayCmd.MarkFlagRequired("input")
}
