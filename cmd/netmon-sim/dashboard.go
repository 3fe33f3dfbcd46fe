package main

import (
	"github.com/spf13/cobra"

	"netmon-sim/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards",
	Long:  "dashboard renders Grafana dashboards for the GreptimeDB tables; GREPTIMEDB_DATASOURCE_UID must be set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Render(dashboardOut)
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
