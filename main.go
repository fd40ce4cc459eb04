// analytics/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"bahr/analytics/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "bahr",
		Short: "Analyse Arabic verse and track usage",
		Long: `bahr submits verses to the analysis service and records usage telemetry
for the current session. "bahr serve" runs the telemetry collector.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	cmd.AddCommand(
		newServeCmd(cfg),
		newAnalyzeCmd(cfg),
		newExamplesCmd(cfg),
		newExampleCmd(cfg),
		newResetCmd(cfg),
		newStatsCmd(cfg),
	)
	return cmd
}
