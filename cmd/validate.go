package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergency-sim/edsim/sim"
)

// validateCmd checks a configuration file without starting the engine.
var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Validate an engine configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := sim.LoadConfig(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: ok\n", args[0])
		fmt.Fprintf(out, "  intake capacity      : %d\n", cfg.IntakeQueueCapacity)
		fmt.Fprintf(out, "  triage workers       : %d\n", cfg.InitialTriageWorkers)
		fmt.Fprintf(out, "  permanent workers    : %d (shift %s)\n", cfg.PermanentServiceWorkers, cfg.ShiftLength())
		fmt.Fprintf(out, "  dispatch high / low  : %d / %d\n", cfg.DispatchHighWaterMark, cfg.LowWaterMark())
		fmt.Fprintf(out, "  autoscale            : %s every %s\n", cfg.AutoscaleMode, cfg.AutoscaleInterval)
		return nil
	},
}
