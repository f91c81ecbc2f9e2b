package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emergency-sim/edsim/sim"
	"github.com/emergency-sim/edsim/sim/command"
	"github.com/emergency-sim/edsim/sim/workload"
)

var generatePace bool // Emit lines at their arrival offsets

// generateCmd prints a synthetic workload as protocol lines, ready to be
// piped into `edsim run`.
var generateCmd = &cobra.Command{
	Use:   "generate <workload.yaml>",
	Short: "Print a synthetic patient stream in the input line format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := workload.LoadSpec(args[0])
		if err != nil {
			return err
		}
		arrivals, err := workload.Generate(spec)
		if err != nil {
			return err
		}
		_, err = writeArrivals(cmd.Context(), cmd.OutOrStdout(), arrivals, generatePace)
		return err
	},
}

// writeArrivals prints one protocol line per arrival.
func writeArrivals(ctx context.Context, w io.Writer, arrivals []workload.Arrival, pace bool) (workload.ReplayResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return workload.Replay(ctx, arrivals, pace, func(_ context.Context, p sim.Patient) error {
		_, err := fmt.Fprintln(w, command.FormatPatient(p))
		return err
	})
}

func init() {
	generateCmd.Flags().BoolVar(&generatePace, "pace", false, "Emit each line at its arrival time instead of all at once")
}
