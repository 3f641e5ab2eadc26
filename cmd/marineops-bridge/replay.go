package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marineops-bridge/internal/telemetry"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <log-dir>",
	Short: "Replay a vehicle transition log",
	Long:  "replay writes the transitions of a log directory to STDOUT as JSON lines, paced by vehicle time.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := telemetry.ReplayLogDir(cmd.Context(), args[0], telemetry.NewJSONWriter(cmd.OutOrStdout()), replaySpeed)
		logger.Info().Int("transitions", n).Msg("replay finished")
		if err != nil {
			return fmt.Errorf("replay %s: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 disables pacing)")
}
