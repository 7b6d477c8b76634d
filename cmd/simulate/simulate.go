// Package simulate implements the simulate subcommand: the analyzer
// pipeline driven by the synthetic source, for bench and demo use without
// hardware.
package simulate

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/daemon"
)

// Command returns the simulate subcommand.
func Command() *cobra.Command {
	var (
		frequency   float64
		correlation float64
		noiseLevel  float64
		duration    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the analyzer against the simulated source",
		Long: "Runs the full daemon pipeline with the synthetic stereo generator " +
			"in place of hardware input, regardless of the configured input device or file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.Setting()

			// Force the synthetic source; flags override the configured
			// generator parameters when set.
			settings.Photoacoustic.InputDevice = ""
			settings.Photoacoustic.InputFile = ""
			settings.Photoacoustic.SimulatedSource.Enabled = true
			if cmd.Flags().Changed("frequency") {
				settings.Photoacoustic.SimulatedSource.Frequency = frequency
			}
			if cmd.Flags().Changed("correlation") {
				settings.Photoacoustic.SimulatedSource.Correlation = correlation
			}
			if cmd.Flags().Changed("noise-level") {
				settings.Photoacoustic.SimulatedSource.NoiseLevel = noiseLevel
			}
			if err := conf.Validate(settings); err != nil {
				return err
			}

			d, err := daemon.New(settings)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return d.Run(ctx)
		},
	}

	cmd.Flags().Float64Var(&frequency, "frequency", 2000.0, "generator frequency in Hz")
	cmd.Flags().Float64Var(&correlation, "correlation", 0.9, "inter-channel correlation in [0,1]")
	cmd.Flags().Float64Var(&noiseLevel, "noise-level", 0.01, "additive white-noise amplitude")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}
