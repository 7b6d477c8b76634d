// Package daemon implements the daemon subcommand: the long-running
// analyzer process.
package daemon

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/daemon"
)

// Command returns the daemon subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the analyzer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.Setting()
			d, err := daemon.New(settings)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}
}
