// Package devices implements the devices subcommand: capture device
// enumeration.
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sonoptix/photoacoustic-go/internal/acquisition"
)

// Command returns the devices subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := acquisition.ListCaptureDevices()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("no capture devices found")
				return nil
			}
			for i, name := range names {
				fmt.Printf("%2d: %s\n", i, name)
			}
			return nil
		},
	}
}
