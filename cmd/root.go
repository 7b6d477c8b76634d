// Package cmd implements the analyzer CLI.
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sonoptix/photoacoustic-go/cmd/daemon"
	"github.com/sonoptix/photoacoustic-go/cmd/devices"
	"github.com/sonoptix/photoacoustic-go/cmd/simulate"
	"github.com/sonoptix/photoacoustic-go/internal/conf"
	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

var configPath string

// Execute runs the root command.
func Execute() error {
	rootCmd := &cobra.Command{
		Use:   "photoacoustic",
		Short: "Photoacoustic water-vapor analyzer",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := conf.Load(configPath)
		if err != nil {
			return err
		}
		logging.Init(logging.Options{
			LogDir:    settings.Main.Log.Directory,
			MaxSizeMB: settings.Main.Log.MaxSizeMB,
			Level:     parseLevel(settings.Main.Log.Level),
		})
		return nil
	}

	rootCmd.AddCommand(daemon.Command())
	rootCmd.AddCommand(devices.Command())
	rootCmd.AddCommand(simulate.Command())
	return rootCmd.Execute()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
