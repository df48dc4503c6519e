package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	libtelemetry "nsemarket-backend/lib/telemetry"
)

var (
	configPath string
	cfg        Config
	otelSetup  libtelemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "nsescraper",
	Short: "nsescraper scrapes Nairobi Securities Exchange listings from stockanalysis.com.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := LoadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		cfg = loaded
		libtelemetry.InitSlog(cfg.LogLevel, cfg.LogJSON)

		otelSetup, err = libtelemetry.SetupFromEnv(cmd.Context(), "nsescraper")
		if err != nil {
			slog.Warn("failed to set up opentelemetry, continuing without it", "err", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		err := otelSetup.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush opentelemetry", "err", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "The configuration file to read.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
