// Command bootstrap prepares the database for a deploy: it creates missing
// tables, reconciles late columns and indexes, seeds defaults and exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/baswilson/navsite/internal/app"
	"github.com/baswilson/navsite/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	cmd := &cobra.Command{
		Use:           "bootstrap",
		Short:         "Create or upgrade the navsite schema and seed defaults",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			cfg, err := app.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel, cfg.IsProduction())

			store, err := app.Bootstrap(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			return store.Close()
		},
	}
	app.BindFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
