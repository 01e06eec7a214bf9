// Package app holds the startup sequence shared by the commands: flags,
// configuration, database bootstrap and seeding.
package app

import (
	"context"
	"fmt"

	"github.com/baswilson/navsite/internal/config"
	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/seed"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// BindFlags registers the flags that override configuration values
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: ./"+config.DefaultConfigFile+" if present)")
	fs.String("env", "", "environment: development or production")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("db-type", "", "database engine: sqlite or postgres")
	fs.String("db-path", "", "SQLite database file")
	fs.String("database-url", "", "PostgreSQL connection URL")
}

// LoadConfig reads and validates the configuration for a command
func LoadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfgFile, _ := fs.GetString("config")
	cfg, err := config.Load(cfgFile, fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Bootstrap opens the database, brings the schema up to date and seeds it.
// The caller owns the returned store.
func Bootstrap(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.Store, error) {
	store := database.NewStore(cfg.Database(), database.WithLogger(logger))
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err := seed.Run(ctx, store, seed.Options{
		AdminUsername: cfg.Admin.Username,
		AdminPassword: cfg.Admin.Password,
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	logger.Info().
		Str("engine", string(store.Dialect())).
		Msg("database ready")
	return store, nil
}
