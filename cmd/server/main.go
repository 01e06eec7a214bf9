package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baswilson/navsite/internal/app"
	"github.com/baswilson/navsite/internal/cache"
	"github.com/baswilson/navsite/internal/logging"
	"github.com/baswilson/navsite/internal/server"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "navsite",
		Short:         "Serve the navigation site API and web client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	app.BindFlags(cmd.Flags())
	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().String("web-dir", "", "directory of the built web client")
	cmd.Flags().String("redis-url", "", "Redis URL for the response cache, or \"memory\"")
	return cmd
}

func run(cmd *cobra.Command) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := app.LoadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.IsProduction())
	if cfg.File != "" {
		logger.Info().Str("file", cfg.File).Msg("config loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	respCache, closeCache, err := cache.Open(ctx, cfg.RedisURL, cache.DefaultTTL)
	if err != nil {
		return err
	}
	defer closeCache()

	srv := server.New(cfg, store, server.WithLogger(logger), server.WithCache(respCache))
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("env", cfg.Env).
			Bool("cache", cfg.RedisURL != "").
			Msg("navsite started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("stopped")
	return nil
}
