// Package main runs the bridge HTTP service: live prices, quotes, deposit
// submission and the admin fulfillment endpoints.
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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"megabridge/internal/api"
	"megabridge/internal/app"
	"megabridge/internal/config"
	"megabridge/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile, envFile string

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Run the MegaETH bridge API",
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			return config.ReadFile(v, configFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := run(cfg, logger.Named("server")); err != nil {
				logger.Error("server exited", zap.Error(err))
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (yaml, json, toml)")
	flags.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	flags.String("listen-addr", ":5000", "HTTP listen address")
	flags.String("postgres-dsn", "", "PostgreSQL connection string for the ledger")
	flags.String("clickhouse-dsn", "", "ClickHouse connection string for price history (optional)")
	flags.Bool("use-memory", false, "Use an in-memory ledger instead of PostgreSQL")
	flags.Int("adapter-retries", 0, "Retries per price source request (0-5)")
	flags.String("log-level", "info", "Log level")
	flags.Bool("log-development", false, "Human-readable console logs")

	bindFlags(v, cmd, map[string]string{
		"listen-addr":     config.KeyListenAddr,
		"postgres-dsn":    config.KeyPostgresDSN,
		"clickhouse-dsn":  config.KeyClickHouseDSN,
		"use-memory":      config.KeyUseMemory,
		"adapter-retries": config.KeyAdapterRetries,
		"log-level":       config.KeyLogLevel,
		"log-development": config.KeyLogDevelopment,
	})
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger, app.Options{WithHistory: true})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	srv := api.NewServer(api.Options{
		Cache:      a.Cache,
		Quotes:     a.Quotes,
		Bridge:     a.Bridge,
		History:    a.History,
		Sources:    a.Aggregator.Sources(),
		AdminToken: cfg.AdminToken,
		Logger:     logger.Named("api"),
	})
	defer srv.Close()

	if cfg.AdminToken == "" {
		logger.Warn("admin endpoints are unauthenticated; set admin_token to protect them")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Warm the cache so the first request is served from it.
	go a.Cache.Refresh(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.Strings("sources", a.Aggregator.Sources()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	// Second signal forces exit.
	go func() {
		sig := <-sigCh
		logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
