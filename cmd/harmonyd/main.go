// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Harmonyd is the client session manager for a line-oriented music
// control daemon. It accepts connections on a single TCP listener,
// drives every session through a single-threaded epoll reactor, and
// optionally serves a read-only CBOR admin snapshot on a Unix socket
// and an on-disk session history trail.
//
// On startup:
//  1. Loads configuration from HARMONYD_CONFIG or --config.
//  2. Validates the configuration's required tunables.
//  3. Builds the reactor, admin snapshot server, and history log.
//  4. Runs until SIGINT/SIGTERM, then shuts every subsystem down.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/harmonyd/harmonyd/internal/command"
	"github.com/harmonyd/harmonyd/internal/history"
	"github.com/harmonyd/harmonyd/internal/reactor"
	"github.com/harmonyd/harmonyd/lib/clock"
	"github.com/harmonyd/harmonyd/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath      string
		historyInterval time.Duration
		sweepInterval   time.Duration
	)
	pflag.StringVar(&configPath, "config", "", "path to harmonyd.yaml (overrides HARMONYD_CONFIG)")
	pflag.DurationVar(&historyInterval, "history-flush-interval", 30*time.Second, "how often to flush the session history log to disk")
	pflag.DurationVar(&sweepInterval, "sweep-interval", 5*time.Second, "how often to sweep expired sessions")
	pflag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureHistoryDir(); err != nil {
		return err
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	hist := history.New(1024, clk)
	if cfg.HistoryDir != "" {
		hist.EnableFlush(cfg.HistoryDir)
		go hist.Run(ctx, historyInterval)
	}

	manager, err := reactor.New(reactor.Options{
		ListenAddress:     cfg.ListenAddress,
		ConnectionTimeout: time.Duration(cfg.ConnectionTimeout) * time.Second,
		MaxConnections:    cfg.MaxConnections,
		CommandListLimit:  cfg.MaxCommandListSizeBytes(),
		OutputBufferLimit: cfg.MaxOutputBufferSizeBytes(),
	}, command.NewDefault(clk.Now()), hist, clk, logger)
	if err != nil {
		return fmt.Errorf("starting reactor: %w", err)
	}

	var snapshotServer *reactor.SnapshotServer
	if cfg.AdminSocketPath != "" {
		snapshotServer, err = reactor.NewSnapshotServer(manager, cfg.AdminSocketPath, logger)
		if err != nil {
			return fmt.Errorf("starting admin snapshot server: %w", err)
		}
		go snapshotServer.Serve()
	}

	go sweepLoop(ctx, clk, sweepInterval, manager)

	logger.Info("harmonyd starting",
		"listen_address", cfg.ListenAddress,
		"admin_socket_path", cfg.AdminSocketPath,
		"environment", cfg.Environment,
		"max_connections", cfg.MaxConnections,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- manager.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("reactor exited", "error", err)
		}
		if snapshotServer != nil {
			snapshotServer.Close()
		}
		return err
	}

	manager.Shutdown()
	<-errCh
	if snapshotServer != nil {
		snapshotServer.Close()
	}
	if cfg.HistoryDir != "" {
		if path, err := hist.Flush(); err != nil {
			logger.Warn("final history flush failed", "error", err)
		} else if path != "" {
			logger.Info("final history flush", "path", path)
		}
	}
	logger.Info("harmonyd stopped")
	return nil
}

// loadConfig honors --config over HARMONYD_CONFIG: a single required
// file with no silent fallback (lib/config.Load documents why).
func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.LoadFile(explicitPath)
	}
	return config.Load()
}

// newLogger picks an environment-conditioned slog setup:
// human-readable text for local development, structured JSON once
// deployed.
func newLogger(env config.Environment) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == config.Development {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// sweepLoop periodically evicts sessions that have exceeded the
// connection timeout without an outstanding idle wait, independent of
// the reactor's readiness cadence so a fully idle listener with no
// socket activity still times out stalled sessions.
func sweepLoop(ctx context.Context, clk clock.Clock, interval time.Duration, m *reactor.Manager) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ExpirySweep()
		}
	}
}
