/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Command undertoned is the Undertone daemon: it owns the graph connection,
// the mixer/router state, the persistent store, and the control socket.
// See spec.md §6 for the exit code contract this main enforces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/friendsincode/grimnir_radio/internal/config"
	"github.com/friendsincode/grimnir_radio/internal/daemon"
	"github.com/friendsincode/grimnir_radio/internal/logging"
)

const (
	exitOK               = 0
	exitFatalInit        = 71
	exitGraphUnreachable = 74
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "undertoned: config error: %v\n", err)
		return exitFatalInit
	}

	logger := logging.Setup(cfg.Environment)
	for _, warning := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warning)
	}
	logger.Info().Str("socket", cfg.SocketPath).Str("db", cfg.DBPath).Msg("undertoned starting")

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize daemon")
		return exitFatalInit
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		if strings.Contains(err.Error(), "connect graph backend") {
			return exitGraphUnreachable
		}
		return exitFatalInit
	}

	logger.Info().Msg("undertoned stopped")
	return exitOK
}
