/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/friendsincode/grimnir_radio/internal/device"
	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/mixer"
	"github.com/friendsincode/grimnir_radio/internal/router"
	"github.com/friendsincode/grimnir_radio/internal/store"
	"github.com/rs/zerolog"
)

// clientFacingEvents is the fixed set of event types a Subscribe client
// fans in, matching spec.md §4.4's event list exactly.
var clientFacingEvents = []events.EventType{
	events.EventChannelVolumeChanged,
	events.EventChannelMuteChanged,
	events.EventMasterChanged,
	events.EventDeviceConnected,
	events.EventDeviceDisconnected,
	events.EventAppAppeared,
	events.EventAppDisappeared,
	events.EventAppRouteChanged,
	events.EventProfileListChanged,
	events.EventProfileLoaded,
}

// Server is the IPC Server.
type Server struct {
	socketPath string
	listener   net.Listener

	mixer  *mixer.Mixer
	router *router.Router
	engine *graph.Engine
	store  *store.Store
	device *device.Controller
	bus    *events.Bus
	logger zerolog.Logger

	requestShutdown context.CancelFunc

	wg sync.WaitGroup
}

// Deps bundles the subsystems the IPC Server dispatches requests into.
type Deps struct {
	Mixer  *mixer.Mixer
	Router *router.Router
	Engine *graph.Engine
	Store  *store.Store
	Device *device.Controller
	Bus    *events.Bus
}

// NewServer builds a Server bound to socketPath (not yet listening).
// requestShutdown is invoked when a client issues Shutdown; the caller
// (internal/daemon) owns interpreting that as "begin graceful shutdown."
func NewServer(socketPath string, deps Deps, logger zerolog.Logger, requestShutdown context.CancelFunc) *Server {
	return &Server{
		socketPath:      socketPath,
		mixer:           deps.Mixer,
		router:          deps.Router,
		engine:          deps.Engine,
		store:           deps.Store,
		device:          deps.Device,
		bus:             deps.Bus,
		logger:          logger.With().Str("component", "ipc_server").Logger(),
		requestShutdown: requestShutdown,
	}
}

// ListenAndServe binds the Unix stream socket (mode 0600, owner only) and
// accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	// A stale socket file from an unclean prior exit must not block bind.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod %s: %w", s.socketPath, err)
	}
	s.listener = listener

	s.logger.Info().Str("socket", s.socketPath).Msg("ipc server listening")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting connections and removes the socket file. In-flight
// connections are left to drain on their own context cancellation.
func (s *Server) Close() error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	return os.Remove(s.socketPath)
}
