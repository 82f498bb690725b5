/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package metricsserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes /healthz and /metrics on a loopback-only HTTP listener.
// It carries no mutating endpoints; every write to daemon state continues
// to flow exclusively through internal/ipc.
type Server struct {
	bind     string
	registry *prometheus.Registry
	logger   zerolog.Logger

	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}
}

// NewServer builds a Server bound to bind (host:port, loopback expected),
// registering collector and the standard process/Go runtime collectors.
func NewServer(bind string, collector *Collector, logger zerolog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &Server{
		bind:     bind,
		registry: registry,
		logger:   logger.With().Str("component", "metrics_server").Logger(),
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ready: make(chan struct{}),
	}
}

// Registry exposes the underlying prometheus.Registry, for registering
// additional collectors (such as the graph-command-latency histogram)
// before ListenAndServe is called.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// ListenAndServe binds the HTTP listener and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.listener = listener
	close(s.ready)

	s.logger.Info().Str("bind", s.bind).Msg("metrics server listening")

	go func() {
		<-ctx.Done()
		_ = s.httpServer.Close()
	}()

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr blocks until the listener is bound (or ctx is cancelled) and returns
// its address, for tests and for logging the resolved port when bind uses
// port 0.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		return s.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the HTTP listener down immediately.
func (s *Server) Close() error {
	return s.httpServer.Close()
}
