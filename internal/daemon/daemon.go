/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package daemon wires Undertone's subsystems together: persistence, the
// Graph Engine, the Mixer Core, the Router, device-control glue, the IPC
// Server, and the metrics server, in the startup and shutdown order
// spec.md §5/§7 require.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/config"
	"github.com/friendsincode/grimnir_radio/internal/device"
	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/ipc"
	"github.com/friendsincode/grimnir_radio/internal/metricsserver"
	"github.com/friendsincode/grimnir_radio/internal/mixer"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/friendsincode/grimnir_radio/internal/router"
	"github.com/friendsincode/grimnir_radio/internal/store"
	"github.com/rs/zerolog"
)

// Daemon bundles every long-lived subsystem and the order to close them in.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger

	store         *store.Store
	bus           *events.Bus
	engine        *graph.Engine
	mixer         *mixer.Mixer
	router        *router.Router
	device        *device.Controller
	ipcServer     *ipc.Server
	metricsServer *metricsserver.Server

	closers []func() error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	startErr chan error
}

// New opens the store, hydrates the Mixer Core and Router from persisted
// state, and wires every subsystem. It does not start background loops;
// call Run for that.
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		bus:      events.NewBus(),
		startErr: make(chan error, 1),
	}

	if err := d.initDependencies(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Daemon) initDependencies() error {
	st, err := store.Open(d.cfg.DBPath, d.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st
	d.DeferClose(st.Close)

	ctx := context.Background()
	if err := st.SeedChannels(ctx); err != nil {
		return fmt.Errorf("seed channels: %w", err)
	}

	channelStates, err := st.LoadChannelStates(ctx)
	if err != nil {
		return fmt.Errorf("load channel states: %w", err)
	}
	if len(channelStates) == 0 {
		channelStates = model.NewDefaultChannelStates(d.cfg.DefaultChannelVolume)
	}
	masterStates, err := st.LoadMasterStates(ctx)
	if err != nil {
		return fmt.Errorf("load master states: %w", err)
	}
	explicitRoutes, err := st.LoadAppRoutes(ctx)
	if err != nil {
		return fmt.Errorf("load app routes: %w", err)
	}

	rules := make([]router.PatternRule, 0, len(d.cfg.AppRuleSeeds()))
	for _, seed := range d.cfg.AppRuleSeeds() {
		rules = append(rules, router.PatternRule{Pattern: seed.Pattern, Channel: model.Channel(seed.Channel)})
	}

	backend := graph.NewPWBackend(d.cfg.PipewireSocket, d.logger)

	latency := metricsserver.CommandLatencyHistogram()
	d.engine = graph.NewEngine(backend, d.bus, d.logger, graph.Config{
		BoundDeadline: d.cfg.BoundDeadline,
		ReconnectInit: d.cfg.ReconnectInit,
		ReconnectCap:  d.cfg.ReconnectCap,
		OnCommandExecuted: func(elapsed time.Duration) {
			latency.Observe(elapsed.Seconds())
		},
	})

	d.mixer = mixer.New(d.engine, st, d.bus, d.logger, channelStates, masterStates)
	d.router = router.New(d.engine, st, d.bus, d.logger, explicitRoutes, rules)

	identity, _ := device.Identify(device.ElgatoWave3VendorID, device.ElgatoWave3ProductID)
	d.device = device.NewController(d.cfg.MicMixerBin, d.cfg.MicControlNames, identity, d.logger)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	d.ipcServer = ipc.NewServer(d.cfg.SocketPath, ipc.Deps{
		Mixer:  d.mixer,
		Router: d.router,
		Engine: d.engine,
		Store:  st,
		Device: d.device,
		Bus:    d.bus,
	}, d.logger, shutdownCancel)
	d.DeferClose(func() error { shutdownCancel(); return nil })
	// A client's Shutdown request ends Run the way a subsystem exit does,
	// with a nil error.
	go func() {
		<-shutdownCtx.Done()
		select {
		case d.startErr <- nil:
		default:
		}
	}()

	collector := metricsserver.NewCollector(d.engine, time.Now())
	d.metricsServer = metricsserver.NewServer(d.cfg.MetricsBind, collector, d.logger)
	d.metricsServer.Registry().MustRegister(latency)

	return nil
}

// DeferClose registers a cleanup hook, run in reverse registration order by
// Close.
func (d *Daemon) DeferClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Run starts every background loop (Graph Engine, Router, IPC Server,
// metrics server) and blocks until ctx is cancelled or a subsystem exits
// with an error. On return every background loop has stopped.
func (d *Daemon) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	d.bgCancel = cancel

	d.spawn(func() error { return d.engine.Run(bgCtx) })
	d.spawn(func() error { d.router.Run(bgCtx); return nil })
	d.spawn(func() error { return d.ipcServer.ListenAndServe(bgCtx) })
	d.spawn(func() error { return d.metricsServer.ListenAndServe(bgCtx) })

	select {
	case <-ctx.Done():
		cancel()
		d.bgWG.Wait()
		return nil
	case err := <-d.startErr:
		cancel()
		d.bgWG.Wait()
		return err
	}
}

func (d *Daemon) spawn(fn func() error) {
	d.bgWG.Add(1)
	go func() {
		defer d.bgWG.Done()
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("daemon subsystem exited")
			select {
			case d.startErr <- err:
			default:
			}
		}
	}()
}

// Close releases owned resources in reverse dependency order: IPC server
// and metrics server first (stop accepting new work), then the store.
func (d *Daemon) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(d.ipcServer.Close())
	record(d.metricsServer.Close())

	for i := len(d.closers) - 1; i >= 0; i-- {
		record(d.closers[i]())
	}
	return firstErr
}
