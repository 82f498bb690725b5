/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/rs/zerolog"
)

// Config bounds the Engine's timing behaviour.
type Config struct {
	BoundDeadline time.Duration // default 2s
	ReconnectInit time.Duration // default 250ms
	ReconnectCap  time.Duration // default 10s

	// OnCommandExecuted, if set, is called on the graph thread with each
	// command's run time, for internal/metricsserver's latency histogram.
	// Left nil outside of daemon wiring; never required for correctness.
	OnCommandExecuted func(time.Duration)
}

// command is one unit of work executed on the graph thread.
type command struct {
	run   func(ctx context.Context) (any, error)
	reply chan commandResult
}

type commandResult struct {
	value any
	err   error
}

// Engine is the only component allowed to touch the audio-graph backend.
// All backend calls happen on the goroutine running Run; everything else
// reaches it through Submit, a many-producer/single-consumer queue with a
// one-shot reply channel per command.
type Engine struct {
	backend Backend
	bus     *events.Bus
	logger  zerolog.Logger
	cfg     Config

	cmdCh chan *command

	mu    sync.RWMutex
	nodes map[uint32]*NodeInfo
	ports map[uint32]*PortInfo
	links map[uint32]*LinkInfo

	ownedMu       sync.RWMutex
	channelSinks  map[model.Channel]NodeHandle
	mixSinks      map[model.Mix]NodeHandle
	filters       map[model.Channel]map[model.Mix]NodeHandle
	internalLinks []LinkHandle
	externalLinks []LinkHandle

	// monitorOutputNode is the monitor-output device name relinked after a
	// rebuild; set by the Mixer Core via SetMonitorOutputDevice and read
	// only on the graph thread.
	monitorOutputNode string

	connected      atomic.Bool
	reconnectCount atomic.Uint64
}

// NewEngine wires an Engine around backend, publishing mirror-derived events
// onto bus.
func NewEngine(backend Backend, bus *events.Bus, logger zerolog.Logger, cfg Config) *Engine {
	if cfg.BoundDeadline == 0 {
		cfg.BoundDeadline = 2 * time.Second
	}
	if cfg.ReconnectInit == 0 {
		cfg.ReconnectInit = 250 * time.Millisecond
	}
	if cfg.ReconnectCap == 0 {
		cfg.ReconnectCap = 10 * time.Second
	}
	return &Engine{
		backend:      backend,
		bus:          bus,
		logger:       logger.With().Str("component", "graph_engine").Logger(),
		cfg:          cfg,
		cmdCh:        make(chan *command, 64),
		nodes:        make(map[uint32]*NodeInfo),
		ports:        make(map[uint32]*PortInfo),
		links:        make(map[uint32]*LinkInfo),
		channelSinks: make(map[model.Channel]NodeHandle),
		mixSinks:     make(map[model.Mix]NodeHandle),
		filters:      make(map[model.Channel]map[model.Mix]NodeHandle),
	}
}

// Submit enqueues fn to run on the graph thread and blocks for its result.
// Safe to call from any goroutine; fn itself must never be called directly
// by callers outside the graph thread.
func (e *Engine) Submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	cmd := &command{run: fn, reply: make(chan commandResult, 1)}
	select {
	case e.cmdCh <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run connects to the graph server, builds the owned object tree, and then
// serves commands and backend events until ctx is cancelled. On return it
// has destroyed all owned objects in reverse dependency order.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.backend.Connect(ctx); err != nil {
		return fmt.Errorf("connect graph backend: %w", err)
	}
	if err := e.rebuild(ctx); err != nil {
		return fmt.Errorf("initial graph build: %w", err)
	}
	e.connected.Store(true)

	connected := true
	var pending []*command

	// reconnectTimer fires retries with bounded exponential backoff. It is
	// only armed while disconnected; a stopped timer's channel never
	// fires, so it drops out of contention while connected.
	reconnectTimer := time.NewTimer(0)
	if !reconnectTimer.Stop() {
		<-reconnectTimer.C
	}
	reconnectDelay := e.cfg.ReconnectInit

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.BoundDeadline)
			e.teardown(shutdownCtx)
			cancel()
			return e.backend.Close()

		case ev, ok := <-e.backend.Events():
			if !ok {
				return nil
			}
			e.handleEvent(ev)
			if ev.Type == EvDisconnected && connected {
				connected = false
				e.connected.Store(false)
				// Objects of the lost connection are gone server-side; the
				// mirror starts empty and refills from the rebuild's echoes.
				e.mu.Lock()
				e.nodes = make(map[uint32]*NodeInfo)
				e.ports = make(map[uint32]*PortInfo)
				e.links = make(map[uint32]*LinkInfo)
				e.mu.Unlock()
				e.bus.Publish(events.EventDeviceDisconnected, events.Payload{})
				reconnectDelay = e.cfg.ReconnectInit
				reconnectTimer.Reset(reconnectDelay)
			}
			if ev.Type == EvReconnected && !connected {
				e.onReconnected(ctx, &connected, &pending)
			}

		case <-reconnectTimer.C:
			if err := e.backend.Connect(ctx); err != nil {
				e.logger.Warn().Err(err).Dur("next_retry", reconnectDelay).Msg("graph reconnect failed")
				reconnectDelay *= 2
				if reconnectDelay > e.cfg.ReconnectCap {
					reconnectDelay = e.cfg.ReconnectCap
				}
				reconnectTimer.Reset(reconnectDelay)
				continue
			}
			e.onReconnected(ctx, &connected, &pending)

		case cmd := <-e.cmdCh:
			if !connected {
				pending = append(pending, cmd)
				continue
			}
			e.execute(ctx, cmd)
		}
	}
}

// onReconnected rebuilds every owned object, publishes DeviceConnected, and
// drains commands that were queued while disconnected. Called only from
// the graph thread's Run loop.
func (e *Engine) onReconnected(ctx context.Context, connected *bool, pending *[]*command) {
	*connected = true
	e.connected.Store(true)
	e.reconnectCount.Add(1)
	if err := e.rebuild(ctx); err != nil {
		e.logger.Error().Err(err).Msg("rebuild after reconnect failed")
	}
	e.bus.Publish(events.EventDeviceConnected, events.Payload{})
	for _, cmd := range *pending {
		e.execute(ctx, cmd)
	}
	*pending = nil
}

func (e *Engine) execute(ctx context.Context, cmd *command) {
	cmdCtx, cancel := context.WithTimeout(ctx, e.cfg.BoundDeadline)
	defer cancel()
	start := time.Now()
	value, err := cmd.run(cmdCtx)
	if e.cfg.OnCommandExecuted != nil {
		e.cfg.OnCommandExecuted(time.Since(start))
	}
	cmd.reply <- commandResult{value: value, err: err}
}

// handleEvent updates the mirror and republishes a classified event onto
// the bus. Mirror maintenance always happens before forwarding (§4.1).
func (e *Engine) handleEvent(ev ObservedEvent) {
	switch ev.Type {
	case EvNodeAdded:
		if ev.Node != nil {
			e.mu.Lock()
			e.nodes[ev.Node.ID] = ev.Node
			e.mu.Unlock()
		}
	case EvNodeRemoved:
		if ev.Node != nil {
			e.mu.Lock()
			delete(e.nodes, ev.Node.ID)
			e.mu.Unlock()
			e.bus.Publish(events.EventNodeRemoved, events.Payload{"nodeId": ev.Node.ID})
		}
	case EvPortAdded:
		if ev.Port != nil {
			e.mu.Lock()
			e.ports[ev.Port.ID] = ev.Port
			e.mu.Unlock()
		}
	case EvPortRemoved:
		if ev.Port != nil {
			e.mu.Lock()
			delete(e.ports, ev.Port.ID)
			e.mu.Unlock()
		}
	case EvLinkAdded:
		if ev.Link != nil {
			e.mu.Lock()
			e.links[ev.Link.ID] = ev.Link
			e.mu.Unlock()
		}
	case EvLinkRemoved:
		if ev.Link != nil {
			e.mu.Lock()
			delete(e.links, ev.Link.ID)
			e.mu.Unlock()
		}
	case EvAppStreamAppeared:
		if ev.Node != nil && !e.isOwnedNode(ev.Node.ID) {
			e.bus.Publish(events.EventStreamObserved, events.Payload{
				"binary": ev.Node.Binary,
				"name":   ev.Node.ProgramName,
				"nodeId": ev.Node.ID,
			})
		}
	case EvMonitorOutputAvailable:
		e.bus.Publish(events.EventMonitorOutputAvailable, events.Payload{})
	case EvMonitorOutputGone:
		e.bus.Publish(events.EventMonitorOutputGone, events.Payload{})
	}
}

// Snapshot returns copies of the mirror's node, port and link maps, safe
// for a caller on any goroutine to read without racing the graph thread.
func (e *Engine) Snapshot() (nodes map[uint32]NodeInfo, ports map[uint32]PortInfo, links map[uint32]LinkInfo) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	nodes = make(map[uint32]NodeInfo, len(e.nodes))
	for id, n := range e.nodes {
		nodes[id] = *n
	}
	ports = make(map[uint32]PortInfo, len(e.ports))
	for id, p := range e.ports {
		ports[id] = *p
	}
	links = make(map[uint32]LinkInfo, len(e.links))
	for id, l := range e.links {
		links[id] = *l
	}
	return nodes, ports, links
}

// Connected reports whether the graph backend connection is currently
// live, for GetDeviceStatus.
func (e *Engine) Connected() bool {
	return e.connected.Load()
}

// ReconnectCount reports how many times the graph backend connection has
// been successfully re-established since the Engine started, for
// internal/metricsserver.
func (e *Engine) ReconnectCount() uint64 {
	return e.reconnectCount.Load()
}

// MirrorCounts reports the current size of the node/port/link mirror, for
// internal/metricsserver's gauges.
func (e *Engine) MirrorCounts() (nodes, ports, links int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.nodes), len(e.ports), len(e.links)
}

// isOwnedNode reports whether id belongs to one of the daemon's own channel
// sinks, mix sinks or volume filters. A live graph server echoes registry
// events for a client's own objects the same as anyone else's, so without
// this check the daemon would try to classify and route its own sinks as
// application streams.
func (e *Engine) isOwnedNode(id uint32) bool {
	e.ownedMu.RLock()
	defer e.ownedMu.RUnlock()
	for _, h := range e.mixSinks {
		if h.ID == id {
			return true
		}
	}
	for _, h := range e.channelSinks {
		if h.ID == id {
			return true
		}
	}
	for _, byMix := range e.filters {
		for _, h := range byMix {
			if h.ID == id {
				return true
			}
		}
	}
	return false
}

// AvailableOutputs lists the mirror's playback sink nodes, excluding the
// daemon's own owned sinks, as candidates for SetMonitorOutputDevice.
func (e *Engine) AvailableOutputs() []NodeInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []NodeInfo
	for id, n := range e.nodes {
		if n.MediaClass != MediaClassSink {
			continue
		}
		if e.isOwnedNode(id) {
			continue
		}
		out = append(out, *n)
	}
	return out
}

// errNotBound is the Graph-transient timeout error for a node that did not
// reach BOUND within the deadline.
var errNotBound = ipcerr.GraphTimeout("node")
