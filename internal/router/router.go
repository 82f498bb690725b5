/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package router is the Router: it classifies application audio streams
// into one of the five canonical channels and keeps that assignment in
// force as routes, profiles and streams come and go.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/rs/zerolog"
)

// Store is the persistence seam for explicit app routes that are marked
// persistent (§4.5 app_routes table).
type Store interface {
	SaveAppRoute(ctx context.Context, binary string, channel model.Channel, persistent bool) error
	RemoveAppRoute(ctx context.Context, binary string) error
}

// PatternRule is one entry of the global, priority-ordered classification
// rule set (§4.3 step 2): the first rule whose Pattern is a case-insensitive
// substring of the stream's binary or program name wins.
type PatternRule struct {
	Pattern string
	Channel model.Channel
}

// trackedStream is everything the Router remembers about a live
// application stream so it can re-link it when rules change.
type trackedStream struct {
	nodeID      uint32
	binary      string
	programName string
	channel     model.Channel
	links       []graph.LinkHandle
}

// Router owns classification state and reacts to the Graph Engine's stream
// lifecycle and route-change events.
type Router struct {
	engine *graph.Engine
	store  Store
	bus    *events.Bus
	logger zerolog.Logger

	mu             sync.Mutex
	explicitRoutes map[string]model.AppRoute // binary -> route, global scope
	rules          []PatternRule             // global, priority order
	profileRoutes  map[string]model.Channel  // binary -> channel, nil map when no profile loaded
	streams        map[uint32]*trackedStream
}

// New builds a Router seeded with the persisted explicit routes and the
// global pattern rule set (config overlay defaults, §10.2).
func New(engine *graph.Engine, store Store, bus *events.Bus, logger zerolog.Logger, explicitRoutes []model.AppRoute, rules []PatternRule) *Router {
	r := &Router{
		engine:         engine,
		store:          store,
		bus:            bus,
		logger:         logger.With().Str("component", "router").Logger(),
		explicitRoutes: make(map[string]model.AppRoute, len(explicitRoutes)),
		rules:          rules,
		streams:        make(map[uint32]*trackedStream),
	}
	for _, route := range explicitRoutes {
		r.explicitRoutes[route.Pattern] = route
	}
	return r
}

// Run subscribes to the Graph Engine's stream lifecycle events and blocks
// until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	appeared := r.bus.Subscribe(events.EventStreamObserved)
	removed := r.bus.Subscribe(events.EventNodeRemoved)
	defer r.bus.Unsubscribe(events.EventStreamObserved, appeared)
	defer r.bus.Unsubscribe(events.EventNodeRemoved, removed)

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-appeared:
			binary, _ := payload["binary"].(string)
			name, _ := payload["name"].(string)
			nodeID, _ := payload["nodeId"].(uint32)
			if err := r.HandleAppStreamAppeared(ctx, nodeID, binary, name); err != nil {
				r.logger.Warn().Err(err).Str("binary", binary).Msg("failed to route app stream")
			}
		case payload := <-removed:
			nodeID, _ := payload["nodeId"].(uint32)
			r.handleStreamRemoved(nodeID)
		}
	}
}

// HandleAppStreamAppeared classifies a newly observed stream and links it
// to the chosen channel sink (§4.3).
func (r *Router) HandleAppStreamAppeared(ctx context.Context, nodeID uint32, binary, programName string) error {
	channel := r.classify(binary, programName)

	r.mu.Lock()
	r.streams[nodeID] = &trackedStream{nodeID: nodeID, binary: binary, programName: programName}
	r.mu.Unlock()

	if err := r.link(ctx, nodeID, channel); err != nil {
		return err
	}

	r.bus.Publish(events.EventAppAppeared, events.Payload{
		"binary": binary, "name": programName, "channel": string(channel), "nodeId": nodeID,
	})
	return nil
}

func (r *Router) handleStreamRemoved(nodeID uint32) {
	r.mu.Lock()
	stream, ok := r.streams[nodeID]
	if ok {
		delete(r.streams, nodeID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.bus.Publish(events.EventAppDisappeared, events.Payload{"binary": stream.binary, "nodeId": nodeID})
}

// SetAppRoute installs (or replaces) an explicit global route for binary,
// persists it when persistent is set, and re-evaluates any live stream
// from that binary.
func (r *Router) SetAppRoute(ctx context.Context, binary string, channel model.Channel, persistent bool) error {
	if binary == "" {
		return ipcerr.DomainErr("empty_binary", "app route binary must not be empty", ipcerr.ErrEmptyPattern)
	}
	if !channel.Valid() {
		return ipcerr.UnknownChannel(string(channel))
	}

	r.mu.Lock()
	r.explicitRoutes[binary] = model.AppRoute{Pattern: binary, Channel: channel, Persistent: persistent}
	r.mu.Unlock()

	if persistent {
		if err := r.store.SaveAppRoute(ctx, binary, channel, persistent); err != nil {
			return ipcerr.PersistenceErr("app_route_write_failed", fmt.Sprintf("saving route for %s", binary), err)
		}
	}

	r.bus.Publish(events.EventAppRouteChanged, events.Payload{"binary": binary, "channel": string(channel)})
	return r.reevaluateAll(ctx)
}

// RemoveAppRoute drops binary's explicit route, falling streams back to the
// global pattern rules (or the default channel).
func (r *Router) RemoveAppRoute(ctx context.Context, binary string) error {
	r.mu.Lock()
	delete(r.explicitRoutes, binary)
	r.mu.Unlock()

	if err := r.store.RemoveAppRoute(ctx, binary); err != nil {
		return ipcerr.PersistenceErr("app_route_remove_failed", fmt.Sprintf("removing route for %s", binary), err)
	}

	r.bus.Publish(events.EventAppRouteChanged, events.Payload{"binary": binary, "channel": ""})
	return r.reevaluateAll(ctx)
}

// LoadProfileRoutes installs a profile's route-map overlay (empty or nil
// means "use global rules only", §4.3) and re-evaluates every live stream.
func (r *Router) LoadProfileRoutes(ctx context.Context, routes []model.ProfileRoute) error {
	overlay := make(map[string]model.Channel, len(routes))
	for _, rt := range routes {
		overlay[rt.Pattern] = rt.Channel
	}

	r.mu.Lock()
	if len(overlay) == 0 {
		r.profileRoutes = nil
	} else {
		r.profileRoutes = overlay
	}
	r.mu.Unlock()

	return r.reevaluateAll(ctx)
}

// reevaluateAll re-runs classification for every tracked stream, relinking
// only the ones whose target channel changed (§4.3 "Re-evaluation").
func (r *Router) reevaluateAll(ctx context.Context) error {
	r.mu.Lock()
	targets := make([]*trackedStream, 0, len(r.streams))
	for _, s := range r.streams {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	var firstErr error
	for _, s := range targets {
		channel := r.classify(s.binary, s.programName)
		r.mu.Lock()
		unchanged := s.channel == channel
		r.mu.Unlock()
		if unchanged {
			continue
		}
		if err := r.link(ctx, s.nodeID, channel); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// classify implements §4.3's precedence: a profile-specific entry wins
// outright; otherwise fall through to the global rule set (explicit route,
// then ordered pattern rules, then the default channel).
func (r *Router) classify(binary, programName string) model.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.profileRoutes != nil {
		if ch, ok := r.profileRoutes[binary]; ok {
			return ch
		}
	}
	if route, ok := r.explicitRoutes[binary]; ok {
		return route.Channel
	}
	for _, rule := range r.rules {
		if containsFold(binary, rule.Pattern) || containsFold(programName, rule.Pattern) {
			return rule.Channel
		}
	}
	return model.ChannelSystem
}

// link destroys any links this Router previously created for nodeID and
// creates new ones to channel's sink, enforcing the at-most-one-sink
// invariant by destroying before creating.
func (r *Router) link(ctx context.Context, nodeID uint32, channel model.Channel) error {
	r.mu.Lock()
	stream, ok := r.streams[nodeID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if len(stream.links) > 0 {
		if err := r.engine.DestroyLinks(ctx, stream.links); err != nil {
			r.logger.Warn().Err(err).Uint32("node_id", nodeID).Msg("failed to tear down prior route links")
		}
	}

	sink, ok := r.engine.ChannelSink(channel)
	if !ok {
		return ipcerr.GraphTransientErr("channel_sink_not_ready", fmt.Sprintf("%s sink not yet created", channel), nil)
	}

	links, err := r.engine.CreateStereoLinks(ctx, nodeID, streamOutputSelector, sink.ID, streamInputSelector)
	if err != nil {
		return ipcerr.GraphTransientErr("route_link_failed", fmt.Sprintf("linking stream to %s", channel), err)
	}

	r.mu.Lock()
	stream.links = links
	stream.channel = channel
	r.mu.Unlock()

	r.logger.Info().Uint32("node_id", nodeID).Str("binary", stream.binary).Str("channel", string(channel)).Msg("routed app stream")
	return nil
}

// Routes returns a snapshot of the global explicit app routes, for GetState.
func (r *Router) Routes() []model.AppRoute {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AppRoute, 0, len(r.explicitRoutes))
	for _, route := range r.explicitRoutes {
		out = append(out, route)
	}
	return out
}

func streamOutputSelector(ch string) string { return ch }
func streamInputSelector(ch string) string  { return ch }

func containsFold(s, substr string) bool {
	if s == "" || substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
