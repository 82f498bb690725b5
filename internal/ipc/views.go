/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ipc

import (
	"context"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
	"github.com/friendsincode/grimnir_radio/internal/model"
)

// getState answers GetState: the full per-channel table, global app
// routes, and connectivity, in one shot for a freshly connecting client.
func (s *Server) getState() map[string]any {
	return map[string]any{
		"channels": channelsPayload(s.mixer.AllChannelStates()),
		"routes":   routesPayload(s.router.Routes()),
		"device":   s.getDeviceStatus(),
	}
}

func (s *Server) getDeviceStatus() map[string]any {
	identity := s.device.Identity()
	return map[string]any{
		"graphConnected": s.engine.Connected(),
		"vendorId":       identity.VendorID,
		"productId":      identity.ProductID,
		"serial":         identity.Serial,
		"isWave3":        identity.IsWave3,
	}
}

func channelsPayload(states map[model.Channel]map[model.Mix]model.ChannelState) []map[string]any {
	out := make([]map[string]any, 0, len(model.Channels))
	for _, ch := range model.Channels {
		byMix := states[ch]
		mixes := make(map[string]any, len(model.Mixes))
		for _, mix := range model.Mixes {
			st := byMix[mix]
			mixes[string(mix)] = map[string]any{"volume": st.Volume, "muted": st.Muted}
		}
		out = append(out, map[string]any{
			"channel": string(ch),
			"display": ch.DisplayName(),
			"mixes":   mixes,
		})
	}
	return out
}

func routesPayload(routes []model.AppRoute) []map[string]any {
	out := make([]map[string]any, 0, len(routes))
	for _, r := range routes {
		out = append(out, map[string]any{
			"binary":     r.Pattern,
			"channel":    string(r.Channel),
			"persistent": r.Persistent,
		})
	}
	return out
}

func outputsPayload(nodes []graph.NodeInfo) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{"nodeId": n.ID, "name": n.Name})
	}
	return out
}

func profilesPayload(profiles []model.Profile) []map[string]any {
	out := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, map[string]any{"name": p.Name, "isDefault": p.IsDefault})
	}
	return out
}

// saveProfile snapshots the Mixer Core's live per-channel state, each
// mix's master volume/mute, and the Router's current explicit routes into
// a named profile (spec.md §3: a Profile carries both levels of state).
func (s *Server) saveProfile(ctx context.Context, name string) error {
	if name == "" {
		return ipcerr.DomainErr("empty_profile_name", "profile name must not be empty", nil)
	}

	routes := s.router.Routes()
	routeMap := make([]model.ProfileRoute, 0, len(routes))
	for _, r := range routes {
		routeMap = append(routeMap, model.ProfileRoute{Pattern: r.Pattern, Channel: r.Channel})
	}

	masterState := make(map[model.Mix]model.MasterState, len(model.Mixes))
	for _, mix := range model.Mixes {
		st, err := s.mixer.MasterState(mix)
		if err != nil {
			return err
		}
		masterState[mix] = st
	}

	profile := model.Profile{
		Name:         name,
		ChannelState: s.mixer.AllChannelStates(),
		MasterState:  masterState,
		RouteMap:     routeMap,
	}
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return ipcerr.PersistenceErr("profile_save_failed", "saving profile "+name, err)
	}
	s.bus.Publish(events.EventProfileListChanged, events.Payload{})
	return nil
}

// loadProfile restores a saved profile's channel state, master
// volume/mute, and route map into the live Mixer Core and Router. A mix
// absent from the profile's saved master state (e.g. a profile saved
// before this snapshot included master levels) keeps its current live
// value rather than resetting to silence.
func (s *Server) loadProfile(ctx context.Context, name string) error {
	profile, err := s.store.LoadProfile(ctx, name)
	if err != nil {
		return ipcerr.PersistenceErr("profile_load_failed", "loading profile "+name, err)
	}

	masterStates := make(map[model.Mix]model.MasterState, len(model.Mixes))
	for _, mix := range model.Mixes {
		if st, ok := profile.MasterState[mix]; ok {
			masterStates[mix] = st
			continue
		}
		st, err := s.mixer.MasterState(mix)
		if err != nil {
			return err
		}
		masterStates[mix] = st
	}

	if err := s.mixer.LoadSnapshot(ctx, profile.ChannelState, masterStates); err != nil {
		return err
	}
	if err := s.router.LoadProfileRoutes(ctx, profile.RouteMap); err != nil {
		return err
	}

	s.bus.Publish(events.EventProfileLoaded, events.Payload{"name": name})
	return nil
}
