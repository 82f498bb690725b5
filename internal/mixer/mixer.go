/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mixer is the Mixer Core: it owns the canonical per-channel and
// master volume/mute state and translates logical intents into Graph
// Engine commands.
package mixer

import (
	"context"
	"fmt"
	"sync"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/rs/zerolog"
)

// Store is the persistence seam the Mixer Core writes through. Mutations
// commit here before the corresponding graph update and before any IPC
// response is sent (write-then-apply order, §4.5/§7).
type Store interface {
	SaveChannelState(ctx context.Context, ch model.Channel, mix model.Mix, state model.ChannelState) error
	SaveMasterState(ctx context.Context, mix model.Mix, state model.MasterState) error
	SaveMonitorOutputDevice(ctx context.Context, deviceName string) error
}

// Mixer is the Mixer Core.
type Mixer struct {
	engine *graph.Engine
	store  Store
	bus    *events.Bus
	logger zerolog.Logger

	mu            sync.RWMutex
	channelStates map[model.Channel]map[model.Mix]model.ChannelState
	masterStates  map[model.Mix]model.MasterState
}

// New builds a Mixer Core seeded with initial (persisted or default)
// channel and master state.
func New(engine *graph.Engine, store Store, bus *events.Bus, logger zerolog.Logger, channelStates map[model.Channel]map[model.Mix]model.ChannelState, masterStates map[model.Mix]model.MasterState) *Mixer {
	if channelStates == nil {
		channelStates = model.NewDefaultChannelStates(0.75)
	}
	if masterStates == nil {
		masterStates = map[model.Mix]model.MasterState{
			model.MixStream:  {Volume: 1, Muted: false},
			model.MixMonitor: {Volume: 1, Muted: false},
		}
	}
	return &Mixer{
		engine:        engine,
		store:         store,
		bus:           bus,
		logger:        logger.With().Str("component", "mixer_core").Logger(),
		channelStates: channelStates,
		masterStates:  masterStates,
	}
}

// ChannelState returns a snapshot of the (channel,mix) logical state.
func (m *Mixer) ChannelState(ch model.Channel, mix model.Mix) (model.ChannelState, error) {
	if !ch.Valid() {
		return model.ChannelState{}, ipcerr.UnknownChannel(string(ch))
	}
	if !mix.Valid() {
		return model.ChannelState{}, ipcerr.UnknownMix(string(mix))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channelStates[ch][mix], nil
}

// AllChannelStates returns a deep copy of the full per-channel per-mix
// state table, for GetChannels and profile snapshots.
func (m *Mixer) AllChannelStates() map[model.Channel]map[model.Mix]model.ChannelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.Channel]map[model.Mix]model.ChannelState, len(m.channelStates))
	for ch, byMix := range m.channelStates {
		out[ch] = make(map[model.Mix]model.ChannelState, len(byMix))
		for mix, st := range byMix {
			out[ch][mix] = st
		}
	}
	return out
}

// MasterState returns a snapshot of a mix's master state.
func (m *Mixer) MasterState(mix model.Mix) (model.MasterState, error) {
	if !mix.Valid() {
		return model.MasterState{}, ipcerr.UnknownMix(string(mix))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.masterStates[mix], nil
}

// SetChannelVolume clamps volume to [0,1], updates state, persists, pushes
// the recomposed effective gain to the (channel,mix) filter, and emits
// ChannelVolumeChanged.
func (m *Mixer) SetChannelVolume(ctx context.Context, ch model.Channel, mix model.Mix, volume float64) error {
	if !ch.Valid() {
		return ipcerr.UnknownChannel(string(ch))
	}
	if !mix.Valid() {
		return ipcerr.UnknownMix(string(mix))
	}
	volume = model.ClampVolume(volume)

	m.mu.Lock()
	state := m.channelStates[ch][mix]
	state.Volume = volume
	m.channelStates[ch][mix] = state
	master := m.masterStates[mix]
	m.mu.Unlock()

	if err := m.store.SaveChannelState(ctx, ch, mix, state); err != nil {
		return ipcerr.PersistenceErr("channel_state_write_failed", fmt.Sprintf("saving %s/%s", ch, mix), err)
	}

	if err := m.pushFilter(ctx, ch, mix, state, master); err != nil {
		return err
	}

	m.bus.Publish(events.EventChannelVolumeChanged, events.Payload{
		"channel": string(ch), "mix": string(mix), "volume": volume,
	})
	return nil
}

// SetChannelMute is the mute counterpart to SetChannelVolume.
func (m *Mixer) SetChannelMute(ctx context.Context, ch model.Channel, mix model.Mix, muted bool) error {
	if !ch.Valid() {
		return ipcerr.UnknownChannel(string(ch))
	}
	if !mix.Valid() {
		return ipcerr.UnknownMix(string(mix))
	}

	m.mu.Lock()
	state := m.channelStates[ch][mix]
	state.Muted = muted
	m.channelStates[ch][mix] = state
	master := m.masterStates[mix]
	m.mu.Unlock()

	if err := m.store.SaveChannelState(ctx, ch, mix, state); err != nil {
		return ipcerr.PersistenceErr("channel_state_write_failed", fmt.Sprintf("saving %s/%s", ch, mix), err)
	}

	if err := m.pushFilter(ctx, ch, mix, state, master); err != nil {
		return err
	}

	m.bus.Publish(events.EventChannelMuteChanged, events.Payload{
		"channel": string(ch), "mix": string(mix), "muted": muted,
	})
	return nil
}

// SetMasterVolume applies a uniform scalar to all five channels on mix,
// composed multiplicatively with each channel's own gain.
func (m *Mixer) SetMasterVolume(ctx context.Context, mix model.Mix, volume float64) error {
	if !mix.Valid() {
		return ipcerr.UnknownMix(string(mix))
	}
	volume = model.ClampVolume(volume)

	m.mu.Lock()
	master := m.masterStates[mix]
	master.Volume = volume
	m.masterStates[mix] = master
	m.mu.Unlock()

	if err := m.store.SaveMasterState(ctx, mix, master); err != nil {
		return ipcerr.PersistenceErr("master_state_write_failed", fmt.Sprintf("saving master/%s", mix), err)
	}

	if err := m.pushAllFiltersOnMix(ctx, mix, master); err != nil {
		return err
	}

	m.bus.Publish(events.EventMasterChanged, events.Payload{"mix": string(mix), "volume": volume, "muted": master.Muted})
	return nil
}

// SetMasterMute is the mute counterpart to SetMasterVolume; master mute
// overrides per-channel mute (§4.2).
func (m *Mixer) SetMasterMute(ctx context.Context, mix model.Mix, muted bool) error {
	if !mix.Valid() {
		return ipcerr.UnknownMix(string(mix))
	}

	m.mu.Lock()
	master := m.masterStates[mix]
	master.Muted = muted
	m.masterStates[mix] = master
	m.mu.Unlock()

	if err := m.store.SaveMasterState(ctx, mix, master); err != nil {
		return ipcerr.PersistenceErr("master_state_write_failed", fmt.Sprintf("saving master/%s", mix), err)
	}

	if err := m.pushAllFiltersOnMix(ctx, mix, master); err != nil {
		return err
	}

	m.bus.Publish(events.EventMasterChanged, events.Payload{"mix": string(mix), "volume": master.Volume, "muted": muted})
	return nil
}

// SetMonitorOutputDevice records the selection, then destroys the current
// external monitor-output links and creates new ones to the requested
// device.
func (m *Mixer) SetMonitorOutputDevice(ctx context.Context, deviceNodeID uint32, deviceName string) error {
	if err := m.store.SaveMonitorOutputDevice(ctx, deviceName); err != nil {
		return ipcerr.PersistenceErr("monitor_output_write_failed", "saving monitor output device", err)
	}
	if err := m.engine.SetMonitorOutputDevice(ctx, deviceNodeID, deviceName); err != nil {
		return ipcerr.GraphTransientErr("monitor_output_failed", fmt.Sprintf("linking to %s", deviceName), err)
	}
	return nil
}

// LoadSnapshot replaces the in-memory state wholesale (used by profile
// load) and pushes every filter's recomposed gain to the graph.
func (m *Mixer) LoadSnapshot(ctx context.Context, channelStates map[model.Channel]map[model.Mix]model.ChannelState, masterStates map[model.Mix]model.MasterState) error {
	m.mu.Lock()
	m.channelStates = channelStates
	m.masterStates = masterStates
	m.mu.Unlock()

	for _, ch := range model.Channels {
		for _, mix := range model.Mixes {
			state := channelStates[ch][mix]
			master := masterStates[mix]
			if err := m.pushFilter(ctx, ch, mix, state, master); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Mixer) pushAllFiltersOnMix(ctx context.Context, mix model.Mix, master model.MasterState) error {
	for _, ch := range model.Channels {
		m.mu.RLock()
		state := m.channelStates[ch][mix]
		m.mu.RUnlock()
		if err := m.pushFilter(ctx, ch, mix, state, master); err != nil {
			return err
		}
	}
	return nil
}

// pushFilter recomputes the composed gain/mute for (ch,mix) and pushes it
// to the graph's volume filter node.
func (m *Mixer) pushFilter(ctx context.Context, ch model.Channel, mix model.Mix, state model.ChannelState, master model.MasterState) error {
	filter, ok := m.engine.Filter(ch, mix)
	if !ok {
		return ipcerr.GraphTransientErr("filter_not_ready", fmt.Sprintf("%s/%s filter not yet created", ch, mix), nil)
	}

	gain := model.EffectiveGain(state, master)
	muted := model.EffectiveMute(state, master)

	if err := m.engine.SetFilterVolume(ctx, filter.ID, gain); err != nil {
		return ipcerr.GraphTransientErr("set_volume_failed", fmt.Sprintf("%s/%s", ch, mix), err)
	}
	if err := m.engine.SetFilterMute(ctx, filter.ID, muted); err != nil {
		return ipcerr.GraphTransientErr("set_mute_failed", fmt.Sprintf("%s/%s", ch, mix), err)
	}
	return nil
}
