/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"fmt"

	"github.com/friendsincode/grimnir_radio/internal/model"
)

// rebuild (re)creates every owned object in the dependency order mandated
// by §4.1: (1) the two mix sinks, (2) the five channel sinks, (3) the ten
// volume filters, (4) the twenty internal links, (5) the external
// monitor-output links, each step waiting for BOUND before the next
// begins. Called once at startup and again after every successful
// reconnect.
func (e *Engine) rebuild(ctx context.Context) error {
	e.ownedMu.Lock()
	defer e.ownedMu.Unlock()

	e.logger.Info().Msg("rebuilding owned graph objects")

	mixSinks := make(map[model.Mix]NodeHandle, len(model.Mixes))
	for _, mix := range model.Mixes {
		handle, err := e.createSinkDirect(ctx, mix.SinkName(), fmt.Sprintf("Undertone %s mix", mix))
		if err != nil {
			return fmt.Errorf("create mix sink %s: %w", mix, err)
		}
		mixSinks[mix] = handle
	}

	channelSinks := make(map[model.Channel]NodeHandle, len(model.Channels))
	for _, ch := range model.Channels {
		handle, err := e.createSinkDirect(ctx, ch.SinkName(), fmt.Sprintf("Undertone %s channel", ch.DisplayName()))
		if err != nil {
			return fmt.Errorf("create channel sink %s: %w", ch, err)
		}
		channelSinks[ch] = handle
	}

	filters := make(map[model.Channel]map[model.Mix]NodeHandle, len(model.Channels))
	for _, ch := range model.Channels {
		filters[ch] = make(map[model.Mix]NodeHandle, len(model.Mixes))
		channelSink := channelSinks[ch]
		for _, mix := range model.Mixes {
			handle, err := e.createVolumeFilterDirect(ctx, ch.VolumeFilterName(mix), channelSink.ID)
			if err != nil {
				return fmt.Errorf("create volume filter %s/%s: %w", ch, mix, err)
			}
			filters[ch][mix] = handle
		}
	}

	// Each filter's input is wired to its channel sink's monitor_* ports at
	// creation time (InputFromNode above); only the filter's monitor_*
	// output to the mix sink's playback_* input needs an explicit link
	// (§4.1's "twenty internal links" = 10 filters * stereo).
	var internalLinks []LinkHandle
	for _, ch := range model.Channels {
		for _, mix := range model.Mixes {
			filter := filters[ch][mix]
			mixSink := mixSinks[mix]
			links, err := e.createStereoLinksDirect(ctx, filter.ID, channelOutputSelector, mixSink.ID, channelInputSelector)
			if err != nil {
				return fmt.Errorf("link filter %s/%s to mix: %w", ch, mix, err)
			}
			internalLinks = append(internalLinks, links...)
		}
	}

	e.mixSinks = mixSinks
	e.channelSinks = channelSinks
	e.filters = filters
	e.internalLinks = internalLinks

	if e.monitorOutputNode != "" {
		if err := e.relinkMonitorOutputLocked(ctx, e.monitorOutputNode); err != nil {
			e.logger.Warn().Err(err).Str("device", e.monitorOutputNode).Msg("could not relink monitor output after rebuild")
		}
	}

	e.logger.Info().
		Int("channel_sinks", len(channelSinks)).
		Int("mix_sinks", len(mixSinks)).
		Int("filters", len(filters)*len(model.Mixes)).
		Int("internal_links", len(internalLinks)).
		Msg("owned graph objects rebuilt")

	return nil
}

// ChannelSink returns the owned node handle for a channel sink.
func (e *Engine) ChannelSink(ch model.Channel) (NodeHandle, bool) {
	e.ownedMu.RLock()
	defer e.ownedMu.RUnlock()
	h, ok := e.channelSinks[ch]
	return h, ok
}

// MixSink returns the owned node handle for a mix sink.
func (e *Engine) MixSink(mix model.Mix) (NodeHandle, bool) {
	e.ownedMu.RLock()
	defer e.ownedMu.RUnlock()
	h, ok := e.mixSinks[mix]
	return h, ok
}

// Filter returns the owned node handle for a (channel, mix) volume filter.
func (e *Engine) Filter(ch model.Channel, mix model.Mix) (NodeHandle, bool) {
	e.ownedMu.RLock()
	defer e.ownedMu.RUnlock()
	byMix, ok := e.filters[ch]
	if !ok {
		return NodeHandle{}, false
	}
	h, ok := byMix[mix]
	return h, ok
}

// SetMonitorOutputDevice destroys the current external monitor-output
// links and creates new ones to the requested device's playback ports,
// recording the selection so a later reconnect rebuild restores it.
func (e *Engine) SetMonitorOutputDevice(ctx context.Context, deviceNodeID uint32, deviceName string) error {
	e.ownedMu.Lock()
	defer e.ownedMu.Unlock()

	if len(e.externalLinks) > 0 {
		if err := e.DestroyLinks(ctx, e.externalLinks); err != nil {
			return fmt.Errorf("destroy prior monitor output links: %w", err)
		}
		e.externalLinks = nil
	}

	monitorMix, ok := e.mixSinks[model.MixMonitor]
	if !ok {
		return fmt.Errorf("monitor mix sink not yet created")
	}

	links, err := e.CreateStereoLinks(ctx, monitorMix.ID, channelOutputSelector, deviceNodeID, channelInputSelector)
	if err != nil {
		return fmt.Errorf("link monitor mix to %s: %w", deviceName, err)
	}

	e.externalLinks = links
	e.monitorOutputNode = deviceName
	return nil
}

func (e *Engine) relinkMonitorOutputLocked(ctx context.Context, deviceName string) error {
	e.mu.RLock()
	var deviceNodeID uint32
	for id, n := range e.nodes {
		if n.Name == deviceName {
			deviceNodeID = id
			break
		}
	}
	e.mu.RUnlock()
	if deviceNodeID == 0 {
		return fmt.Errorf("device node %s not present in mirror", deviceName)
	}

	monitorMix := e.mixSinks[model.MixMonitor]
	links, err := e.createStereoLinksDirect(ctx, monitorMix.ID, channelOutputSelector, deviceNodeID, channelInputSelector)
	if err != nil {
		return err
	}
	e.externalLinks = links
	return nil
}

// teardown destroys every owned object in reverse dependency order:
// external links, internal links, filters, channel sinks, mix sinks.
func (e *Engine) teardown(ctx context.Context) {
	e.ownedMu.Lock()
	defer e.ownedMu.Unlock()

	e.logger.Info().Msg("tearing down owned graph objects")

	for _, h := range e.externalLinks {
		_ = e.backend.DestroyLink(ctx, h.ID)
	}
	for _, h := range e.internalLinks {
		_ = e.backend.DestroyLink(ctx, h.ID)
	}
	for _, byMix := range e.filters {
		for _, h := range byMix {
			_ = e.backend.DestroyNode(ctx, h.ID)
		}
	}
	for _, h := range e.channelSinks {
		_ = e.backend.DestroyNode(ctx, h.ID)
	}
	for _, h := range e.mixSinks {
		_ = e.backend.DestroyNode(ctx, h.ID)
	}

	e.externalLinks = nil
	e.internalLinks = nil
	e.filters = make(map[model.Channel]map[model.Mix]NodeHandle)
	e.channelSinks = make(map[model.Channel]NodeHandle)
	e.mixSinks = make(map[model.Mix]NodeHandle)
}
