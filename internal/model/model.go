/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package model holds the logical vocabulary shared by the Mixer Core,
// Router, Graph Engine and Persistence: channels, mixes, routes and
// profiles, independent of how they are stored or wired to the graph.
package model

import "fmt"

// Channel is one of the five fixed logical audio buckets applications
// produce into. Exactly these five exist, created once at first run and
// never destroyed.
type Channel string

const (
	ChannelSystem  Channel = "system"
	ChannelVoice   Channel = "voice"
	ChannelMusic   Channel = "music"
	ChannelBrowser Channel = "browser"
	ChannelGame    Channel = "game"
)

// Channels lists all five channels in their canonical, stable order. This
// order governs rebuild ordering (§4.1) and the default "system" channel is
// always last so it stands out as the fallback in that ordering.
var Channels = []Channel{ChannelVoice, ChannelMusic, ChannelBrowser, ChannelGame, ChannelSystem}

// DisplayName returns the human-facing label for a channel.
func (c Channel) DisplayName() string {
	switch c {
	case ChannelSystem:
		return "System"
	case ChannelVoice:
		return "Voice"
	case ChannelMusic:
		return "Music"
	case ChannelBrowser:
		return "Browser"
	case ChannelGame:
		return "Game"
	default:
		return string(c)
	}
}

// Valid reports whether c is one of the five canonical channels.
func (c Channel) Valid() bool {
	for _, candidate := range Channels {
		if candidate == c {
			return true
		}
	}
	return false
}

// SinkName returns the audio-graph node name for this channel's sink, e.g.
// "ut-ch-music". These names are load-bearing: external capture tools grep
// for them.
func (c Channel) SinkName() string {
	return fmt.Sprintf("ut-ch-%s", c)
}

// Mix is one of the two aggregate outputs: Stream (for capture) or Monitor
// (for listening).
type Mix string

const (
	MixStream  Mix = "stream"
	MixMonitor Mix = "monitor"
)

// Mixes lists both mixes in canonical order.
var Mixes = []Mix{MixStream, MixMonitor}

// Valid reports whether m is one of the two canonical mixes.
func (m Mix) Valid() bool {
	return m == MixStream || m == MixMonitor
}

// SinkName returns the audio-graph node name for this mix's sink, e.g.
// "ut-stream-mix".
func (m Mix) SinkName() string {
	return fmt.Sprintf("ut-%s-mix", m)
}

// VolumeFilterName returns the audio-graph node name for the volume filter
// sitting between channel c and mix m, e.g. "ut-ch-music-stream-vol".
func (c Channel) VolumeFilterName(m Mix) string {
	return fmt.Sprintf("ut-ch-%s-%s-vol", c, m)
}

// ChannelState holds the per-(channel,mix) logical volume and mute, the
// quantity the Mixer Core keeps canonical and the Graph Engine's volume
// filter nodes physically realise.
type ChannelState struct {
	Volume float64 // clamped to [0,1]
	Muted  bool
}

// ClampVolume returns v clamped into [0,1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MasterState holds a mix's master volume and mute, applied uniformly
// across all five channels on that mix.
type MasterState struct {
	Volume float64
	Muted  bool
}

// EffectiveGain composes a channel's per-mix gain with that mix's master
// gain: effective_gain = channel_gain * master_gain (§4.2).
func EffectiveGain(channel ChannelState, master MasterState) float64 {
	return channel.Volume * master.Volume
}

// EffectiveMute composes channel and master mute with a logical OR: master
// mute overrides per-channel mute (§4.2).
func EffectiveMute(channel ChannelState, master MasterState) bool {
	return channel.Muted || master.Muted
}

// AppRoute binds an application, identified by a case-insensitive substring
// match against its binary path or program name, to a target channel.
type AppRoute struct {
	Pattern    string
	Channel    Channel
	Persistent bool
}

// ProfileRoute is a profile-scoped override of the global route table.
type ProfileRoute struct {
	Pattern string
	Channel Channel
}

// Profile is a named snapshot of per-channel and master volumes/mutes plus
// an optional route-map overlay. An empty RouteMap means "inherit the
// global rules" rather than "unroute everything" (§4.3, §9).
type Profile struct {
	Name         string
	IsDefault    bool
	ChannelState map[Channel]map[Mix]ChannelState
	MasterState  map[Mix]MasterState
	RouteMap     []ProfileRoute
}

// NewDefaultChannelStates builds the per-channel per-mix state map with vol
// applied uniformly and no channels muted, used to seed first-run defaults
// and to build ad-hoc profile snapshots.
func NewDefaultChannelStates(vol float64) map[Channel]map[Mix]ChannelState {
	states := make(map[Channel]map[Mix]ChannelState, len(Channels))
	for _, c := range Channels {
		states[c] = map[Mix]ChannelState{
			MixStream:  {Volume: vol, Muted: false},
			MixMonitor: {Volume: vol, Muted: false},
		}
	}
	return states
}
