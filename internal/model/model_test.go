/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package model

import "testing"

func TestChannelValid(t *testing.T) {
	if !ChannelMusic.Valid() {
		t.Fatal("music should be a valid channel")
	}
	if Channel("podcast").Valid() {
		t.Fatal("podcast should not be a valid channel")
	}
}

func TestSinkNames(t *testing.T) {
	if got, want := ChannelMusic.SinkName(), "ut-ch-music"; got != want {
		t.Fatalf("SinkName = %q, want %q", got, want)
	}
	if got, want := MixStream.SinkName(), "ut-stream-mix"; got != want {
		t.Fatalf("SinkName = %q, want %q", got, want)
	}
	if got, want := ChannelMusic.VolumeFilterName(MixMonitor), "ut-ch-music-monitor-vol"; got != want {
		t.Fatalf("VolumeFilterName = %q, want %q", got, want)
	}
}

func TestClampVolume(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, c := range cases {
		if got := ClampVolume(c.in); got != c.want {
			t.Fatalf("ClampVolume(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEffectiveGainAndMute(t *testing.T) {
	channel := ChannelState{Volume: 0.5, Muted: false}
	master := MasterState{Volume: 0.8, Muted: false}

	if got, want := EffectiveGain(channel, master), 0.4; got != want {
		t.Fatalf("EffectiveGain = %v, want %v", got, want)
	}
	if EffectiveMute(channel, master) {
		t.Fatal("expected not muted")
	}

	master.Muted = true
	if !EffectiveMute(channel, master) {
		t.Fatal("master mute must override per-channel state")
	}
}

func TestNewDefaultChannelStates(t *testing.T) {
	states := NewDefaultChannelStates(0.75)
	if len(states) != len(Channels) {
		t.Fatalf("got %d channels, want %d", len(states), len(Channels))
	}
	for _, c := range Channels {
		for _, m := range Mixes {
			st, ok := states[c][m]
			if !ok {
				t.Fatalf("missing state for %s/%s", c, m)
			}
			if st.Volume != 0.75 || st.Muted {
				t.Fatalf("%s/%s = %+v, want volume 0.75 unmuted", c, m, st)
			}
		}
	}
}
