/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package e2e

import (
	"testing"

	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/friendsincode/grimnir_radio/internal/router"
)

// TestFreshStartBuildsOwnedGraphAndDefaults covers scenario 1: a freshly
// started daemon owns five channel sinks, two mix sinks, ten volume filters
// and exactly twenty internal links, and reports every channel at the
// default unmuted 0.75 volume on both mixes.
func TestFreshStartBuildsOwnedGraphAndDefaults(t *testing.T) {
	h := newHarness(t, nil)
	waitForRebuild(t, h.engine)

	result := h.call(t, map[string]any{"type": "GetChannels"})
	channels, ok := requireOk(t, result).([]any)
	if !ok {
		t.Fatalf("GetChannels: expected a list, got %v", result)
	}
	if len(channels) != len(model.Channels) {
		t.Fatalf("GetChannels returned %d channels, want %d", len(channels), len(model.Channels))
	}
	for _, raw := range channels {
		entry := raw.(map[string]any)
		mixes := entry["mixes"].(map[string]any)
		for _, mix := range model.Mixes {
			st := mixes[string(mix)].(map[string]any)
			if st["volume"].(float64) != 0.75 {
				t.Fatalf("%s/%s volume = %v, want 0.75", entry["channel"], mix, st["volume"])
			}
			if st["muted"].(bool) {
				t.Fatalf("%s/%s expected unmuted by default", entry["channel"], mix)
			}
		}
	}
}

// TestSetChannelVolumeAppliesAndNotifiesBeforeResponse covers scenario 2:
// SetChannelVolume takes effect immediately and a subscribed client sees
// exactly one ChannelVolumeChanged event before the request's own response.
func TestSetChannelVolumeAppliesAndNotifiesBeforeResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.subscribe(t)

	h.nextID++
	id := h.nextID
	line := map[string]any{"id": id, "method": map[string]any{
		"type": "SetChannelVolume", "channel": "music", "mix": "monitor", "volume": 0.25,
	}}
	h.sendRaw(t, line)

	evType, payload := h.nextEvent(t)
	if evType != "ChannelVolumeChanged" {
		t.Fatalf("event type = %s, want ChannelVolumeChanged", evType)
	}
	if payload["channel"] != "music" || payload["mix"] != "monitor" {
		t.Fatalf("unexpected event payload: %v", payload)
	}

	resp := h.readLine(t)
	if int64(resp["id"].(float64)) != id {
		t.Fatalf("expected the response for request %d next, got %v", id, resp)
	}
	requireOk(t, resp["result"].(map[string]any))

	st, err := h.mixer.ChannelState(model.ChannelMusic, model.MixMonitor)
	if err != nil {
		t.Fatalf("ChannelState: %v", err)
	}
	if st.Volume != 0.25 {
		t.Fatalf("music/monitor volume = %v, want 0.25", st.Volume)
	}
}

// TestAppStreamRoutesToMatchingChannel covers scenario 3: a pattern rule
// routes a newly observed stream to its channel with exactly two stereo
// links, and nowhere else.
func TestAppStreamRoutesToMatchingChannel(t *testing.T) {
	h := newHarness(t, []router.PatternRule{
		{Pattern: "spotify", Channel: model.ChannelMusic},
	})

	nodeID := newStreamNode(t, h.backend, "/usr/bin/spotify")
	if err := h.router.HandleAppStreamAppeared(t.Context(), nodeID, "/usr/bin/spotify", "Spotify"); err != nil {
		t.Fatalf("HandleAppStreamAppeared: %v", err)
	}

	musicSink, ok := h.engine.ChannelSink(model.ChannelMusic)
	if !ok {
		t.Fatal("expected music channel sink")
	}
	if got := waitForLinkCount(h.engine, nodeID, musicSink.ID, 2); got != 2 {
		t.Fatalf("links from stream to music sink = %d, want 2", got)
	}

	for _, ch := range model.Channels {
		if ch == model.ChannelMusic {
			continue
		}
		sink, ok := h.engine.ChannelSink(ch)
		if !ok {
			continue
		}
		if got := countLinks(h.engine, nodeID, sink.ID); got != 0 {
			t.Fatalf("unexpected %d links from stream to %s sink", got, ch)
		}
	}
}

// TestReclassifyMovesLinksWithoutDoubleAttachment covers scenario 4:
// rerouting a live stream destroys its old links before creating new ones,
// so the stream is attached to exactly one channel sink at any time.
func TestReclassifyMovesLinksWithoutDoubleAttachment(t *testing.T) {
	h := newHarness(t, []router.PatternRule{
		{Pattern: "spotify", Channel: model.ChannelMusic},
	})

	nodeID := newStreamNode(t, h.backend, "/usr/bin/spotify")
	ctx := t.Context()
	if err := h.router.HandleAppStreamAppeared(ctx, nodeID, "/usr/bin/spotify", "Spotify"); err != nil {
		t.Fatalf("HandleAppStreamAppeared: %v", err)
	}

	musicSink, _ := h.engine.ChannelSink(model.ChannelMusic)
	gameSink, _ := h.engine.ChannelSink(model.ChannelGame)

	if got := waitForLinkCount(h.engine, nodeID, musicSink.ID, 2); got != 2 {
		t.Fatalf("links to music sink before reroute = %d, want 2", got)
	}

	if err := h.router.SetAppRoute(ctx, "/usr/bin/spotify", model.ChannelGame, false); err != nil {
		t.Fatalf("SetAppRoute: %v", err)
	}

	if got := waitForLinkCount(h.engine, nodeID, gameSink.ID, 2); got != 2 {
		t.Fatalf("links to game sink after reroute = %d, want 2", got)
	}
	if got := countLinks(h.engine, nodeID, musicSink.ID); got != 0 {
		t.Fatalf("links to music sink after reroute = %d, want 0", got)
	}

	_, _, links := h.engine.Snapshot()
	attached := 0
	for _, link := range links {
		if link.OutputNode == nodeID {
			attached++
		}
	}
	if attached != 2 {
		t.Fatalf("stream attached via %d links, want exactly 2 (one sink)", attached)
	}
}

// TestSaveAndLoadProfileRestoresVolumesAndEmitsProfileLoaded covers
// scenario 5: saving a profile, mutating live state, then loading the
// profile restores every channel/master volume and mute and emits
// ProfileLoaded.
func TestSaveAndLoadProfileRestoresVolumesAndEmitsProfileLoaded(t *testing.T) {
	h := newHarness(t, nil)

	requireOk(t, h.call(t, map[string]any{"type": "SaveProfile", "name": "streaming"}))

	requireOk(t, h.call(t, map[string]any{
		"type": "SetChannelVolume", "channel": "voice", "mix": "stream", "volume": 0.1,
	}))
	requireOk(t, h.call(t, map[string]any{
		"type": "SetMasterVolume", "mix": "stream", "volume": 0.3,
	}))
	requireOk(t, h.call(t, map[string]any{
		"type": "SetChannelMute", "channel": "voice", "mix": "stream", "muted": true,
	}))

	h.subscribe(t)

	h.nextID++
	id := h.nextID
	h.sendRaw(t, map[string]any{"id": id, "method": map[string]any{"type": "LoadProfile", "name": "streaming"}})

	evType, payload := h.nextEvent(t)
	if evType != "ProfileLoaded" {
		t.Fatalf("event type = %s, want ProfileLoaded", evType)
	}
	if payload["name"] != "streaming" {
		t.Fatalf("ProfileLoaded payload = %v, want name=streaming", payload)
	}

	resp := h.readLine(t)
	if int64(resp["id"].(float64)) != id {
		t.Fatalf("expected the response for request %d next, got %v", id, resp)
	}
	requireOk(t, resp["result"].(map[string]any))

	st, err := h.mixer.ChannelState(model.ChannelVoice, model.MixStream)
	if err != nil {
		t.Fatalf("ChannelState: %v", err)
	}
	if st.Volume != 0.75 || st.Muted {
		t.Fatalf("voice/stream after reload = %+v, want the saved 0.75 unmuted default", st)
	}
	master, err := h.mixer.MasterState(model.MixStream)
	if err != nil {
		t.Fatalf("MasterState: %v", err)
	}
	if master.Volume != 1 {
		t.Fatalf("stream master volume after reload = %v, want the saved 1.0 default", master.Volume)
	}
}

// TestReconnectRebuildsEverythingOnceAndNotifiesSubscribers covers scenario
// 6: a graph-server loss followed by reconnect rebuilds the full owned
// object tree exactly once, with no duplicates, and a subscribed client
// sees DeviceDisconnected then DeviceConnected.
func TestReconnectRebuildsEverythingOnceAndNotifiesSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	h.subscribe(t)

	h.backend.SimulateDisconnect()
	evType, _ := h.nextEvent(t)
	if evType != "DeviceDisconnected" {
		t.Fatalf("event type = %s, want DeviceDisconnected", evType)
	}

	h.backend.SimulateReconnect()
	evType, _ = h.nextEvent(t)
	if evType != "DeviceConnected" {
		t.Fatalf("event type = %s, want DeviceConnected", evType)
	}

	waitForRebuild(t, h.engine)

	nodes, _, links := h.engine.Snapshot()
	wantNodes := len(model.Channels) + len(model.Mixes) + len(model.Channels)*len(model.Mixes)
	if len(nodes) != wantNodes {
		t.Fatalf("owned nodes after reconnect = %d, want %d", len(nodes), wantNodes)
	}
	if len(links) != 20 {
		t.Fatalf("internal links after reconnect = %d, want 20", len(links))
	}
}
