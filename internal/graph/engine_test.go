/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) (*Engine, *FakeBackend, context.Context, context.CancelFunc) {
	t.Helper()
	backend := NewFakeBackend()
	bus := events.NewBus()
	engine := NewEngine(backend, bus, zerolog.Nop(), Config{
		BoundDeadline: time.Second,
		ReconnectInit: 5 * time.Millisecond,
		ReconnectCap:  20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Fatal("engine did not shut down in time")
		}
	})

	// Give the graph thread a moment to finish the initial rebuild.
	time.Sleep(20 * time.Millisecond)

	return engine, backend, ctx, cancel
}

func TestInitialRebuildCreatesOwnedObjects(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if len(model.Channels) != 5 {
		t.Fatalf("expected 5 canonical channels, got %d", len(model.Channels))
	}
	for _, ch := range model.Channels {
		if _, ok := engine.ChannelSink(ch); !ok {
			t.Fatalf("missing channel sink for %s", ch)
		}
		for _, mix := range model.Mixes {
			if _, ok := engine.Filter(ch, mix); !ok {
				t.Fatalf("missing volume filter for %s/%s", ch, mix)
			}
		}
	}
	for _, mix := range model.Mixes {
		if _, ok := engine.MixSink(mix); !ok {
			t.Fatalf("missing mix sink for %s", mix)
		}
	}

	engine.ownedMu.RLock()
	internalLinks := len(engine.internalLinks)
	engine.ownedMu.RUnlock()
	if internalLinks != 20 {
		t.Fatalf("expected 20 internal links, got %d", internalLinks)
	}
}

func TestSetFilterVolumeRoundTrips(t *testing.T) {
	engine, _, ctx, _ := newTestEngine(t)

	filter, ok := engine.Filter(model.ChannelMusic, model.MixMonitor)
	if !ok {
		t.Fatal("expected music/monitor filter to exist")
	}

	if err := engine.SetFilterVolume(ctx, filter.ID, 0.25); err != nil {
		t.Fatalf("SetFilterVolume: %v", err)
	}
}

func TestReconnectRebuildsOwnedObjects(t *testing.T) {
	engine, backend, _, _ := newTestEngine(t)

	before, ok := engine.ChannelSink(model.ChannelVoice)
	if !ok {
		t.Fatal("expected voice channel sink before disconnect")
	}

	backend.SimulateDisconnect()
	time.Sleep(10 * time.Millisecond)

	// The backoff timer has already reconnected the fake backend by now, so
	// the EvReconnected below is ignored; either path runs one rebuild.
	backend.SimulateReconnect()
	time.Sleep(30 * time.Millisecond)

	after, ok := engine.ChannelSink(model.ChannelVoice)
	if !ok {
		t.Fatal("expected voice channel sink after reconnect")
	}
	if after.ID == before.ID {
		t.Fatal("expected rebuild to recreate the node (new backend id)")
	}

	engine.ownedMu.RLock()
	internalLinks := len(engine.internalLinks)
	engine.ownedMu.RUnlock()
	if internalLinks != 20 {
		t.Fatalf("expected 20 internal links after rebuild, got %d", internalLinks)
	}
}
