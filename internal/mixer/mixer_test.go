/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mixer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu            sync.Mutex
	channelStates map[string]model.ChannelState
	masterStates  map[model.Mix]model.MasterState
	monitorDevice string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channelStates: make(map[string]model.ChannelState),
		masterStates:  make(map[model.Mix]model.MasterState),
	}
}

func (s *fakeStore) SaveChannelState(ctx context.Context, ch model.Channel, mix model.Mix, state model.ChannelState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[string(ch)+"/"+string(mix)] = state
	return nil
}

func (s *fakeStore) SaveMasterState(ctx context.Context, mix model.Mix, state model.MasterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterStates[mix] = state
	return nil
}

func (s *fakeStore) SaveMonitorOutputDevice(ctx context.Context, deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitorDevice = deviceName
	return nil
}

func newTestMixer(t *testing.T) (*Mixer, *fakeStore, context.Context) {
	t.Helper()
	backend := graph.NewFakeBackend()
	bus := events.NewBus()
	engine := graph.NewEngine(backend, bus, zerolog.Nop(), graph.Config{BoundDeadline: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { engine.Run(ctx); close(done) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(20 * time.Millisecond)

	store := newFakeStore()
	m := New(engine, store, bus, zerolog.Nop(), nil, nil)
	return m, store, ctx
}

func TestSetChannelVolumeClampsAndPersists(t *testing.T) {
	m, store, ctx := newTestMixer(t)

	if err := m.SetChannelVolume(ctx, model.ChannelMusic, model.MixMonitor, 1.5); err != nil {
		t.Fatalf("SetChannelVolume: %v", err)
	}

	state, err := m.ChannelState(model.ChannelMusic, model.MixMonitor)
	if err != nil {
		t.Fatalf("ChannelState: %v", err)
	}
	if state.Volume != 1 {
		t.Fatalf("volume = %v, want clamped to 1", state.Volume)
	}

	store.mu.Lock()
	saved := store.channelStates["music/monitor"]
	store.mu.Unlock()
	if saved.Volume != 1 {
		t.Fatalf("persisted volume = %v, want 1", saved.Volume)
	}
}

func TestSetMasterVolumeComposesWithChannelGain(t *testing.T) {
	m, _, ctx := newTestMixer(t)

	if err := m.SetChannelVolume(ctx, model.ChannelVoice, model.MixStream, 0.5); err != nil {
		t.Fatalf("SetChannelVolume: %v", err)
	}
	if err := m.SetMasterVolume(ctx, model.MixStream, 0.5); err != nil {
		t.Fatalf("SetMasterVolume: %v", err)
	}

	state, _ := m.ChannelState(model.ChannelVoice, model.MixStream)
	master, _ := m.MasterState(model.MixStream)
	if got, want := model.EffectiveGain(state, master), 0.25; got != want {
		t.Fatalf("effective gain = %v, want %v", got, want)
	}
}

func TestMasterMuteOverridesChannelMute(t *testing.T) {
	m, _, ctx := newTestMixer(t)

	if err := m.SetMasterMute(ctx, model.MixMonitor, true); err != nil {
		t.Fatalf("SetMasterMute: %v", err)
	}
	state, _ := m.ChannelState(model.ChannelGame, model.MixMonitor)
	master, _ := m.MasterState(model.MixMonitor)
	if !model.EffectiveMute(state, master) {
		t.Fatal("expected master mute to silence an unmuted channel")
	}
}

func TestUnknownChannelReturnsDomainError(t *testing.T) {
	m, _, ctx := newTestMixer(t)
	if err := m.SetChannelVolume(ctx, model.Channel("podcast"), model.MixStream, 0.5); err == nil {
		t.Fatal("expected an error for an unknown channel")
	}
}
