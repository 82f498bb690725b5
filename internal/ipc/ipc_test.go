/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/device"
	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/mixer"
	"github.com/friendsincode/grimnir_radio/internal/router"
	"github.com/friendsincode/grimnir_radio/internal/store"
	"github.com/rs/zerolog"
)

// testHarness wires a full Server against an in-memory graph backend and an
// in-memory sqlite store, the same dependency set the daemon builds at
// startup, minus the Unix socket (handleConn is driven directly over a
// net.Pipe instead).
type testHarness struct {
	server *Server
	conn   net.Conn // the client end
}

func newTestHarness(t *testing.T) (*testHarness, context.Context) {
	t.Helper()

	st, err := store.Open("file::memory:?cache=shared", zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.SeedChannels(context.Background()); err != nil {
		t.Fatalf("SeedChannels: %v", err)
	}

	bus := events.NewBus()
	backend := graph.NewFakeBackend()
	engine := graph.NewEngine(backend, bus, zerolog.Nop(), graph.Config{BoundDeadline: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { engine.Run(ctx); close(done) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(20 * time.Millisecond)

	m := mixer.New(engine, st, bus, zerolog.Nop(), nil, nil)
	r := router.New(engine, st, bus, zerolog.Nop(), nil, nil)
	go r.Run(ctx)

	dev := device.NewController("", nil, device.Identity{}, zerolog.Nop())

	server := NewServer("", Deps{
		Mixer:  m,
		Router: r,
		Engine: engine,
		Store:  st,
		Device: dev,
		Bus:    bus,
	}, zerolog.Nop(), func() {})

	serverConn, clientConn := net.Pipe()
	go server.handleConn(ctx, serverConn)

	return &testHarness{server: server, conn: clientConn}, ctx
}

func (h *testHarness) send(t *testing.T, id int64, method map[string]any) {
	t.Helper()
	line, err := json.Marshal(map[string]any{"id": id, "method": method})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	line = append(line, '\n')
	if _, err := h.conn.Write(line); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

// readLine reads exactly one newline-terminated line as a generic map,
// distinguishing a response (has "id") from an event (has "event").
func (h *testHarness) readLine(t *testing.T, reader *bufio.Reader) map[string]any {
	t.Helper()
	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(line, &v); err != nil {
		t.Fatalf("unmarshal line %q: %v", line, err)
	}
	return v
}

func TestGetStateReturnsOkResult(t *testing.T) {
	h, _ := newTestHarness(t)
	reader := bufio.NewReader(h.conn)

	h.send(t, 1, map[string]any{"type": "GetState"})
	resp := h.readLine(t, reader)

	if resp["id"].(float64) != 1 {
		t.Fatalf("id = %v, want 1", resp["id"])
	}
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("result missing or wrong shape: %v", resp)
	}
	if _, ok := result["Ok"]; !ok {
		t.Fatalf("expected an Ok result, got %v", result)
	}
}

func TestUnknownMethodReturnsTransportError(t *testing.T) {
	h, _ := newTestHarness(t)
	reader := bufio.NewReader(h.conn)

	h.send(t, 1, map[string]any{"type": "DoesNotExist"})
	resp := h.readLine(t, reader)

	result := resp["result"].(map[string]any)
	errPayload, ok := result["Err"].(map[string]any)
	if !ok {
		t.Fatalf("expected an Err result, got %v", result)
	}
	if errPayload["category"] != "transport" {
		t.Fatalf("category = %v, want transport", errPayload["category"])
	}
}

// TestSubscribedMutationEventPrecedesResponse exercises §4.4's ordering
// guarantee: a client receives the event caused by its own mutation before
// the response to that mutation's request.
func TestSubscribedMutationEventPrecedesResponse(t *testing.T) {
	h, _ := newTestHarness(t)
	reader := bufio.NewReader(h.conn)

	h.send(t, 1, map[string]any{"type": "Subscribe"})
	subAck := h.readLine(t, reader)
	if _, ok := subAck["result"].(map[string]any)["Ok"]; !ok {
		t.Fatalf("Subscribe did not ack: %v", subAck)
	}

	h.send(t, 2, map[string]any{"type": "SetChannelVolume", "channel": "music", "mix": "stream", "volume": 0.42})

	first := h.readLine(t, reader)
	if _, isEvent := first["event"]; !isEvent {
		t.Fatalf("expected the event line before the response, got %v", first)
	}
	event := first["event"].(map[string]any)
	if event["type"] != "ChannelVolumeChanged" {
		t.Fatalf("event type = %v, want ChannelVolumeChanged", event["type"])
	}

	second := h.readLine(t, reader)
	if second["id"].(float64) != 2 {
		t.Fatalf("expected the response for request 2 next, got %v", second)
	}
	result := second["result"].(map[string]any)
	if _, ok := result["Ok"]; !ok {
		t.Fatalf("expected an Ok result, got %v", result)
	}
}

func TestSetAppRoutePublishesAppRouteChangedBeforeResponse(t *testing.T) {
	h, _ := newTestHarness(t)
	reader := bufio.NewReader(h.conn)

	h.send(t, 1, map[string]any{"type": "Subscribe"})
	h.readLine(t, reader)

	h.send(t, 2, map[string]any{"type": "SetAppRoute", "binary": "firefox", "channel": "browser", "persistent": true})

	event := h.readLine(t, reader)
	payload := event["event"].(map[string]any)
	if payload["type"] != "AppRouteChanged" {
		t.Fatalf("event type = %v, want AppRouteChanged", payload["type"])
	}

	resp := h.readLine(t, reader)
	result := resp["result"].(map[string]any)
	if _, ok := result["Ok"]; !ok {
		t.Fatalf("expected an Ok result, got %v", result)
	}
}
