/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package e2e drives undertoned the way a real undertonectl would: over the
// Unix control socket, against a full daemon-shaped dependency graph built
// from the exported internal/* constructors, with only the Graph Engine's
// backend swapped for graph.FakeBackend so the scenarios in spec.md §8 run
// without a live PipeWire server.
package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/device"
	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/graph"
	"github.com/friendsincode/grimnir_radio/internal/ipc"
	"github.com/friendsincode/grimnir_radio/internal/mixer"
	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/friendsincode/grimnir_radio/internal/router"
	"github.com/friendsincode/grimnir_radio/internal/store"
	"github.com/rs/zerolog"
)

// harness is one running daemon, reachable only through its control socket.
type harness struct {
	engine  *graph.Engine
	backend *graph.FakeBackend
	store   *store.Store
	router  *router.Router
	mixer   *mixer.Mixer

	conn   net.Conn
	reader *bufio.Reader
	nextID int64
}

func newHarness(t *testing.T, rules []router.PatternRule) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "undertone.db")
	st, err := store.Open(dbPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.SeedChannels(context.Background()); err != nil {
		t.Fatalf("SeedChannels: %v", err)
	}

	channelStates, err := st.LoadChannelStates(context.Background())
	if err != nil {
		t.Fatalf("LoadChannelStates: %v", err)
	}
	if len(channelStates) == 0 {
		channelStates = model.NewDefaultChannelStates(0.75)
	}
	masterStates, err := st.LoadMasterStates(context.Background())
	if err != nil {
		t.Fatalf("LoadMasterStates: %v", err)
	}
	appRoutes, err := st.LoadAppRoutes(context.Background())
	if err != nil {
		t.Fatalf("LoadAppRoutes: %v", err)
	}

	bus := events.NewBus()
	backend := graph.NewFakeBackend()
	engine := graph.NewEngine(backend, bus, zerolog.Nop(), graph.Config{
		BoundDeadline: time.Second,
		ReconnectInit: 10 * time.Millisecond,
		ReconnectCap:  50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() { engine.Run(ctx); close(engineDone) }()
	t.Cleanup(func() {
		cancel()
		<-engineDone
	})
	time.Sleep(20 * time.Millisecond)

	m := mixer.New(engine, st, bus, zerolog.Nop(), channelStates, masterStates)
	r := router.New(engine, st, bus, zerolog.Nop(), appRoutes, rules)
	go r.Run(ctx)

	dev := device.NewController("", nil, device.Identity{}, zerolog.Nop())

	socketPath := filepath.Join(t.TempDir(), "undertone.sock")
	server := ipc.NewServer(socketPath, ipc.Deps{
		Mixer:  m,
		Router: r,
		Engine: engine,
		Store:  st,
		Device: dev,
		Bus:    bus,
	}, zerolog.Nop(), cancel)

	serverDone := make(chan struct{})
	go func() {
		server.ListenAndServe(ctx)
		close(serverDone)
	}()
	t.Cleanup(func() {
		server.Close()
		<-serverDone
	})

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err = net.Dial("unix", socketPath)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", socketPath, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Cleanup(func() { conn.Close() })

	return &harness{
		engine:  engine,
		backend: backend,
		store:   st,
		router:  r,
		mixer:   m,
		conn:    conn,
		reader:  bufio.NewReader(conn),
	}
}

// call sends one method request and returns its decoded result envelope,
// silently draining any event lines that arrive first.
func (h *harness) call(t *testing.T, method map[string]any) map[string]any {
	t.Helper()
	h.nextID++
	id := h.nextID

	h.sendRaw(t, map[string]any{"id": id, "method": method})

	for {
		v := h.readLine(t)
		if _, isEvent := v["event"]; isEvent {
			continue
		}
		if int64(v["id"].(float64)) != id {
			continue
		}
		return v["result"].(map[string]any)
	}
}

// sendRaw writes one already-enveloped JSON request line without waiting for
// its response, for callers that need to observe events interleaved with the
// response themselves.
func (h *harness) sendRaw(t *testing.T, line map[string]any) {
	t.Helper()
	raw, err := json.Marshal(line)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if _, err := h.conn.Write(append(raw, '\n')); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

// subscribe issues a Subscribe request and waits for its ack.
func (h *harness) subscribe(t *testing.T) {
	t.Helper()
	h.call(t, map[string]any{"type": "Subscribe"})
}

// nextEvent reads lines until the next event (or a request response, which
// it discards), returning the event's type and payload.
func (h *harness) nextEvent(t *testing.T) (string, map[string]any) {
	t.Helper()
	for {
		v := h.readLine(t)
		ev, isEvent := v["event"].(map[string]any)
		if !isEvent {
			continue
		}
		return ev["type"].(string), ev
	}
}

func (h *harness) readLine(t *testing.T) map[string]any {
	t.Helper()
	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	raw, err := h.reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal line %q: %v", raw, err)
	}
	return v
}

func requireOk(t *testing.T, result map[string]any) any {
	t.Helper()
	if errPayload, ok := result["Err"]; ok {
		t.Fatalf("expected Ok result, got Err: %v", errPayload)
	}
	return result["Ok"]
}

// newStreamNode fabricates the ports a real application stream's node would
// expose when it first appears on the graph, the way the real backend binds
// a client's own playback node ports before the Router ever sees it.
func newStreamNode(t *testing.T, backend *graph.FakeBackend, name string) uint32 {
	t.Helper()
	handle, err := backend.CreateNode(context.Background(), graph.NodeSpec{
		Name:          name,
		ChannelLayout: []string{"FL", "FR"},
	})
	if err != nil {
		t.Fatalf("CreateNode(%s): %v", name, err)
	}
	return handle.ID
}

// countLinks reports how many links from outputNode to inputNode exist in
// engine's mirror right now. The mirror catches up with a command's own
// CreateLink/DestroyLink asynchronously, through the same Events() channel a
// real graph server uses to announce registry changes, so callers that care
// about a specific count should go through waitForLinkCount instead of
// reading this once.
func countLinks(engine *graph.Engine, outputNode, inputNode uint32) int {
	_, _, links := engine.Snapshot()
	n := 0
	for _, link := range links {
		if link.OutputNode == outputNode && link.InputNode == inputNode {
			n++
		}
	}
	return n
}

// waitForLinkCount polls countLinks until it reaches want or the deadline
// passes, returning whatever it last saw.
func waitForLinkCount(engine *graph.Engine, outputNode, inputNode uint32, want int) int {
	deadline := time.Now().Add(time.Second)
	got := countLinks(engine, outputNode, inputNode)
	for got != want && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
		got = countLinks(engine, outputNode, inputNode)
	}
	return got
}

// waitForRebuild polls the engine's mirror until it reports the full owned
// object tree (five channel sinks, two mix sinks, ten filters, twenty
// internal links), the way a real rebuild settles once its CreateNode and
// CreateLink calls have all echoed back through Events(). Used after a
// SimulateDisconnect/SimulateReconnect cycle, where the rebuild runs on the
// engine's own goroutine concurrently with the test.
func waitForRebuild(t *testing.T, engine *graph.Engine) {
	t.Helper()
	wantNodes := len(model.Channels) + len(model.Mixes) + len(model.Channels)*len(model.Mixes)
	deadline := time.Now().Add(2 * time.Second)
	for {
		nodes, _, links := engine.Snapshot()
		if len(nodes) == wantNodes && len(links) == 20 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("rebuild did not settle: nodes=%d (want %d) links=%d (want 20)", len(nodes), wantNodes, len(links))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
