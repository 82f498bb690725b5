/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"fmt"
	"sync"
)

// FakeBackend is an in-memory Backend for exercising the Engine (and
// anything built on top of it) without a live graph server. It binds every
// node and link immediately and lets tests call SimulateDisconnect /
// SimulateReconnect to drive the reconnect path. Exported so other
// packages' tests (mixer, router, ipc) can build a real Engine around it.
type FakeBackend struct {
	mu        sync.Mutex
	nextID    uint32
	nodes     map[uint32]*NodeInfo
	ports     map[uint32]*PortInfo
	links     map[uint32]*LinkInfo
	connected bool
	events    chan ObservedEvent

	// FailCreateNode, when set, makes CreateNode fail for the named node
	// instead of binding.
	FailCreateNode map[string]error
}

// NewFakeBackend builds a disconnected FakeBackend; call Connect (normally
// done by Engine.Run) before use.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		nodes:  make(map[uint32]*NodeInfo),
		ports:  make(map[uint32]*PortInfo),
		links:  make(map[uint32]*LinkInfo),
		events: make(chan ObservedEvent, 256),
	}
}

func (f *FakeBackend) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// SimulateDisconnect marks the backend down and emits EvDisconnected, as if
// the graph server had gone away.
func (f *FakeBackend) SimulateDisconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- ObservedEvent{Type: EvDisconnected}
}

// SimulateReconnect marks the backend up and emits EvReconnected.
func (f *FakeBackend) SimulateReconnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.events <- ObservedEvent{Type: EvReconnected}
}

// CreateNode, like a real graph server, reports the new node and its ports
// back through Events() as well as returning the handle: a real PipeWire
// server announces global-registry additions for every node, including the
// ones a client itself just created, and the Engine's mirror (handleEvent)
// depends on that echo to learn about its own owned objects.
func (f *FakeBackend) CreateNode(ctx context.Context, spec NodeSpec) (NodeHandle, error) {
	f.mu.Lock()

	if !f.connected {
		f.mu.Unlock()
		return NodeHandle{}, fmt.Errorf("graph disconnected")
	}
	if err, ok := f.FailCreateNode[spec.Name]; ok {
		f.mu.Unlock()
		return NodeHandle{}, err
	}

	f.nextID++
	id := f.nextID
	node := &NodeInfo{ID: id, Name: spec.Name}
	f.nodes[id] = node

	var portEvents []ObservedEvent
	for _, ch := range spec.ChannelLayout {
		f.nextID++
		portID := f.nextID
		in := &PortInfo{ID: portID, NodeID: id, Direction: PortInput, Designator: "playback_" + ch}
		f.ports[portID] = in
		portEvents = append(portEvents, ObservedEvent{Type: EvPortAdded, Port: in})

		f.nextID++
		monID := f.nextID
		out := &PortInfo{ID: monID, NodeID: id, Direction: PortOutput, Designator: "monitor_" + ch}
		f.ports[monID] = out
		portEvents = append(portEvents, ObservedEvent{Type: EvPortAdded, Port: out})
	}
	f.mu.Unlock()

	f.events <- ObservedEvent{Type: EvNodeAdded, Node: node}
	for _, ev := range portEvents {
		f.events <- ev
	}

	return NodeHandle{ID: id, Name: spec.Name}, nil
}

func (f *FakeBackend) DestroyNode(ctx context.Context, id uint32) error {
	f.mu.Lock()
	delete(f.nodes, id)
	for portID, p := range f.ports {
		if p.NodeID == id {
			delete(f.ports, portID)
		}
	}
	f.mu.Unlock()
	f.events <- ObservedEvent{Type: EvNodeRemoved, Node: &NodeInfo{ID: id}}
	return nil
}

func (f *FakeBackend) SetFilterVolume(ctx context.Context, id uint32, gains []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("graph disconnected")
	}
	if _, ok := f.nodes[id]; !ok {
		return fmt.Errorf("node %d not found", id)
	}
	return nil
}

func (f *FakeBackend) SetFilterMute(ctx context.Context, id uint32, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fmt.Errorf("graph disconnected")
	}
	if _, ok := f.nodes[id]; !ok {
		return fmt.Errorf("node %d not found", id)
	}
	return nil
}

func (f *FakeBackend) CreateLink(ctx context.Context, outputNode, outputPort, inputNode, inputPort uint32) (LinkHandle, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return LinkHandle{}, fmt.Errorf("graph disconnected")
	}
	f.nextID++
	id := f.nextID
	link := &LinkInfo{ID: id, OutputNode: outputNode, OutputPort: outputPort, InputNode: inputNode, InputPort: inputPort}
	f.links[id] = link
	f.mu.Unlock()

	f.events <- ObservedEvent{Type: EvLinkAdded, Link: link}
	return LinkHandle{ID: id}, nil
}

func (f *FakeBackend) DestroyLink(ctx context.Context, id uint32) error {
	f.mu.Lock()
	delete(f.links, id)
	f.mu.Unlock()
	f.events <- ObservedEvent{Type: EvLinkRemoved, Link: &LinkInfo{ID: id}}
	return nil
}

func (f *FakeBackend) FindPort(ctx context.Context, nodeID uint32, direction PortDirection, designator string) (uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.ports {
		if p.NodeID == nodeID && p.Direction == direction {
			want := designator
			if direction == PortInput {
				want = "playback_" + designator
			} else {
				want = "monitor_" + designator
			}
			if p.Designator == want || p.Designator == designator {
				return id, true, nil
			}
		}
	}
	return 0, false, nil
}

func (f *FakeBackend) Events() <-chan ObservedEvent {
	return f.events
}

// Node exposes a mirror node record for assertions in tests outside this
// package (e.g. locating a device node id by name for SetMonitorOutputDevice).
func (f *FakeBackend) Node(name string) (NodeInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.nodes {
		if n.Name == name {
			return *n, true
		}
	}
	return NodeInfo{}, false
}
