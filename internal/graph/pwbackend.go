/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	pwclient "github.com/vignemail1/pipewire-go/client"
	pwcore "github.com/vignemail1/pipewire-go/core"
)

// PWBackend implements Backend against a live PipeWire server via
// github.com/vignemail1/pipewire-go. It owns the pipewire-go client and
// must only be driven from the Engine's graph-thread goroutine: the
// underlying client is not safe to call from elsewhere while its own event
// callbacks are in flight.
type PWBackend struct {
	remote string
	logger zerolog.Logger

	mu     sync.Mutex
	client *pwclient.Client

	events chan ObservedEvent

	// virtualNodes tracks the pipewire-go VirtualNode for every node this
	// backend created, keyed by the server-assigned node id, so
	// SetFilterVolume/SetFilterMute/DestroyNode can reach it again without
	// depending on a live proxy reference surviving a reconnect.
	virtualNodes map[uint32]*pwcore.VirtualNode
}

// NewPWBackend builds a backend bound to remote (the PipeWire socket path;
// empty string means the library's own default, typically driven by
// $PIPEWIRE_REMOTE).
func NewPWBackend(remote string, logger zerolog.Logger) *PWBackend {
	return &PWBackend{
		remote:       remote,
		logger:       logger.With().Str("component", "pwbackend").Logger(),
		events:       make(chan ObservedEvent, 256),
		virtualNodes: make(map[uint32]*pwcore.VirtualNode),
	}
}

func (b *PWBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return nil
	}

	client, err := pwclient.NewClient(b.remote)
	if err != nil {
		return fmt.Errorf("connect to pipewire at %q: %w", b.remote, err)
	}

	client.On(pwclient.EventNodeAdded, func(e *pwclient.Event) {
		node, ok := e.Object.(*pwclient.Node)
		if !ok {
			return
		}
		info := nodeInfoFromClient(node)
		b.events <- ObservedEvent{Type: EvNodeAdded, Node: info}
		if info.MediaClass == MediaClassStream {
			b.events <- ObservedEvent{Type: EvAppStreamAppeared, Node: info}
		}
	})
	client.On(pwclient.EventNodeRemoved, func(e *pwclient.Event) {
		if id, ok := e.Object.(uint32); ok {
			b.events <- ObservedEvent{Type: EvNodeRemoved, Node: &NodeInfo{ID: id}}
		}
	})
	client.On(pwclient.EventPortAdded, func(e *pwclient.Event) {
		if port, ok := e.Object.(*pwclient.Port); ok {
			b.events <- ObservedEvent{Type: EvPortAdded, Port: portInfoFromClient(port)}
		}
	})
	client.On(pwclient.EventPortRemoved, func(e *pwclient.Event) {
		if id, ok := e.Object.(uint32); ok {
			b.events <- ObservedEvent{Type: EvPortRemoved, Port: &PortInfo{ID: id}}
		}
	})
	client.On(pwclient.EventLinkAdded, func(e *pwclient.Event) {
		if link, ok := e.Object.(*pwclient.Link); ok {
			b.events <- ObservedEvent{Type: EvLinkAdded, Link: linkInfoFromClient(link)}
		}
	})
	client.On(pwclient.EventLinkRemoved, func(e *pwclient.Event) {
		if id, ok := e.Object.(uint32); ok {
			b.events <- ObservedEvent{Type: EvLinkRemoved, Link: &LinkInfo{ID: id}}
		}
	})

	b.client = client
	return nil
}

func (b *PWBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *PWBackend) CreateNode(ctx context.Context, spec NodeSpec) (NodeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return NodeHandle{}, fmt.Errorf("pipewire client not connected")
	}

	factory := pwcore.Factory_NullAudioSink
	nodeType := pwcore.VirtualNode_Sink
	if spec.IsFilter {
		factory = pwcore.Factory_FilterChain
		nodeType = pwcore.VirtualNode_Filter
	}

	cfg := pwcore.VirtualNodeConfig{
		Name:          spec.Name,
		Description:   spec.Description,
		Type:          nodeType,
		Factory:       factory,
		Channels:      spec.Channels,
		SampleRate:    48000,
		BitDepth:      32,
		ChannelLayout: strings.Join(spec.ChannelLayout, " "),
	}
	if spec.IsFilter && spec.InputFromNode != 0 {
		// Wires the filter-chain node to read from its upstream channel
		// sink's monitor_* ports at creation time, the way a real
		// filter-chain target.object property pins a node's input without
		// a separate pw_link (§4.1's filter input wiring).
		cfg.CustomProps = map[string]interface{}{"target.object": spec.InputFromNode}
	}
	if err := cfg.Validate(); err != nil {
		return NodeHandle{}, fmt.Errorf("invalid node config for %s: %w", spec.Name, err)
	}

	vnode, err := b.client.CreateVirtualNode(cfg)
	if err != nil {
		return NodeHandle{}, fmt.Errorf("create virtual node %s: %w", spec.Name, err)
	}

	b.virtualNodes[vnode.ID] = vnode
	return NodeHandle{ID: vnode.ID, Name: spec.Name}, nil
}

func (b *PWBackend) DestroyNode(ctx context.Context, id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vnode, ok := b.virtualNodes[id]
	if !ok {
		return nil
	}
	delete(b.virtualNodes, id)
	return vnode.Delete()
}

func (b *PWBackend) SetFilterVolume(ctx context.Context, id uint32, gains []float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vnode, ok := b.virtualNodes[id]
	if !ok {
		return fmt.Errorf("no virtual node %d owned by this backend", id)
	}
	return vnode.UpdateProperty("monitor.channel-volumes", gains)
}

func (b *PWBackend) SetFilterMute(ctx context.Context, id uint32, muted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vnode, ok := b.virtualNodes[id]
	if !ok {
		return fmt.Errorf("no virtual node %d owned by this backend", id)
	}
	return vnode.UpdateProperty("monitor.mute", muted)
}

func (b *PWBackend) CreateLink(ctx context.Context, outputNode, outputPort, inputNode, inputPort uint32) (LinkHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return LinkHandle{}, fmt.Errorf("pipewire client not connected")
	}

	link := &pwclient.Link{OutputPort: outputPort, InputPort: inputPort}
	if err := b.client.CreateLink(link); err != nil {
		return LinkHandle{}, fmt.Errorf("create link %d->%d: %w", outputPort, inputPort, err)
	}
	return LinkHandle{ID: link.ID}, nil
}

func (b *PWBackend) DestroyLink(ctx context.Context, id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil
	}
	return b.client.DestroyLink(id)
}

func (b *PWBackend) FindPort(ctx context.Context, nodeID uint32, direction PortDirection, designator string) (uint32, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return 0, false, fmt.Errorf("pipewire client not connected")
	}

	node := b.client.GetNode(nodeID)
	if node == nil {
		return 0, false, nil
	}

	wantDir := pwclient.PortDirectionInput
	prefix := "playback_"
	if direction == PortOutput {
		wantDir = pwclient.PortDirectionOutput
		prefix = "monitor_"
	}

	for _, port := range node.GetPorts() {
		if port.Direction != wantDir {
			continue
		}
		if port.Name == prefix+designator || port.Name == designator {
			return port.ID, true, nil
		}
	}
	return 0, false, nil
}

func (b *PWBackend) Events() <-chan ObservedEvent {
	return b.events
}

// nodeInfoFromClient classifies by the server's own reported media class,
// not by Direction: NodeDirectionPlayback covers both hardware output
// devices and application playback streams (see the retrieved monitor.go
// sample, which groups every playback-direction node under "OUTPUT
// DEVICES"), so direction alone can't distinguish the daemon's own sinks
// from a stream. Only Stream/* nodes get Binary/ProgramName populated from
// their application.* properties, since those are meaningless for hardware
// sinks and sources.
func nodeInfoFromClient(node *pwclient.Node) *NodeInfo {
	info := &NodeInfo{ID: node.GetID(), Name: node.Name()}
	switch node.GetMediaClass() {
	case pwclient.MediaClassAudioSink:
		info.MediaClass = MediaClassSink
	case pwclient.MediaClassAudioSource:
		info.MediaClass = MediaClassSource
	case pwclient.MediaClassStream, pwclient.MediaClassStreamAudio,
		pwclient.MediaClassStreamAudioPlayback, pwclient.MediaClassStreamAudioCapture:
		info.MediaClass = MediaClassStream
		info.Binary = node.GetProperty("application.process.binary", "")
		info.ProgramName = node.GetProperty("application.name", "")
	}
	return info
}

func portInfoFromClient(port *pwclient.Port) *PortInfo {
	dir := PortInput
	if port.Direction == pwclient.PortDirectionOutput {
		dir = PortOutput
	}
	return &PortInfo{ID: port.ID, NodeID: port.NodeID, Direction: dir, Designator: port.Name}
}

func linkInfoFromClient(link *pwclient.Link) *LinkInfo {
	return &LinkInfo{ID: link.ID, OutputPort: link.OutputPort, InputPort: link.InputPort}
}
