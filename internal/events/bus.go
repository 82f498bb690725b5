/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates the event categories the IPC Server fans out to
// subscribers, plus the internal graph-observation events that drive mirror
// maintenance before classification.
type EventType string

const (
	// Raw graph-observation events, forwarded internally from the Graph
	// Engine to the Mixer Core / Router before classification.
	EventNodeAdded   EventType = "graph.node_added"
	EventNodeRemoved EventType = "graph.node_removed"
	EventPortAdded   EventType = "graph.port_added"
	EventPortRemoved EventType = "graph.port_removed"
	EventLinkAdded   EventType = "graph.link_added"
	EventLinkRemoved EventType = "graph.link_removed"

	// EventStreamObserved carries a freshly observed app stream from the
	// Graph Engine to the Router, before classification. Kept distinct from
	// the client-facing EventAppAppeared so the Router's own re-publish of
	// the classified event (with a resolved channel) never feeds back into
	// its own subscription.
	EventStreamObserved EventType = "graph.stream_observed"

	// Client-facing events, defined by the IPC protocol.
	EventChannelVolumeChanged   EventType = "ChannelVolumeChanged"
	EventChannelMuteChanged     EventType = "ChannelMuteChanged"
	EventMasterChanged          EventType = "MasterChanged"
	EventDeviceConnected        EventType = "DeviceConnected"
	EventDeviceDisconnected     EventType = "DeviceDisconnected"
	EventAppAppeared            EventType = "AppAppeared"
	EventAppDisappeared         EventType = "AppDisappeared"
	EventAppRouteChanged        EventType = "AppRouteChanged"
	EventProfileListChanged     EventType = "ProfileListChanged"
	EventProfileLoaded          EventType = "ProfileLoaded"
	EventMonitorOutputAvailable EventType = "MonitorOutputAvailable"
	EventMonitorOutputGone      EventType = "MonitorOutputGone"
)

// Payload is a generic event payload, marshaled verbatim into the IPC
// protocol's `"event"` envelope.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub, shared by the internal
// graph-observation pipeline and the IPC Server's client fan-out. Slow
// subscribers never block a Publish: a full channel drops the event rather
// than stalling the daemon. The slow subscriber stays registered; neither
// the Bus nor the IPC Server disconnects it.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers of eventType. Non-blocking: a
// subscriber whose buffer is full simply misses this event.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
