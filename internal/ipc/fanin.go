/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ipc

import (
	"github.com/friendsincode/grimnir_radio/internal/events"
)

// taggedEvent carries the EventType alongside its payload, since
// events.Subscriber channels are per-type and a connection wants to wait on
// all of them at once.
type taggedEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// eventSet owns one Subscriber per client-facing event type. The connection
// goroutine is the sole reader of every channel in the set: because
// Publish's channel send lands in the subscriber's buffer synchronously
// (sends to a buffered channel never wait for a receiver), draining right
// after a mutating request's dispatch call reliably picks up that
// mutation's own event before anything else touches the channel.
type eventSet struct {
	bus  *events.Bus
	subs map[events.EventType]events.Subscriber
}

func newEventSet(bus *events.Bus, eventTypes []events.EventType) *eventSet {
	subs := make(map[events.EventType]events.Subscriber, len(eventTypes))
	for _, et := range eventTypes {
		subs[et] = bus.Subscribe(et)
	}
	return &eventSet{bus: bus, subs: subs}
}

func (s *eventSet) close() {
	for et, sub := range s.subs {
		s.bus.Unsubscribe(et, sub)
	}
}

// drainPending drains every channel's currently buffered items without
// blocking, in no particular cross-type order (same-type order is
// preserved).
func (s *eventSet) drainPending() []taggedEvent {
	var out []taggedEvent
	for et, sub := range s.subs {
	drain:
		for {
			select {
			case payload, ok := <-sub:
				if !ok {
					break drain
				}
				out = append(out, taggedEvent{eventType: et, payload: payload})
			default:
				break drain
			}
		}
	}
	return out
}
