/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ipc is the IPC Server: it exposes the daemon over a local Unix
// stream socket using line-delimited JSON framing (spec.md §4.4).
package ipc

import (
	"encoding/json"

	"github.com/friendsincode/grimnir_radio/internal/events"
)

// request is one client-to-server line: {"id": N, "method": {"type": ..., ...}}.
type request struct {
	ID     int64           `json:"id"`
	Method json.RawMessage `json:"method"`
}

// methodHeader extracts just the discriminator from a request's method
// object; callers then re-unmarshal Method into a method-specific struct.
type methodHeader struct {
	Type string `json:"type"`
}

// response is one server-to-client line answering a request by ID.
type response struct {
	ID     int64  `json:"id"`
	Result result `json:"result"`
}

type result struct {
	Ok  any            `json:"Ok,omitempty"`
	Err *errorEnvelope `json:"Err,omitempty"`
}

type errorEnvelope struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// eventLine is one unsolicited server-to-client line: {"event": {"type": ..., ...}}.
type eventLine struct {
	Event map[string]any `json:"event"`
}

func newEventLine(eventType events.EventType, payload events.Payload) eventLine {
	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["type"] = string(eventType)
	return eventLine{Event: merged}
}
