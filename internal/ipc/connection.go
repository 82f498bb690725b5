/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"reflect"

	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
)

// handleConn runs one connection end to end: a reader goroutine parses
// line-delimited JSON requests into requestCh; this goroutine is the sole
// dispatcher and the sole writer, so response/event ordering is never
// ambiguous.
//
// Everything this goroutine waits on — shutdown, a read error, the next
// request, the next subscribed event — is merged into one reflect.Select
// call per iteration. That keeps this the only reader of a subscription's
// channels: a mutating request's own event is reliably drained right after
// its dispatch call returns (Publish lands the payload in the subscriber's
// buffer synchronously, before Publish itself returns), with no second
// goroutine racing to steal it first.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	requestCh := make(chan request, 8)
	readErrCh := make(chan error, 1)
	go readRequests(conn, requestCh, readErrCh)

	writer := bufio.NewWriter(conn)
	var subs *eventSet
	defer func() {
		if subs != nil {
			subs.close()
		}
	}()

	for {
		kind, et, payload, req, err := s.awaitNext(connCtx, requestCh, readErrCh, subs)
		switch kind {
		case awaitDone:
			return
		case awaitReadErr:
			if err != nil && !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Msg("connection read error")
			}
			return
		case awaitEvent:
			s.writeEvent(writer, taggedEvent{eventType: et, payload: payload})
		case awaitRequest:
			s.handleRequest(connCtx, writer, req, &subs)
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, writer *bufio.Writer, req request, subs **eventSet) {
	var header methodHeader
	if err := json.Unmarshal(req.Method, &header); err != nil {
		s.writeResponse(writer, req.ID, nil, ipcerr.TransportErr("malformed_method", "method object missing a type discriminator", err))
		return
	}

	if header.Type == "Subscribe" {
		if *subs == nil {
			*subs = newEventSet(s.bus, clientFacingEvents)
		}
		s.writeResponse(writer, req.ID, map[string]any{}, nil)
		return
	}

	result, err := s.dispatch(ctx, header.Type, req.Method)

	if *subs != nil {
		for _, te := range (*subs).drainPending() {
			s.writeEvent(writer, te)
		}
	}

	s.writeResponse(writer, req.ID, result, err)

	if header.Type == "Shutdown" && err == nil {
		s.requestShutdown()
	}
}

type awaitKind int

const (
	awaitDone awaitKind = iota
	awaitReadErr
	awaitRequest
	awaitEvent
)

// awaitNext blocks for whichever of {ctx cancellation, a read error, the
// next request, the next subscribed event} happens first.
func (s *Server) awaitNext(ctx context.Context, requestCh <-chan request, readErrCh <-chan error, subs *eventSet) (awaitKind, events.EventType, events.Payload, request, error) {
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(readErrCh)},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(requestCh)},
	}
	const fixedCases = 3
	var types []events.EventType
	if subs != nil {
		for et, sub := range subs.subs {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub)})
			types = append(types, et)
		}
	}

	chosen, value, ok := reflect.Select(cases)
	switch {
	case chosen == 0:
		return awaitDone, "", nil, request{}, nil
	case chosen == 1:
		var readErr error
		if ok {
			readErr, _ = value.Interface().(error)
		}
		return awaitReadErr, "", nil, request{}, readErr
	case chosen == 2:
		if !ok {
			return awaitReadErr, "", nil, request{}, nil
		}
		req, _ := value.Interface().(request)
		return awaitRequest, "", nil, req, nil
	default:
		if !ok {
			return awaitDone, "", nil, request{}, nil
		}
		et := types[chosen-fixedCases]
		payload, _ := value.Interface().(events.Payload)
		return awaitEvent, et, payload, request{}, nil
	}
}

func readRequests(conn net.Conn, out chan<- request, errCh chan<- error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		out <- req
	}
	errCh <- scanner.Err()
}

func (s *Server) writeResponse(w *bufio.Writer, id int64, ok any, err error) {
	resp := response{ID: id}
	if err != nil {
		resp.Result = result{Err: &errorEnvelope{
			Category: string(ipcerr.CategoryOf(err)),
			Code:     ipcerr.CodeOf(err),
			Message:  err.Error(),
		}}
	} else {
		if ok == nil {
			ok = map[string]any{}
		}
		resp.Result = result{Ok: ok}
	}
	s.writeLine(w, resp)
}

func (s *Server) writeEvent(w *bufio.Writer, te taggedEvent) {
	s.writeLine(w, newEventLine(te.eventType, te.payload))
}

func (s *Server) writeLine(w *bufio.Writer, v any) {
	line, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal outgoing line")
		return
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		return
	}
	_ = w.Flush()
}
