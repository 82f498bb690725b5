/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package graph

import (
	"context"
	"fmt"

	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
)

var stereoLayout = []string{"FL", "FR"}

// Exported Create*/Set*/Destroy* methods are the command surface callers
// outside the graph thread use: they go through Submit, which enqueues the
// work and blocks for its result. The matching *Direct helpers do the same
// backend work without going through Submit, for use by rebuild/teardown,
// which already execute on the graph thread and would deadlock enqueuing
// onto their own queue.

// CreateSink creates a plain sink node (channel sink or mix sink) and waits
// for BOUND.
func (e *Engine) CreateSink(ctx context.Context, name, description string) (NodeHandle, error) {
	v, err := e.Submit(ctx, func(ctx context.Context) (any, error) {
		return e.createSinkDirect(ctx, name, description)
	})
	if err != nil {
		return NodeHandle{}, err
	}
	return v.(NodeHandle), nil
}

func (e *Engine) createSinkDirect(ctx context.Context, name, description string) (NodeHandle, error) {
	handle, err := e.backend.CreateNode(ctx, NodeSpec{
		Name:          name,
		Description:   description,
		Channels:      2,
		ChannelLayout: stereoLayout,
	})
	if err != nil {
		return NodeHandle{}, wrapCreateErr(name, err)
	}
	return handle, nil
}

// CreateVolumeFilter creates the intermediate gain/mute node sitting
// between a channel sink's monitor output (inputFromNode) and a mix.
func (e *Engine) CreateVolumeFilter(ctx context.Context, name string, inputFromNode uint32) (NodeHandle, error) {
	v, err := e.Submit(ctx, func(ctx context.Context) (any, error) {
		return e.createVolumeFilterDirect(ctx, name, inputFromNode)
	})
	if err != nil {
		return NodeHandle{}, err
	}
	return v.(NodeHandle), nil
}

func (e *Engine) createVolumeFilterDirect(ctx context.Context, name string, inputFromNode uint32) (NodeHandle, error) {
	handle, err := e.backend.CreateNode(ctx, NodeSpec{
		Name:          name,
		Channels:      2,
		ChannelLayout: stereoLayout,
		IsFilter:      true,
		InputFromNode: inputFromNode,
	})
	if err != nil {
		return NodeHandle{}, wrapCreateErr(name, err)
	}
	return handle, nil
}

// SetFilterVolume pushes a uniform per-channel gain vector onto a volume
// filter node.
func (e *Engine) SetFilterVolume(ctx context.Context, nodeID uint32, gain float64) error {
	_, err := e.Submit(ctx, func(ctx context.Context) (any, error) {
		return nil, e.setFilterVolumeDirect(ctx, nodeID, gain)
	})
	return err
}

func (e *Engine) setFilterVolumeDirect(ctx context.Context, nodeID uint32, gain float64) error {
	gains := make([]float64, len(stereoLayout))
	for i := range gains {
		gains[i] = gain
	}
	return e.backend.SetFilterVolume(ctx, nodeID, gains)
}

// SetFilterMute updates a volume filter node's mute flag.
func (e *Engine) SetFilterMute(ctx context.Context, nodeID uint32, muted bool) error {
	_, err := e.Submit(ctx, func(ctx context.Context) (any, error) {
		return nil, e.backend.SetFilterMute(ctx, nodeID, muted)
	})
	return err
}

// CreateStereoLinks is the "create stereo links" convenience: it emits two
// individual links, FL and FR, between the given nodes' ports.
func (e *Engine) CreateStereoLinks(ctx context.Context, outputNode uint32, outputSelector func(ch string) string, inputNode uint32, inputSelector func(ch string) string) ([]LinkHandle, error) {
	v, err := e.Submit(ctx, func(ctx context.Context) (any, error) {
		return e.createStereoLinksDirect(ctx, outputNode, outputSelector, inputNode, inputSelector)
	})
	if err != nil {
		return nil, err
	}
	return v.([]LinkHandle), nil
}

func (e *Engine) createStereoLinksDirect(ctx context.Context, outputNode uint32, outputSelector func(ch string) string, inputNode uint32, inputSelector func(ch string) string) ([]LinkHandle, error) {
	handles := make([]LinkHandle, 0, len(stereoLayout))
	for _, ch := range stereoLayout {
		outPort, ok, err := e.backend.FindPort(ctx, outputNode, PortOutput, outputSelector(ch))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ipcerr.PortNotFound(fmt.Sprintf("node %d", outputNode), outputSelector(ch))
		}
		inPort, ok, err := e.backend.FindPort(ctx, inputNode, PortInput, inputSelector(ch))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ipcerr.PortNotFound(fmt.Sprintf("node %d", inputNode), inputSelector(ch))
		}
		handle, err := e.backend.CreateLink(ctx, outputNode, outPort, inputNode, inPort)
		if err != nil {
			return nil, err
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// DestroyLink destroys a link by id via the server registry.
func (e *Engine) DestroyLink(ctx context.Context, id uint32) error {
	_, err := e.Submit(ctx, func(ctx context.Context) (any, error) {
		return nil, e.backend.DestroyLink(ctx, id)
	})
	return err
}

// DestroyLinks destroys a set of links, collecting the first error but
// attempting every one so a single stuck link does not leak the rest.
func (e *Engine) DestroyLinks(ctx context.Context, handles []LinkHandle) error {
	var firstErr error
	for _, h := range handles {
		if err := e.DestroyLink(ctx, h.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func wrapCreateErr(name string, err error) error {
	return ipcerr.GraphTransientErr("create_failed", fmt.Sprintf("creating %s", name), err)
}

// channelInputSelector and channelOutputSelector implement the port-naming
// convention assumed by §4.1: sinks expose "playback_FL"/"playback_FR" and
// mirror "monitor_FL"/"monitor_FR"; volume filters sit so a sink's
// monitor_* ports feed the filter, and the filter's monitor_* ports feed
// the downstream mix's playback_* ports.
func channelInputSelector(ch string) string  { return ch }
func channelOutputSelector(ch string) string { return ch }
