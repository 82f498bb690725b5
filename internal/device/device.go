/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package device is the device-control glue: mic gain/mute via an external
// mixer command, and best-effort USB identification of the capture device.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/ipcerr"
	"github.com/rs/zerolog"
)

const commandTimeout = 3 * time.Second

// Controller shells out to an external mixer command (wpctl, amixer, …) to
// adjust the capture device's hardware gain and mute, since PipeWire's own
// virtual-node volume filters (internal/graph) only ever touch software
// gain on the routed streams, never the device's own hardware control.
type Controller struct {
	bin          string
	controlNames []string
	logger       zerolog.Logger
	identity     Identity

	// resolvedControl remembers the first control name that worked, so
	// later calls skip the probe.
	resolvedControl string
}

// NewController builds a Controller. bin is the mixer binary ("wpctl" or
// "amixer"); controlNames are candidate control names to probe, in order.
// identity is the best-effort USB identification performed once at daemon
// startup (see Identify); a zero-value Identity is a valid "unknown
// device" result.
func NewController(bin string, controlNames []string, identity Identity, logger zerolog.Logger) *Controller {
	return &Controller{
		bin:          bin,
		controlNames: controlNames,
		identity:     identity,
		logger:       logger.With().Str("component", "device_controller").Logger(),
	}
}

// Identity returns the capture device's best-effort USB identification, for
// GetDeviceStatus.
func (c *Controller) Identity() Identity {
	return c.identity
}

// SetGain sets the capture device's hardware gain to value (clamped to
// [0,1] by the caller, spec.md §6). A subprocess failure degrades to a
// logged warning, not a fatal error: the daemon's mixing remains fully
// functional on software gain alone.
func (c *Controller) SetGain(ctx context.Context, value float64) error {
	percent := int(value * 100)
	return c.withControl(ctx, func(ctx context.Context, control string) error {
		return c.run(ctx, "set-volume", control, fmt.Sprintf("%d%%", percent))
	})
}

// ToggleMute toggles the capture device's hardware mute.
func (c *Controller) ToggleMute(ctx context.Context) error {
	return c.withControl(ctx, func(ctx context.Context, control string) error {
		return c.run(ctx, "set-mute", control, "toggle")
	})
}

func (c *Controller) withControl(ctx context.Context, fn func(ctx context.Context, control string) error) error {
	if c.bin == "" {
		return ipcerr.SubprocessErr("no_mixer_configured", "no mic mixer binary configured", nil)
	}
	if c.resolvedControl != "" {
		return fn(ctx, c.resolvedControl)
	}
	if len(c.controlNames) == 0 {
		return ipcerr.SubprocessErr("no_control_names", "no candidate mic control names configured", nil)
	}

	var lastErr error
	for _, control := range c.controlNames {
		if err := fn(ctx, control); err != nil {
			lastErr = err
			continue
		}
		c.resolvedControl = control
		return nil
	}
	return ipcerr.SubprocessErr("control_probe_failed", "no candidate mic control name succeeded", lastErr)
}

func (c *Controller) run(ctx context.Context, args ...string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, c.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		c.logger.Warn().Err(err).Str("bin", c.bin).Strs("args", args).Str("stderr", stderr.String()).Msg("mixer command failed")
		return ipcerr.SubprocessErr("mixer_command_failed", fmt.Sprintf("%s %v", c.bin, args), err)
	}
	return nil
}
