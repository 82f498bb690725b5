/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package device

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetGainWithNoMixerBinReturnsSubprocessError(t *testing.T) {
	c := NewController("", nil, Identity{}, zerolog.Nop())
	if err := c.SetGain(context.Background(), 0.5); err == nil {
		t.Fatal("expected an error with no mixer binary configured")
	}
}

func TestToggleMuteFailsWhenEveryControlNameFails(t *testing.T) {
	// "false" always exits non-zero, so every candidate control name fails
	// and ToggleMute reports an error.
	c := NewController("false", []string{"Capture", "Mic", "Microphone"}, Identity{}, zerolog.Nop())
	if err := c.ToggleMute(context.Background()); err == nil {
		t.Fatal("expected an error when every control name fails")
	}
}

func TestSetGainResolvesControlOnSuccess(t *testing.T) {
	// "true" always exits zero, so the first candidate should resolve and
	// stick for subsequent calls.
	c := NewController("true", []string{"Capture", "Mic"}, Identity{}, zerolog.Nop())
	if err := c.SetGain(context.Background(), 0.8); err != nil {
		t.Fatalf("SetGain: %v", err)
	}
	if c.resolvedControl != "Capture" {
		t.Fatalf("resolvedControl = %q, want %q", c.resolvedControl, "Capture")
	}
}

func TestIdentifyDoesNotPanic(t *testing.T) {
	// The sandboxed test environment may or may not expose /sys/bus/usb;
	// either way Identify must return without panicking.
	_, _ = Identify(ElgatoWave3VendorID, ElgatoWave3ProductID)
}
