/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config covers process level configuration read from environment variables,
// with an optional YAML overlay for settings that are awkward as env vars.
type Config struct {
	Environment string

	// Control socket.
	RuntimeDir string // $XDG_RUNTIME_DIR, socket lives at <RuntimeDir>/undertone/daemon.sock
	SocketPath string // resolved at Load() time

	// Persistence.
	DataDir string // $XDG_DATA_HOME, store lives at <DataDir>/undertone/undertone.db
	DBPath  string // resolved at Load() time

	// Graph engine.
	PipewireSocket string        // PIPEWIRE_REMOTE, defaults to library default when empty
	BoundDeadline  time.Duration // default 2s, §5
	ReconnectInit  time.Duration // default 250ms
	ReconnectCap   time.Duration // default 10s

	// Device-control glue.
	MicMixerBin     string   // external mixer command, e.g. "wpctl" or "amixer"
	MicControlNames []string // candidate control names to probe, in order

	// Metrics / health (local-only).
	MetricsBind string

	// Default channel volume applied on first run (§8, scenario 1).
	DefaultChannelVolume float64

	LegacyEnvWarnings []string
}

// configFile is the optional YAML overlay shape, parsed from
// $XDG_CONFIG_HOME/undertone/config.yaml when present.
type configFile struct {
	MicMixerBin     string   `yaml:"mic_mixer_bin"`
	MicControlNames []string `yaml:"mic_control_names"`
	AppRules        []struct {
		Pattern string `yaml:"pattern"`
		Channel string `yaml:"channel"`
	} `yaml:"app_rules"`
}

// Load reads environment variables, applies an optional YAML overlay, and
// validates the result. Environment variables always win over the file.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:          getEnvAny([]string{"UNDERTONE_ENV"}, "production"),
		RuntimeDir:           getEnvAny([]string{"XDG_RUNTIME_DIR"}, "/run/user/0"),
		DataDir:              getEnvAny([]string{"XDG_DATA_HOME"}, defaultDataHome()),
		PipewireSocket:       getEnvAny([]string{"UNDERTONE_PIPEWIRE_REMOTE", "PIPEWIRE_REMOTE"}, ""),
		BoundDeadline:        durationOr(getEnvAny([]string{"UNDERTONE_BOUND_DEADLINE_MS"}, ""), 2*time.Second),
		ReconnectInit:        durationOr(getEnvAny([]string{"UNDERTONE_RECONNECT_INITIAL_MS"}, ""), 250*time.Millisecond),
		ReconnectCap:         durationOr(getEnvAny([]string{"UNDERTONE_RECONNECT_CAP_MS"}, ""), 10*time.Second),
		MicMixerBin:          getEnvAny([]string{"UNDERTONE_MIC_MIXER_BIN"}, ""),
		MetricsBind:          getEnvAny([]string{"UNDERTONE_METRICS_BIND"}, "127.0.0.1:9310"),
		DefaultChannelVolume: getEnvFloatAny([]string{"UNDERTONE_DEFAULT_CHANNEL_VOLUME"}, 0.75),
	}

	cfg.SocketPath = filepath.Join(cfg.RuntimeDir, "undertone", "daemon.sock")
	cfg.DBPath = filepath.Join(cfg.DataDir, "undertone", "undertone.db")

	if err := cfg.applyOverlay(); err != nil {
		return nil, fmt.Errorf("config overlay: %w", err)
	}

	if cfg.MicMixerBin == "" {
		cfg.MicMixerBin = "wpctl"
	}
	if len(cfg.MicControlNames) == 0 {
		cfg.MicControlNames = []string{"Capture", "Mic", "Microphone"}
	}

	if cfg.DefaultChannelVolume < 0 || cfg.DefaultChannelVolume > 1 {
		return nil, fmt.Errorf("UNDERTONE_DEFAULT_CHANNEL_VOLUME must be between 0 and 1, got %v", cfg.DefaultChannelVolume)
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// applyOverlay merges the optional YAML config file into cfg. Values already
// set from the environment are never overwritten.
func (c *Config) applyOverlay() error {
	configHome := getEnvAny([]string{"XDG_CONFIG_HOME"}, defaultConfigHome())
	path := filepath.Join(configHome, "undertone", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if c.MicMixerBin == "" {
		c.MicMixerBin = file.MicMixerBin
	}
	if len(c.MicControlNames) == 0 {
		c.MicControlNames = file.MicControlNames
	}

	return nil
}

// AppRuleSeeds reads the optional YAML overlay's app-classification rule
// seeds, used to pre-populate the route table on first run. Absence of the
// file (or of an app_rules section) returns an empty slice, never an error.
func (c *Config) AppRuleSeeds() []RuleSeed {
	configHome := getEnvAny([]string{"XDG_CONFIG_HOME"}, defaultConfigHome())
	path := filepath.Join(configHome, "undertone", "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil
	}

	seeds := make([]RuleSeed, 0, len(file.AppRules))
	for _, r := range file.AppRules {
		seeds = append(seeds, RuleSeed{Pattern: r.Pattern, Channel: r.Channel})
	}
	return seeds
}

// RuleSeed is a default classification rule loaded from the config overlay.
type RuleSeed struct {
	Pattern string
	Channel string
}

func defaultDataHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return filepath.Join(home, ".local", "share")
}

func defaultConfigHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp"
	}
	return filepath.Join(home, ".config")
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"WAVELINK_SOCKET": "undertone has no equivalent; ignored",
	}
	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func durationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}
