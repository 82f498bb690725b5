/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import "time"

// Row types mirror the tables in spec.md §4.5. Column names use gorm's
// default snake_case convention.

// ChannelRow is a row of the channels table: the five canonical channels,
// seeded once on first run.
type ChannelRow struct {
	Name    string `gorm:"primaryKey"`
	Display string
}

// ChannelStateRow is a row of channel_states: per-(channel,mix) volume/mute.
type ChannelStateRow struct {
	Channel string  `gorm:"primaryKey"`
	Mix     string  `gorm:"primaryKey"`
	Volume  float64
	Muted   bool
}

func (ChannelStateRow) TableName() string { return "channel_states" }

// AppRouteRow is a row of app_routes: an explicit binary -> channel route.
// Persistent is true for routes saved via SetAppRoute{persistent: true};
// non-persistent routes never reach this table.
type AppRouteRow struct {
	Binary     string `gorm:"primaryKey"`
	Channel    string
	Persistent bool
}

func (AppRouteRow) TableName() string { return "app_routes" }

// ProfileRow is a row of profiles.
type ProfileRow struct {
	Name      string `gorm:"primaryKey"`
	IsDefault bool
}

func (ProfileRow) TableName() string { return "profiles" }

// ProfileChannelStateRow is a row of profile_channel_states: a profile's
// snapshot of per-(channel,mix) volume/mute.
type ProfileChannelStateRow struct {
	Profile string `gorm:"primaryKey"`
	Channel string `gorm:"primaryKey"`
	Mix     string `gorm:"primaryKey"`
	Volume  float64
	Muted   bool
}

func (ProfileChannelStateRow) TableName() string { return "profile_channel_states" }

// ProfileMasterStateRow is a row of profile_master_states: a profile's
// snapshot of a mix's master volume/mute (spec.md §3's Profile carries
// "master (stream, monitor) volumes/mutes" alongside per-channel state).
type ProfileMasterStateRow struct {
	Profile string `gorm:"primaryKey"`
	Mix     string `gorm:"primaryKey"`
	Volume  float64
	Muted   bool
}

func (ProfileMasterStateRow) TableName() string { return "profile_master_states" }

// ProfileRouteRow is a row of profile_routes: a profile's route-map overlay
// entry. Absence from this table, for a given (profile,binary), means
// "fall through to the global rule set" (§4.3).
type ProfileRouteRow struct {
	Profile string `gorm:"primaryKey"`
	Binary  string `gorm:"primaryKey"`
	Channel string
}

func (ProfileRouteRow) TableName() string { return "profile_routes" }

// SettingRow is a row of settings: the catch-all key/value table backing
// master volume/mute per mix and the selected monitor output device, none
// of which warrant their own table.
type SettingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (SettingRow) TableName() string { return "settings" }

// schemaVersionRow is a row of schema_version: one row per applied
// migration step, so Migrate can run idempotently on every startup.
type schemaVersionRow struct {
	Version   int `gorm:"primaryKey"`
	AppliedAt time.Time
}

func (schemaVersionRow) TableName() string { return "schema_version" }
