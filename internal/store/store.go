/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store is Undertone's persistence layer: an embedded sqlite file
// under $XDG_DATA_HOME/undertone/undertone.db holding channel/master state,
// app routes, and profiles (spec.md §4.5).
package store

import (
	"context"
	"fmt"

	"github.com/friendsincode/grimnir_radio/internal/model"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	settingKeyMasterVolumePrefix = "master_volume_"
	settingKeyMasterMutePrefix   = "master_mute_"
	settingKeyMonitorOutput      = "monitor_output_device"
)

// Store wraps a gorm connection to the daemon's sqlite database.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Open connects to the sqlite database at path (created if absent) and
// applies any pending migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	// A single-user, single-process daemon has no use for a connection
	// pool; one connection avoids sqlite's writer-lock contention.
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return &Store{db: db, logger: logger.With().Str("component", "store").Logger()}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveChannelState upserts a (channel,mix) row. Satisfies mixer.Store.
func (s *Store) SaveChannelState(ctx context.Context, ch model.Channel, mix model.Mix, state model.ChannelState) error {
	row := ChannelStateRow{Channel: string(ch), Mix: string(mix), Volume: state.Volume, Muted: state.Muted}
	return s.db.WithContext(ctx).Save(&row).Error
}

// SaveMasterState upserts the master volume/mute settings for mix.
// Satisfies mixer.Store.
func (s *Store) SaveMasterState(ctx context.Context, mix model.Mix, state model.MasterState) error {
	if err := s.setSetting(ctx, settingKeyMasterVolumePrefix+string(mix), fmt.Sprintf("%g", state.Volume)); err != nil {
		return err
	}
	muted := "false"
	if state.Muted {
		muted = "true"
	}
	return s.setSetting(ctx, settingKeyMasterMutePrefix+string(mix), muted)
}

// SaveMonitorOutputDevice records the selected monitor output device name.
// Satisfies mixer.Store.
func (s *Store) SaveMonitorOutputDevice(ctx context.Context, deviceName string) error {
	return s.setSetting(ctx, settingKeyMonitorOutput, deviceName)
}

// SaveAppRoute upserts an explicit, persistent app route. Satisfies
// router.Store.
func (s *Store) SaveAppRoute(ctx context.Context, binary string, channel model.Channel, persistent bool) error {
	row := AppRouteRow{Binary: binary, Channel: string(channel), Persistent: persistent}
	return s.db.WithContext(ctx).Save(&row).Error
}

// RemoveAppRoute deletes a binary's persisted route, if any. Satisfies
// router.Store.
func (s *Store) RemoveAppRoute(ctx context.Context, binary string) error {
	return s.db.WithContext(ctx).Delete(&AppRouteRow{}, "binary = ?", binary).Error
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	row := SettingRow{Key: key, Value: value}
	return s.db.WithContext(ctx).Save(&row).Error
}

// LoadChannelStates reads every persisted (channel,mix) row, for daemon
// startup hydration. Missing rows simply mean "use defaults."
func (s *Store) LoadChannelStates(ctx context.Context) (map[model.Channel]map[model.Mix]model.ChannelState, error) {
	var rows []ChannelStateRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load channel_states: %w", err)
	}
	out := make(map[model.Channel]map[model.Mix]model.ChannelState)
	for _, row := range rows {
		ch := model.Channel(row.Channel)
		if out[ch] == nil {
			out[ch] = make(map[model.Mix]model.ChannelState)
		}
		out[ch][model.Mix(row.Mix)] = model.ChannelState{Volume: row.Volume, Muted: row.Muted}
	}
	return out, nil
}

// LoadMasterStates reads every persisted master volume/mute setting.
func (s *Store) LoadMasterStates(ctx context.Context) (map[model.Mix]model.MasterState, error) {
	out := make(map[model.Mix]model.MasterState)
	for _, mix := range model.Mixes {
		state := model.MasterState{Volume: 1, Muted: false}
		if v, ok, err := s.getSetting(ctx, settingKeyMasterVolumePrefix+string(mix)); err != nil {
			return nil, err
		} else if ok {
			fmt.Sscanf(v, "%g", &state.Volume)
		}
		if v, ok, err := s.getSetting(ctx, settingKeyMasterMutePrefix+string(mix)); err != nil {
			return nil, err
		} else if ok {
			state.Muted = v == "true"
		}
		out[mix] = state
	}
	return out, nil
}

// LoadMonitorOutputDevice reads the persisted monitor output device name,
// if one was ever selected.
func (s *Store) LoadMonitorOutputDevice(ctx context.Context) (string, bool, error) {
	return s.getSetting(ctx, settingKeyMonitorOutput)
}

func (s *Store) getSetting(ctx context.Context, key string) (string, bool, error) {
	var row SettingRow
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return row.Value, true, nil
}

// LoadAppRoutes reads every persisted explicit app route.
func (s *Store) LoadAppRoutes(ctx context.Context) ([]model.AppRoute, error) {
	var rows []AppRouteRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load app_routes: %w", err)
	}
	out := make([]model.AppRoute, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.AppRoute{Pattern: row.Binary, Channel: model.Channel(row.Channel), Persistent: row.Persistent})
	}
	return out, nil
}

// ListProfiles returns every saved profile name, is-default first.
func (s *Store) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	var rows []ProfileRow
	if err := s.db.WithContext(ctx).Order("is_default DESC, name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]model.Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Profile{Name: row.Name, IsDefault: row.IsDefault})
	}
	return out, nil
}

// SaveProfile writes (or overwrites) a named profile snapshot: its
// per-channel states, its per-mix master volume/mute, and its route-map
// overlay.
func (s *Store) SaveProfile(ctx context.Context, profile model.Profile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&ProfileRow{Name: profile.Name, IsDefault: profile.IsDefault}).Error; err != nil {
			return fmt.Errorf("save profile row: %w", err)
		}
		if err := tx.Delete(&ProfileChannelStateRow{}, "profile = ?", profile.Name).Error; err != nil {
			return fmt.Errorf("clear profile channel states: %w", err)
		}
		for ch, byMix := range profile.ChannelState {
			for mix, state := range byMix {
				row := ProfileChannelStateRow{Profile: profile.Name, Channel: string(ch), Mix: string(mix), Volume: state.Volume, Muted: state.Muted}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("write profile channel state %s/%s: %w", ch, mix, err)
				}
			}
		}
		if err := tx.Delete(&ProfileMasterStateRow{}, "profile = ?", profile.Name).Error; err != nil {
			return fmt.Errorf("clear profile master states: %w", err)
		}
		for mix, state := range profile.MasterState {
			row := ProfileMasterStateRow{Profile: profile.Name, Mix: string(mix), Volume: state.Volume, Muted: state.Muted}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("write profile master state %s: %w", mix, err)
			}
		}
		if err := tx.Delete(&ProfileRouteRow{}, "profile = ?", profile.Name).Error; err != nil {
			return fmt.Errorf("clear profile routes: %w", err)
		}
		for _, route := range profile.RouteMap {
			row := ProfileRouteRow{Profile: profile.Name, Binary: route.Pattern, Channel: string(route.Channel)}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("write profile route %s: %w", route.Pattern, err)
			}
		}
		return nil
	})
}

// LoadProfile reads a named profile's full snapshot, including its
// channel states and route-map overlay.
func (s *Store) LoadProfile(ctx context.Context, name string) (model.Profile, error) {
	var row ProfileRow
	if err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.Profile{}, fmt.Errorf("profile %q not found", name)
		}
		return model.Profile{}, fmt.Errorf("load profile %s: %w", name, err)
	}

	var stateRows []ProfileChannelStateRow
	if err := s.db.WithContext(ctx).Find(&stateRows, "profile = ?", name).Error; err != nil {
		return model.Profile{}, fmt.Errorf("load profile channel states: %w", err)
	}
	channelState := make(map[model.Channel]map[model.Mix]model.ChannelState)
	for _, sr := range stateRows {
		ch := model.Channel(sr.Channel)
		if channelState[ch] == nil {
			channelState[ch] = make(map[model.Mix]model.ChannelState)
		}
		channelState[ch][model.Mix(sr.Mix)] = model.ChannelState{Volume: sr.Volume, Muted: sr.Muted}
	}

	var masterRows []ProfileMasterStateRow
	if err := s.db.WithContext(ctx).Find(&masterRows, "profile = ?", name).Error; err != nil {
		return model.Profile{}, fmt.Errorf("load profile master states: %w", err)
	}
	masterState := make(map[model.Mix]model.MasterState, len(masterRows))
	for _, mr := range masterRows {
		masterState[model.Mix(mr.Mix)] = model.MasterState{Volume: mr.Volume, Muted: mr.Muted}
	}

	var routeRows []ProfileRouteRow
	if err := s.db.WithContext(ctx).Find(&routeRows, "profile = ?", name).Error; err != nil {
		return model.Profile{}, fmt.Errorf("load profile routes: %w", err)
	}
	routes := make([]model.ProfileRoute, 0, len(routeRows))
	for _, rr := range routeRows {
		routes = append(routes, model.ProfileRoute{Pattern: rr.Binary, Channel: model.Channel(rr.Channel)})
	}

	return model.Profile{
		Name:         row.Name,
		IsDefault:    row.IsDefault,
		ChannelState: channelState,
		MasterState:  masterState,
		RouteMap:     routes,
	}, nil
}

// DeleteProfile removes a named profile and its snapshot rows.
func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ProfileChannelStateRow{}, "profile = ?", name).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ProfileMasterStateRow{}, "profile = ?", name).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ProfileRouteRow{}, "profile = ?", name).Error; err != nil {
			return err
		}
		return tx.Delete(&ProfileRow{}, "name = ?", name).Error
	})
}

// SeedChannels inserts the five canonical channel rows if the table is
// empty, so the channels table is always populated on first run.
func (s *Store) SeedChannels(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ChannelRow{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count channels: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, ch := range model.Channels {
		row := ChannelRow{Name: string(ch), Display: ch.DisplayName()}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("seed channel %s: %w", ch, err)
		}
	}
	return nil
}
