/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// migrationStep is one idempotent schema change. Steps run in ascending
// version order; a step already recorded in schema_version is skipped.
// Unlike the teacher's single `AutoMigrate` call (internal/db/migrate.go),
// Undertone's store is versioned explicitly: a single-file sqlite database
// that outlives daemon upgrades needs a record of which steps already ran,
// not just a reconciled-to-current-struct schema.
type migrationStep struct {
	version int
	apply   func(*gorm.DB) error
}

var migrationSteps = []migrationStep{
	{
		version: 1,
		apply: func(db *gorm.DB) error {
			return db.AutoMigrate(
				&ChannelRow{},
				&ChannelStateRow{},
				&AppRouteRow{},
				&ProfileRow{},
				&ProfileChannelStateRow{},
				&ProfileRouteRow{},
				&SettingRow{},
			)
		},
	},
	{
		// Step 1 shipped without a table for a profile's master volume/mute
		// snapshot; spec.md §3 lists master state as part of a Profile, so
		// this adds the missing table rather than folding it into
		// profile_channel_states under a synthetic channel name.
		version: 2,
		apply: func(db *gorm.DB) error {
			return db.AutoMigrate(&ProfileMasterStateRow{})
		},
	},
}

// Migrate applies every migration step not yet recorded in schema_version,
// in order, each inside its own transaction.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&schemaVersionRow{}); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var applied []int
	if err := db.Model(&schemaVersionRow{}).Pluck("version", &applied).Error; err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, step := range migrationSteps {
		if done[step.version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := step.apply(tx); err != nil {
				return fmt.Errorf("apply migration %d: %w", step.version, err)
			}
			return tx.Create(&schemaVersionRow{Version: step.version, AppliedAt: time.Now()}).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}
