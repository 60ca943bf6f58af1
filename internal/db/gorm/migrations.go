// Package gorm provides GORM-based local persistence for promptlib.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Prompts
		{
			ID: "001_prompts",
			Migrate: func(tx *gorm.DB) error {
				// AutoMigrate creates tables with all indexes from struct tags
				return tx.AutoMigrate(&PromptRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("prompts")
			},
		},

		// Migration 002: Categories and settings
		{
			ID: "002_categories_settings",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&CategoryRow{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&SettingsRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&MetaRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("categories", "settings", "local_meta")
			},
		},

		// Migration 003: Remote write outbox
		{
			ID: "003_outbox_ops",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&OutboxOp{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("outbox_ops")
			},
		},
	})

	return m.Migrate()
}
