// Package gorm provides GORM-based local persistence for promptlib.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/promptlib/pkg/models"
)

const (
	settingsRowID        = 1
	metaCategoriesStored = "categories_stored"
	saveBatchSize        = 200
)

// LocalStore persists whole prompt, category and settings collections.
// Each Save call replaces the stored collection in one transaction.
type LocalStore struct {
	db *gorm.DB
}

// NewLocalStore creates a new local collection store.
func NewLocalStore(store *Store) *LocalStore {
	return &LocalStore{db: store.DB}
}

// LoadPrompts returns the stored prompts in saved order.
func (s *LocalStore) LoadPrompts(ctx context.Context) ([]*models.Prompt, error) {
	var rows []PromptRow
	err := s.db.WithContext(ctx).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	prompts := make([]*models.Prompt, 0, len(rows))
	for i := range rows {
		prompts = append(prompts, toModelPrompt(&rows[i]))
	}
	return prompts, nil
}

// SavePrompts replaces the stored prompt collection.
func (s *LocalStore) SavePrompts(ctx context.Context, prompts []*models.Prompt) error {
	rows := make([]*PromptRow, 0, len(prompts))
	for i, p := range prompts {
		rows = append(rows, toPromptRow(p, i))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&PromptRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, saveBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	return nil
}

// LoadCategories returns the stored categories, or the default set when
// categories have never been saved.
func (s *LocalStore) LoadCategories(ctx context.Context) ([]models.Category, error) {
	stored, err := s.metaFlag(ctx, metaCategoriesStored)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if !stored {
		return models.DefaultCategories(), nil
	}

	var rows []CategoryRow
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	categories := make([]models.Category, 0, len(rows))
	for i := range rows {
		categories = append(categories, toModelCategory(&rows[i]))
	}
	return categories, nil
}

// SaveCategories replaces the stored category collection.
func (s *LocalStore) SaveCategories(ctx context.Context, categories []models.Category) error {
	rows := make([]*CategoryRow, 0, len(categories))
	for i, c := range categories {
		rows = append(rows, toCategoryRow(c, i))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CategoryRow{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(rows).Error; err != nil {
				return err
			}
		}
		return setMeta(tx, metaCategoriesStored, "1")
	})
	if err != nil {
		return fmt.Errorf("save categories: %w", err)
	}
	return nil
}

// LoadSettings returns stored settings, or defaults when none are stored.
func (s *LocalStore) LoadSettings(ctx context.Context) (models.Settings, error) {
	var row SettingsRow
	err := s.db.WithContext(ctx).First(&row, settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.DefaultSettings(), fmt.Errorf("load settings: %w", err)
	}

	settings := models.Settings{
		ViewMode: models.ViewMode(row.ViewMode),
		SortBy:   models.SortOption(row.SortBy),
		Theme:    models.Theme(row.Theme),
	}
	return settings, nil
}

// SaveSettings stores the settings record.
func (s *LocalStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	row := &SettingsRow{
		ID:        settingsRowID,
		ViewMode:  string(settings.ViewMode),
		SortBy:    string(settings.SortBy),
		Theme:     string(settings.Theme),
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *LocalStore) metaFlag(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&MetaRow{}).
		Where("key = ?", key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func setMeta(tx *gorm.DB, key, value string) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&MetaRow{Key: key, Value: value}).Error
}
