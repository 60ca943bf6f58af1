package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/thebtf/promptlib/pkg/models"
)

// CategoryInput carries the fields of a new category.
type CategoryInput struct {
	Name  string `json:"name" validate:"notblank"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Icon  string `json:"icon" validate:"omitempty,category_icon"`
}

// CategoryPatch updates selected fields of a category.
type CategoryPatch struct {
	Name  *string `json:"name" validate:"omitnil,notblank"`
	Color *string `json:"color" validate:"omitnil,omitempty,hexcolor"`
	Icon  *string `json:"icon" validate:"omitnil,omitempty,category_icon"`
}

// Categories returns a copy of the categories in display order.
func (l *Library) Categories() []models.Category {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Category(nil), l.categories...)
}

// CreateCategory appends a category with a new id.
func (l *Library) CreateCategory(ctx context.Context, in CategoryInput) (models.Category, error) {
	if err := validateStruct(in); err != nil {
		return models.Category{}, err
	}

	l.mu.Lock()
	c := models.Category{
		ID:    l.newID(),
		Name:  strings.TrimSpace(in.Name),
		Color: in.Color,
		Icon:  in.Icon,
	}
	l.categories = append(l.categories, c)
	l.saveCategories(ctx)
	l.mu.Unlock()

	l.emit(Event{Type: EventCategories, ID: c.ID})
	return c, nil
}

// UpdateCategory merges patch into the category with id. Prompts keep the
// category name they were saved with.
func (l *Library) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (models.Category, error) {
	if err := validateStruct(patch); err != nil {
		return models.Category{}, err
	}

	l.mu.Lock()
	_, i, ok := lo.FindIndexOf(l.categories, func(c models.Category) bool { return c.ID == id })
	if !ok {
		l.mu.Unlock()
		return models.Category{}, fmt.Errorf("update category %s: %w", id, ErrNotFound)
	}
	c := l.categories[i]
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	if patch.Icon != nil {
		c.Icon = *patch.Icon
	}
	l.categories[i] = c
	l.saveCategories(ctx)
	l.mu.Unlock()

	l.emit(Event{Type: EventCategories, ID: id})
	return c, nil
}

// DeleteCategory removes the category with id. Prompts that reference it by
// name are left untouched.
func (l *Library) DeleteCategory(ctx context.Context, id string) (models.Category, error) {
	l.mu.Lock()
	_, i, ok := lo.FindIndexOf(l.categories, func(c models.Category) bool { return c.ID == id })
	if !ok {
		l.mu.Unlock()
		return models.Category{}, fmt.Errorf("delete category %s: %w", id, ErrNotFound)
	}
	removed := l.categories[i]
	l.categories = append(l.categories[:i:i], l.categories[i+1:]...)
	l.saveCategories(ctx)
	l.mu.Unlock()

	l.emit(Event{Type: EventCategories, ID: id})
	return removed, nil
}

// Settings returns the current settings.
func (l *Library) Settings() models.Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// SetViewMode stores the view mode.
func (l *Library) SetViewMode(ctx context.Context, mode models.ViewMode) error {
	if !mode.Valid() {
		return invalidSetting("viewMode", string(mode))
	}
	return l.updateSettings(ctx, func(s *models.Settings) { s.ViewMode = mode })
}

// SetSortBy stores the sort key used by FilteredPrompts.
func (l *Library) SetSortBy(ctx context.Context, sortBy models.SortOption) error {
	if !sortBy.Valid() {
		return invalidSetting("sortBy", string(sortBy))
	}
	return l.updateSettings(ctx, func(s *models.Settings) { s.SortBy = sortBy })
}

// SetTheme stores the theme preference.
func (l *Library) SetTheme(ctx context.Context, theme models.Theme) error {
	if !theme.Valid() {
		return invalidSetting("theme", string(theme))
	}
	return l.updateSettings(ctx, func(s *models.Settings) { s.Theme = theme })
}

func (l *Library) updateSettings(ctx context.Context, fn func(*models.Settings)) error {
	l.mu.Lock()
	fn(&l.settings)
	l.saveSettings(ctx)
	l.mu.Unlock()

	l.emit(Event{Type: EventSettings})
	return nil
}

func invalidSetting(field, value string) error {
	return fmt.Errorf("%q: %w", value, &ValidationError{Fields: []FieldError{{Field: field, Rule: "oneof"}}})
}
