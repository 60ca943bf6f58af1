package models

import "github.com/samber/lo"

// ViewMode selects how prompts are laid out.
type ViewMode string

const (
	ViewModeGrid ViewMode = "grid"
	ViewModeList ViewMode = "list"
)

// SortOption selects the ordering of the filtered view.
type SortOption string

const (
	SortDateAdded    SortOption = "dateAdded"
	SortAlphabetical SortOption = "alphabetical"
	SortLastUsed     SortOption = "lastUsed"
	SortFavorites    SortOption = "favorites"
	SortMostUsed     SortOption = "mostUsed"
)

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// SortOptions lists every supported sort key.
var SortOptions = []SortOption{SortDateAdded, SortAlphabetical, SortLastUsed, SortFavorites, SortMostUsed}

// Valid reports whether v is a known view mode.
func (v ViewMode) Valid() bool {
	return v == ViewModeGrid || v == ViewModeList
}

// Valid reports whether s is a known sort key.
func (s SortOption) Valid() bool {
	return lo.Contains(SortOptions, s)
}

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// Settings holds process-wide user preferences.
type Settings struct {
	ViewMode ViewMode   `json:"viewMode"`
	SortBy   SortOption `json:"sortBy"`
	Theme    Theme      `json:"theme"`
}

// DefaultSettings returns grid view, newest-first sorting and the system theme.
func DefaultSettings() Settings {
	return Settings{
		ViewMode: ViewModeGrid,
		SortBy:   SortDateAdded,
		Theme:    ThemeSystem,
	}
}
