package library

import (
	"sort"

	"github.com/samber/lo"

	"github.com/thebtf/promptlib/pkg/models"
)

// Filters returns the current filter state.
func (l *Library) Filters() models.Filters {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f := l.filters
	f.Categories = append([]string{}, f.Categories...)
	f.Tags = append([]string{}, f.Tags...)
	f.AIModels = append([]models.AIModel{}, f.AIModels...)
	return f
}

// SetFilters merges patch into the filter state. Filters are never persisted.
func (l *Library) SetFilters(patch models.FilterPatch) models.Filters {
	l.mu.Lock()
	l.filters = patch.Apply(l.filters)
	l.mu.Unlock()
	return l.Filters()
}

// ResetFilters restores the empty filter state.
func (l *Library) ResetFilters() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filters = models.DefaultFilters()
}

// FilteredPrompts returns copies of the prompts matching the current
// filters, ordered by the sort setting.
func (l *Library) FilteredPrompts() []*models.Prompt {
	l.mu.RLock()
	view := l.engine.View(l.prompts, l.filters, l.settings.SortBy)
	l.mu.RUnlock()
	return models.ClonePrompts(view)
}

// View is FilteredPrompts with explicit filters and sort key, leaving the
// stored filter state alone.
func (l *Library) View(filters models.Filters, sortBy models.SortOption) []*models.Prompt {
	l.mu.RLock()
	view := l.engine.View(l.prompts, filters, sortBy)
	l.mu.RUnlock()
	return models.ClonePrompts(view)
}

// AllTags returns every tag in use, sorted.
func (l *Library) AllTags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tags := lo.Uniq(lo.FlatMap(l.prompts, func(p *models.Prompt, _ int) []string { return p.Tags }))
	sort.Strings(tags)
	return tags
}

// CustomModels returns the distinct custom model names in use, in first-seen
// order.
func (l *Library) CustomModels() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	custom := lo.FilterMap(l.prompts, func(p *models.Prompt, _ int) (string, bool) {
		return p.AIModel, p.HasCustomModel()
	})
	return lo.Uniq(custom)
}
