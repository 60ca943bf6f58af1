// Package search implements the prompt view pipeline: field filters, fuzzy
// text search and ordering.
package search

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/thebtf/promptlib/pkg/models"
)

// Engine computes ordered views over a prompt snapshot.
// It never mutates the records or the slice it is given.
type Engine struct {
	scorer Scorer
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer sets the fuzzy search strategy.
func WithScorer(s Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// NewEngine creates an engine; the default scorer is an ApproxScorer with
// DefaultThreshold.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{scorer: NewApproxScorer(DefaultThreshold)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// View runs the pipeline with a default engine.
func View(prompts []*models.Prompt, filters models.Filters, sortBy models.SortOption) []*models.Prompt {
	return NewEngine().View(prompts, filters, sortBy)
}

// View filters, searches and sorts prompts. Stages run in a fixed order:
// category, tag, model, favorites, collection, fuzzy search, sort.
// Within a field the selected values are OR-ed; fields are AND-ed.
func (e *Engine) View(prompts []*models.Prompt, filters models.Filters, sortBy models.SortOption) []*models.Prompt {
	out := make([]*models.Prompt, 0, len(prompts))
	for _, p := range prompts {
		if p != nil && Matches(p, filters) {
			out = append(out, p)
		}
	}

	if q := strings.TrimSpace(filters.SearchQuery); q != "" {
		out = e.Search(out, q)
	}

	SortPrompts(out, sortBy)
	return out
}

// Matches reports whether p passes every non-empty field filter.
// The search query is not considered.
func Matches(p *models.Prompt, f models.Filters) bool {
	if len(f.Categories) > 0 && !lo.Contains(f.Categories, p.Category) {
		return false
	}
	if len(f.Tags) > 0 && !lo.Some(p.Tags, f.Tags) {
		return false
	}
	if len(f.AIModels) > 0 && !lo.Contains(f.AIModels, p.AIModel) {
		return false
	}
	if f.FavoritesOnly && !p.IsFavorite {
		return false
	}
	if f.CollectionID != "" && p.CollectionID != f.CollectionID {
		return false
	}
	return true
}

type scored struct {
	prompt *models.Prompt
	score  float64
}

// Search keeps the prompts the scorer accepts for query, best match first.
// Equal scores keep their input order.
func (e *Engine) Search(prompts []*models.Prompt, query string) []*models.Prompt {
	query = strings.TrimSpace(query)
	if query == "" {
		return prompts
	}

	hits := make([]scored, 0, len(prompts))
	for _, p := range prompts {
		if score, ok := e.scorer.Score(query, p); ok {
			hits = append(hits, scored{prompt: p, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	return lo.Map(hits, func(h scored, _ int) *models.Prompt { return h.prompt })
}

// SortPrompts orders prompts in place with a stable sort. Unknown keys sort
// by date added, newest first.
func SortPrompts(prompts []*models.Prompt, sortBy models.SortOption) {
	var less func(a, b *models.Prompt) bool

	switch sortBy {
	case models.SortAlphabetical:
		col := collate.New(language.English, collate.IgnoreCase)
		less = func(a, b *models.Prompt) bool {
			return col.CompareString(a.Title, b.Title) < 0
		}
	case models.SortLastUsed:
		less = func(a, b *models.Prompt) bool {
			switch {
			case a.LastUsed == nil:
				return false
			case b.LastUsed == nil:
				return true
			default:
				return a.LastUsed.After(*b.LastUsed)
			}
		}
	case models.SortFavorites:
		less = func(a, b *models.Prompt) bool {
			return a.IsFavorite && !b.IsFavorite
		}
	case models.SortMostUsed:
		less = func(a, b *models.Prompt) bool {
			return a.UsageCount > b.UsageCount
		}
	default:
		less = func(a, b *models.Prompt) bool {
			return a.DateAdded.After(b.DateAdded)
		}
	}

	sort.SliceStable(prompts, func(i, j int) bool {
		return less(prompts[i], prompts[j])
	})
}
