package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/thebtf/promptlib/pkg/models"
)

// DefaultAIModel is used when a new prompt names no model.
const DefaultAIModel = "ChatGPT"

// PromptInput carries the user-supplied fields of a new prompt.
type PromptInput struct {
	Title        string   `json:"title" validate:"notblank"`
	Content      string   `json:"content" validate:"notblank"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	SourceURL    string   `json:"sourceUrl" validate:"omitempty,url"`
	AIModel      string   `json:"aiModel"`
	Notes        string   `json:"notes"`
	IsFavorite   bool     `json:"isFavorite"`
	CollectionID string   `json:"collectionId"`
	IsTemplate   bool     `json:"isTemplate"`
}

// PromptPatch updates selected fields of a prompt; nil fields are left as is.
// Usage statistics change only through IncrementUsage.
type PromptPatch struct {
	Title        *string  `json:"title" validate:"omitnil,notblank"`
	Content      *string  `json:"content" validate:"omitnil,notblank"`
	Category     *string  `json:"category"`
	Tags         []string `json:"tags"`
	SourceURL    *string  `json:"sourceUrl" validate:"omitnil,omitempty,url"`
	AIModel      *string  `json:"aiModel" validate:"omitnil,notblank"`
	Notes        *string  `json:"notes"`
	IsFavorite   *bool    `json:"isFavorite"`
	CollectionID *string  `json:"collectionId"`
}

func (p PromptPatch) apply(dst *models.Prompt) {
	if p.Title != nil {
		dst.Title = strings.TrimSpace(*p.Title)
	}
	if p.Content != nil {
		dst.Content = *p.Content
	}
	if p.Category != nil {
		dst.Category = *p.Category
	}
	if p.Tags != nil {
		dst.Tags = models.NormalizeTags(p.Tags)
	}
	if p.SourceURL != nil {
		dst.SourceURL = strings.TrimSpace(*p.SourceURL)
	}
	if p.AIModel != nil {
		dst.AIModel = strings.TrimSpace(*p.AIModel)
	}
	if p.Notes != nil {
		dst.Notes = *p.Notes
	}
	if p.IsFavorite != nil {
		dst.IsFavorite = *p.IsFavorite
	}
	if p.CollectionID != nil {
		dst.CollectionID = *p.CollectionID
	}
}

// ValidateCustomModel checks a model name a user typed for a prompt.
// editingID names the prompt being edited, or is empty for a new prompt.
func (l *Library) ValidateCustomModel(value, editingID string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return checkCustomModel(l.prompts, value, editingID)
}

// CreatePrompt validates in and appends a new prompt.
func (l *Library) CreatePrompt(ctx context.Context, in PromptInput) (*models.Prompt, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	l.mu.Lock()
	p, err := l.createLocked(ctx, in)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	l.emit(Event{Type: EventPromptCreated, ID: p.ID})
	return p, nil
}

func (l *Library) createLocked(ctx context.Context, in PromptInput) (*models.Prompt, error) {
	model := strings.TrimSpace(in.AIModel)
	if model == "" {
		model = DefaultAIModel
	}
	if err := checkCustomModel(l.prompts, model, ""); err != nil {
		return nil, err
	}

	category := in.Category
	if category == "" && len(l.categories) > 0 {
		category = l.categories[0].Name
	}

	p := &models.Prompt{
		ID:           l.newID(),
		Title:        strings.TrimSpace(in.Title),
		Content:      in.Content,
		Category:     category,
		Tags:         models.NormalizeTags(in.Tags),
		SourceURL:    strings.TrimSpace(in.SourceURL),
		AIModel:      model,
		DateAdded:    l.now().UTC(),
		Notes:        in.Notes,
		IsFavorite:   in.IsFavorite,
		UsageCount:   0,
		CollectionID: in.CollectionID,
		IsTemplate:   in.IsTemplate,
	}
	if l.indexOf(p.ID) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
	}

	l.prompts = append(l.prompts, p)
	l.savePrompts(ctx)
	l.mirrorCreated(ctx, p)

	log.Debug().Str("id", p.ID).Str("title", p.Title).Msg("Prompt created")
	return p.Clone(), nil
}

// UpdatePrompt merges patch into the prompt with id. The id and date added
// never change.
func (l *Library) UpdatePrompt(ctx context.Context, id string, patch PromptPatch) (*models.Prompt, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return nil, fmt.Errorf("update prompt %s: %w", id, ErrNotFound)
	}
	if patch.AIModel != nil {
		if err := checkCustomModel(l.prompts, *patch.AIModel, id); err != nil {
			l.mu.Unlock()
			return nil, err
		}
	}
	updated := l.prompts[i].Clone()
	patch.apply(updated)
	out := l.commitUpdateLocked(ctx, i, updated)
	l.mu.Unlock()

	l.emit(Event{Type: EventPromptUpdated, ID: id})
	return out, nil
}

// ToggleFavorite flips the favorite flag of the prompt with id.
func (l *Library) ToggleFavorite(ctx context.Context, id string) (*models.Prompt, error) {
	return l.modify(ctx, id, func(p *models.Prompt) {
		p.IsFavorite = !p.IsFavorite
	})
}

// IncrementUsage records one use of the prompt with id. The usage count
// grows by one and last used never moves backwards.
func (l *Library) IncrementUsage(ctx context.Context, id string) (*models.Prompt, error) {
	return l.modify(ctx, id, func(p *models.Prompt) {
		now := l.now().UTC()
		if p.LastUsed != nil && p.LastUsed.After(now) {
			now = *p.LastUsed
		}
		p.UsageCount++
		p.LastUsed = &now
	})
}

func (l *Library) modify(ctx context.Context, id string, fn func(*models.Prompt)) (*models.Prompt, error) {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return nil, fmt.Errorf("modify prompt %s: %w", id, ErrNotFound)
	}
	updated := l.prompts[i].Clone()
	fn(updated)
	out := l.commitUpdateLocked(ctx, i, updated)
	l.mu.Unlock()

	l.emit(Event{Type: EventPromptUpdated, ID: id})
	return out, nil
}

func (l *Library) commitUpdateLocked(ctx context.Context, i int, updated *models.Prompt) *models.Prompt {
	l.prompts[i] = updated
	l.savePrompts(ctx)
	l.mirrorUpdated(ctx, updated)
	return updated.Clone()
}

// DeletePrompt removes the prompt with id and returns it so the caller can
// offer to restore it.
func (l *Library) DeletePrompt(ctx context.Context, id string) (*models.Prompt, error) {
	l.mu.Lock()
	i := l.indexOf(id)
	if i < 0 {
		l.mu.Unlock()
		return nil, fmt.Errorf("delete prompt %s: %w", id, ErrNotFound)
	}
	removed := l.prompts[i]
	l.prompts = append(l.prompts[:i:i], l.prompts[i+1:]...)
	l.savePrompts(ctx)
	if err := l.mirrorDeleted(ctx, id); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Failed to queue remote delete")
	}
	l.mu.Unlock()

	l.emit(Event{Type: EventPromptDeleted, ID: id})
	return removed.Clone(), nil
}

// RestorePrompt puts a previously deleted prompt back at the end of the
// collection.
func (l *Library) RestorePrompt(ctx context.Context, p *models.Prompt) error {
	if p == nil || p.ID == "" {
		return &ValidationError{Fields: []FieldError{{Field: "id", Rule: "required"}}}
	}

	l.mu.Lock()
	if l.indexOf(p.ID) >= 0 {
		l.mu.Unlock()
		return fmt.Errorf("restore prompt %s: %w", p.ID, ErrDuplicateID)
	}
	restored := p.Clone()
	l.prompts = append(l.prompts, restored)
	l.savePrompts(ctx)
	l.mirrorCreated(ctx, restored)
	l.mu.Unlock()

	l.emit(Event{Type: EventPromptCreated, ID: p.ID})
	return nil
}

// BulkDeletePrompts removes every prompt whose id is listed. Unknown ids are
// ignored. Each removal is mirrored independently.
func (l *Library) BulkDeletePrompts(ctx context.Context, ids []string) []*models.Prompt {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	l.mu.Lock()
	var removed []*models.Prompt
	kept := make([]*models.Prompt, 0, len(l.prompts))
	for _, p := range l.prompts {
		if _, ok := want[p.ID]; ok {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	if len(removed) == 0 {
		l.mu.Unlock()
		return nil
	}
	l.prompts = kept
	l.savePrompts(ctx)

	var result *multierror.Error
	for _, p := range removed {
		if err := l.mirrorDeleted(ctx, p.ID); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", p.ID, err))
		}
	}
	l.mu.Unlock()

	if err := result.ErrorOrNil(); err != nil {
		log.Warn().Err(err).Int("failed", len(result.Errors)).Msg("Failed to queue some remote deletes")
	}

	events := make([]Event, len(removed))
	for i, p := range removed {
		events[i] = Event{Type: EventPromptDeleted, ID: p.ID}
	}
	l.emit(events...)
	return models.ClonePrompts(removed)
}

// ApplyPrompts makes the collection equal to incoming, mirroring each
// created, changed or removed prompt. It backs clients that write the whole
// list at once, such as the browser extension. Every incoming prompt needs a
// unique id and a non-blank title and content; tags are normalized and the
// custom model rules apply. For known ids the date added is kept and usage
// statistics never move backwards.
func (l *Library) ApplyPrompts(ctx context.Context, incoming []*models.Prompt) error {
	l.mu.Lock()
	next, err := l.prepareApplyLocked(incoming)
	if err != nil {
		l.mu.Unlock()
		return err
	}

	current := make(map[string]*models.Prompt, len(l.prompts))
	for _, p := range l.prompts {
		current[p.ID] = p
	}
	seen := make(map[string]struct{}, len(next))

	var events []Event
	for _, p := range next {
		seen[p.ID] = struct{}{}
		old, ok := current[p.ID]
		switch {
		case !ok:
			l.mirrorCreated(ctx, p)
			events = append(events, Event{Type: EventPromptCreated, ID: p.ID})
		case !samePrompt(old, p):
			l.mirrorUpdated(ctx, p)
			events = append(events, Event{Type: EventPromptUpdated, ID: p.ID})
		}
	}
	for _, p := range l.prompts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		if err := l.mirrorDeleted(ctx, p.ID); err != nil {
			log.Warn().Err(err).Str("id", p.ID).Msg("Failed to queue remote delete")
		}
		events = append(events, Event{Type: EventPromptDeleted, ID: p.ID})
	}

	l.prompts = next
	l.savePrompts(ctx)
	l.mu.Unlock()

	l.emit(events...)
	return nil
}

// prepareApplyLocked validates and normalizes incoming against the live
// collection. Nothing is changed when it fails.
func (l *Library) prepareApplyLocked(incoming []*models.Prompt) ([]*models.Prompt, error) {
	current := make(map[string]*models.Prompt, len(l.prompts))
	for _, p := range l.prompts {
		current[p.ID] = p
	}

	var bad []FieldError
	reject := func(i int, field, rule string) {
		bad = append(bad, FieldError{Field: fmt.Sprintf("prompts[%d].%s", i, field), Rule: rule})
	}

	seen := make(map[string]struct{}, len(incoming))
	next := make([]*models.Prompt, 0, len(incoming))
	for i, p := range incoming {
		if p == nil {
			continue
		}
		c := p.Clone()
		c.Title = strings.TrimSpace(c.Title)
		c.SourceURL = strings.TrimSpace(c.SourceURL)
		c.AIModel = strings.TrimSpace(c.AIModel)
		c.Tags = models.NormalizeTags(c.Tags)
		if c.AIModel == "" {
			c.AIModel = DefaultAIModel
		}

		if c.ID == "" {
			reject(i, "id", "required")
		} else if _, dup := seen[c.ID]; dup {
			reject(i, "id", "unique")
		}
		seen[c.ID] = struct{}{}
		if c.Title == "" {
			reject(i, "title", "notblank")
		}
		if strings.TrimSpace(c.Content) == "" {
			reject(i, "content", "notblank")
		}

		old, known := current[c.ID]
		if !known || !strings.EqualFold(old.AIModel, c.AIModel) {
			if err := checkCustomModel(l.prompts, c.AIModel, lo.Ternary(known, c.ID, "")); err != nil {
				return nil, fmt.Errorf("apply prompts: %w", err)
			}
		}

		if known {
			c.DateAdded = old.DateAdded
			c.UsageCount = max(c.UsageCount, old.UsageCount)
			if old.LastUsed != nil && (c.LastUsed == nil || c.LastUsed.Before(*old.LastUsed)) {
				t := *old.LastUsed
				c.LastUsed = &t
			}
		} else {
			c.UsageCount = max(c.UsageCount, 0)
			if c.DateAdded.IsZero() {
				c.DateAdded = l.now().UTC()
			}
		}
		next = append(next, c)
	}

	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad}
	}
	return next, nil
}

func samePrompt(a, b *models.Prompt) bool {
	if a.Title != b.Title || a.Content != b.Content || a.Category != b.Category ||
		a.SourceURL != b.SourceURL || a.AIModel != b.AIModel || a.Notes != b.Notes ||
		a.IsFavorite != b.IsFavorite || a.UsageCount != b.UsageCount ||
		a.CollectionID != b.CollectionID || a.IsTemplate != b.IsTemplate ||
		!a.DateAdded.Equal(b.DateAdded) {
		return false
	}
	if (a.LastUsed == nil) != (b.LastUsed == nil) {
		return false
	}
	if a.LastUsed != nil && !a.LastUsed.Equal(*b.LastUsed) {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}
