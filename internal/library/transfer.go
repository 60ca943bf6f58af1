package library

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptlib/internal/snapshot"
	"github.com/thebtf/promptlib/internal/templates"
	"github.com/thebtf/promptlib/pkg/models"
)

// ExportSnapshot renders prompts, categories and settings as a JSON snapshot.
func (l *Library) ExportSnapshot() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return snapshot.Export(l.prompts, l.categories, l.settings, l.now())
}

// ImportSnapshot overwrites every section present in data, persists it and
// makes it current. Absent sections are left alone. Nothing is changed when
// the payload is rejected. Imported prompts are not mirrored remotely.
func (l *Library) ImportSnapshot(ctx context.Context, data []byte) error {
	snap, err := snapshot.Parse(data)
	if err != nil {
		return err
	}
	if err := checkSnapshot(snap); err != nil {
		return err
	}

	l.mu.Lock()
	if snap.Prompts != nil {
		l.prompts = models.ClonePrompts(snap.Prompts)
		l.savePrompts(ctx)
	}
	if snap.Categories != nil {
		l.categories = append([]models.Category(nil), snap.Categories...)
		l.saveCategories(ctx)
	}
	if snap.Settings != nil {
		l.settings = *snap.Settings
		l.saveSettings(ctx)
	}
	l.mu.Unlock()

	log.Info().
		Int("prompts", len(snap.Prompts)).
		Int("categories", len(snap.Categories)).
		Bool("settings", snap.Settings != nil).
		Msg("Snapshot imported")

	l.emit(Event{Type: EventPromptsReplaced}, Event{Type: EventCategories}, Event{Type: EventSettings})
	return nil
}

func checkSnapshot(snap *snapshot.Snapshot) error {
	seen := make(map[string]struct{}, len(snap.Prompts))
	for i, p := range snap.Prompts {
		if p.ID == "" {
			return fmt.Errorf("%w: prompt %d has no id", snapshot.ErrImportParse, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate prompt id %s", snapshot.ErrImportParse, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if s := snap.Settings; s != nil {
		if !s.ViewMode.Valid() || !s.SortBy.Valid() || !s.Theme.Valid() {
			return fmt.Errorf("%w: invalid settings %+v", snapshot.ErrImportParse, *s)
		}
	}
	return nil
}

// ExportCSV renders prompts as CSV. A nil slice exports the whole library.
func (l *Library) ExportCSV(prompts []*models.Prompt) string {
	if prompts == nil {
		l.mu.RLock()
		defer l.mu.RUnlock()
		return snapshot.PromptsCSV(l.prompts)
	}
	return snapshot.PromptsCSV(prompts)
}

// CreateFromTemplate creates a prompt from a catalog template.
func (l *Library) CreateFromTemplate(ctx context.Context, t templates.Template) (*models.Prompt, error) {
	return l.CreatePrompt(ctx, PromptInput{
		Title:      t.Title,
		Content:    t.Content,
		Category:   t.Category,
		Tags:       t.Tags,
		AIModel:    t.AIModel,
		Notes:      t.Notes,
		IsTemplate: true,
	})
}
