// Package gorm provides GORM-based local persistence for promptlib.
package gorm

import (
	"database/sql"
	"time"

	"github.com/thebtf/promptlib/pkg/models"
)

// sqlNullString creates a sql.NullString from a string.
func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// toPromptRow converts a domain prompt to its stored form.
func toPromptRow(p *models.Prompt, position int) *PromptRow {
	row := &PromptRow{
		ID:             p.ID,
		Position:       position,
		Title:          p.Title,
		Content:        p.Content,
		Category:       p.Category,
		Tags:           models.JSONStringArray(p.Tags),
		SourceURL:      p.SourceURL,
		AIModel:        p.AIModel,
		Notes:          p.Notes,
		IsFavorite:     p.IsFavorite,
		UsageCount:     p.UsageCount,
		DateAdded:      formatTime(p.DateAdded),
		DateAddedEpoch: p.DateAdded.UnixMilli(),
		CollectionID:   p.CollectionID,
		IsTemplate:     p.IsTemplate,
	}
	if p.LastUsed != nil {
		row.LastUsed = sqlNullString(formatTime(*p.LastUsed))
	}
	return row
}

// toModelPrompt converts a stored row to a domain prompt.
func toModelPrompt(row *PromptRow) *models.Prompt {
	p := &models.Prompt{
		ID:           row.ID,
		Title:        row.Title,
		Content:      row.Content,
		Category:     row.Category,
		Tags:         []string(row.Tags),
		SourceURL:    row.SourceURL,
		AIModel:      row.AIModel,
		DateAdded:    parseTime(row.DateAdded),
		Notes:        row.Notes,
		IsFavorite:   row.IsFavorite,
		UsageCount:   row.UsageCount,
		CollectionID: row.CollectionID,
		IsTemplate:   row.IsTemplate,
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if row.LastUsed.Valid {
		t := parseTime(row.LastUsed.String)
		p.LastUsed = &t
	}
	return p
}

func toCategoryRow(c models.Category, position int) *CategoryRow {
	return &CategoryRow{
		ID:       c.ID,
		Position: position,
		Name:     c.Name,
		Color:    c.Color,
		Icon:     c.Icon,
	}
}

func toModelCategory(row *CategoryRow) models.Category {
	return models.Category{
		ID:    row.ID,
		Name:  row.Name,
		Color: row.Color,
		Icon:  row.Icon,
	}
}
