// Package snapshot encodes and decodes the portable export formats of promptlib:
// the full JSON snapshot shared with the browser extension and the CSV prompt listing.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/promptlib/pkg/models"
)

// Version is written into every exported snapshot.
const Version = "1.0"

// ErrImportParse is returned when an import payload is not a valid snapshot.
var ErrImportParse = errors.New("malformed import payload")

// Snapshot is the full exported state. Sections decoded as nil were absent
// from the payload and must be left untouched by an import.
type Snapshot struct {
	Prompts    []*models.Prompt  `json:"prompts"`
	Categories []models.Category `json:"categories"`
	Settings   *models.Settings  `json:"settings"`
	ExportedAt time.Time         `json:"exportedAt"`
	Version    string            `json:"version"`
}

// Export renders the snapshot as indented JSON.
func Export(prompts []*models.Prompt, categories []models.Category, settings models.Settings, now time.Time) ([]byte, error) {
	if prompts == nil {
		prompts = []*models.Prompt{}
	}
	if categories == nil {
		categories = []models.Category{}
	}
	snap := Snapshot{
		Prompts:    prompts,
		Categories: categories,
		Settings:   &settings,
		ExportedAt: now.UTC(),
		Version:    Version,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Parse decodes an exported snapshot. Any decode failure yields ErrImportParse
// so the caller can reject the import as a whole.
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportParse, err)
	}
	for i, p := range snap.Prompts {
		if p == nil {
			return nil, fmt.Errorf("%w: prompt %d is null", ErrImportParse, i)
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	return &snap, nil
}

// csvHeaders is the column order of PromptsCSV.
var csvHeaders = []string{
	"Title",
	"Content",
	"Category",
	"Tags",
	"AI Model",
	"Source URL",
	"Notes",
	"Favorite",
	"Date Added",
}

// PromptsCSV renders one row per prompt under a header row, rows separated by "\n".
func PromptsCSV(prompts []*models.Prompt) string {
	rows := make([]string, 0, len(prompts)+1)
	rows = append(rows, strings.Join(csvHeaders, ","))

	for _, p := range prompts {
		favorite := "No"
		if p.IsFavorite {
			favorite = "Yes"
		}
		fields := []string{
			escapeCSV(p.Title),
			escapeCSV(p.Content),
			escapeCSV(p.Category),
			escapeCSV(strings.Join(p.Tags, "; ")),
			escapeCSV(p.AIModel),
			escapeCSV(p.SourceURL),
			escapeCSV(p.Notes),
			favorite,
			p.DateAdded.UTC().Format(time.RFC3339Nano),
		}
		rows = append(rows, strings.Join(fields, ","))
	}
	return strings.Join(rows, "\n")
}

// escapeCSV quotes a field containing a comma, quote or newline and doubles
// embedded quotes.
func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
