// Package models contains domain models for promptlib.
package models

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// AIModel names the assistant a prompt is written for.
// Values outside KnownAIModels are custom, user-supplied names.
type AIModel = string

// KnownAIModels is the fixed catalog of assistant names offered by the library.
var KnownAIModels = []AIModel{
	"ChatGPT",
	"Claude",
	"Gemini",
	"Midjourney",
	"DALL-E",
	"Stable Diffusion",
	"MagicPatterns",
	"Vercel",
	"Lovable",
	"Cursor",
	"Replit",
	"Aura",
	"Anything",
	"Builder",
	"Ideogram",
	"Krea",
	"FLORA",
	"Other",
}

// IsKnownAIModel reports whether name matches a catalog entry, ignoring case.
func IsKnownAIModel(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return lo.ContainsBy(KnownAIModels, func(m AIModel) bool {
		return strings.ToLower(m) == lower
	})
}

// Prompt is a stored text asset with metadata.
type Prompt struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Category     string     `json:"category"`
	Tags         []string   `json:"tags"`
	SourceURL    string     `json:"sourceUrl,omitempty"`
	AIModel      AIModel    `json:"aiModel"`
	DateAdded    time.Time  `json:"dateAdded"`
	Notes        string     `json:"notes,omitempty"`
	IsFavorite   bool       `json:"isFavorite"`
	UsageCount   int        `json:"usageCount"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
	CollectionID string     `json:"collectionId,omitempty"`
	IsTemplate   bool       `json:"isTemplate,omitempty"`
}

// Clone returns a deep copy of the prompt.
func (p *Prompt) Clone() *Prompt {
	if p == nil {
		return nil
	}
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.LastUsed != nil {
		t := *p.LastUsed
		c.LastUsed = &t
	}
	return &c
}

// HasCustomModel reports whether the prompt targets a model outside the catalog.
func (p *Prompt) HasCustomModel() bool {
	return p.AIModel != "" && !IsKnownAIModel(p.AIModel)
}

// ClonePrompts deep-copies a slice of prompts.
func ClonePrompts(prompts []*Prompt) []*Prompt {
	out := make([]*Prompt, len(prompts))
	for i, p := range prompts {
		out[i] = p.Clone()
	}
	return out
}

// NormalizeTags lower-cases and trims tags, dropping empties and duplicates
// while keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return lo.Uniq(out)
}
