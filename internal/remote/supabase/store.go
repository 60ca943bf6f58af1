// Package supabase implements remote.Store on a Supabase "prompts" table
// through the PostgREST API.
package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/thebtf/promptlib/internal/remote"
	"github.com/thebtf/promptlib/pkg/models"
)

// Table is the remote table holding prompts.
const Table = "prompts"

// Store talks to Supabase. The underlying client has no context support, so
// a cancelled context abandons the call without aborting the request.
type Store struct {
	client *supa.Client
}

var _ remote.Store = (*Store)(nil)

// New creates a store for the project at url authenticated with key.
func New(url, key string) (*Store, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Store{client: client}, nil
}

// promptRow is the snake_case row shape of the prompts table.
type promptRow struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Category     string     `json:"category"`
	Tags         []string   `json:"tags"`
	SourceURL    *string    `json:"source_url"`
	AIModel      string     `json:"ai_model"`
	Notes        *string    `json:"notes"`
	IsFavorite   bool       `json:"is_favorite"`
	UsageCount   int        `json:"usage_count"`
	LastUsed     *time.Time `json:"last_used"`
	CreatedAt    time.Time  `json:"created_at"`
	CollectionID *string    `json:"collection_id"`
	IsTemplate   bool       `json:"is_template"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toRow(userID string, p *models.Prompt) promptRow {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return promptRow{
		ID:           p.ID,
		UserID:       userID,
		Title:        p.Title,
		Content:      p.Content,
		Category:     p.Category,
		Tags:         tags,
		SourceURL:    optional(p.SourceURL),
		AIModel:      p.AIModel,
		Notes:        optional(p.Notes),
		IsFavorite:   p.IsFavorite,
		UsageCount:   p.UsageCount,
		LastUsed:     p.LastUsed,
		CreatedAt:    p.DateAdded.UTC(),
		CollectionID: optional(p.CollectionID),
		IsTemplate:   p.IsTemplate,
	}
}

func (r promptRow) toModel() *models.Prompt {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return &models.Prompt{
		ID:           r.ID,
		Title:        r.Title,
		Content:      r.Content,
		Category:     r.Category,
		Tags:         tags,
		SourceURL:    deref(r.SourceURL),
		AIModel:      r.AIModel,
		DateAdded:    r.CreatedAt,
		Notes:        deref(r.Notes),
		IsFavorite:   r.IsFavorite,
		UsageCount:   r.UsageCount,
		LastUsed:     r.LastUsed,
		CollectionID: deref(r.CollectionID),
		IsTemplate:   r.IsTemplate,
	}
}

// call runs fn unless ctx is already done, and returns early if ctx ends
// while fn is in flight.
func call(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return remote.Wrap(op, err)
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return remote.Wrap(op, err)
	case <-ctx.Done():
		return remote.Wrap(op, ctx.Err())
	}
}

// FetchPrompts implements remote.Store.
func (s *Store) FetchPrompts(ctx context.Context, userID string) ([]*models.Prompt, error) {
	var rows []promptRow
	err := call(ctx, remote.OpFetch, func() error {
		_, err := s.client.From(Table).
			Select("*", "", false).
			Eq("user_id", userID).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]*models.Prompt, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	log.Debug().Str("user", userID).Int("count", len(out)).Msg("Fetched remote prompts")
	return out, nil
}

// CreatePrompt implements remote.Store.
func (s *Store) CreatePrompt(ctx context.Context, userID string, p *models.Prompt) error {
	return call(ctx, remote.OpCreate, func() error {
		_, _, err := s.client.From(Table).
			Upsert([]promptRow{toRow(userID, p)}, "id", "minimal", "").
			Execute()
		return err
	})
}

// UpdatePrompt implements remote.Store.
func (s *Store) UpdatePrompt(ctx context.Context, userID string, p *models.Prompt) error {
	return call(ctx, remote.OpUpdate, func() error {
		_, _, err := s.client.From(Table).
			Update(toRow(userID, p), "minimal", "").
			Eq("id", p.ID).
			Eq("user_id", userID).
			Execute()
		return err
	})
}

// DeletePrompt implements remote.Store.
func (s *Store) DeletePrompt(ctx context.Context, userID, id string) error {
	return call(ctx, remote.OpDelete, func() error {
		_, _, err := s.client.From(Table).
			Delete("minimal", "").
			Eq("id", id).
			Eq("user_id", userID).
			Execute()
		return err
	})
}

// UpsertMany implements remote.Store.
func (s *Store) UpsertMany(ctx context.Context, userID string, prompts []*models.Prompt) error {
	if len(prompts) == 0 {
		return nil
	}
	rows := make([]promptRow, len(prompts))
	for i, p := range prompts {
		rows[i] = toRow(userID, p)
	}
	return call(ctx, remote.OpUpsert, func() error {
		_, _, err := s.client.From(Table).
			Upsert(rows, "id", "minimal", "").
			Execute()
		return err
	})
}
