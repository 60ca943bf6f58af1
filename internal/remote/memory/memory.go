// Package memory is an in-process remote.Store used by tests and by the
// offline development mode of the CLI.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/thebtf/promptlib/internal/remote"
	"github.com/thebtf/promptlib/pkg/models"
)

// Call records one invocation against the store.
type Call struct {
	Op     string
	UserID string
	IDs    []string
}

// Store keeps prompts per user in memory. Failures can be injected per
// operation with FailOn.
type Store struct {
	mu    sync.Mutex
	rows  map[string]map[string]*models.Prompt
	fail  map[string]error
	calls []Call
}

var _ remote.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		rows: make(map[string]map[string]*models.Prompt),
		fail: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Seed stores prompts for userID directly, bypassing failure injection.
func (s *Store) Seed(userID string, prompts ...*models.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.table(userID)
	for _, p := range prompts {
		table[p.ID] = p.Clone()
	}
}

// Rows returns the prompts stored for userID, newest first.
func (s *Store) Rows(userID string) []*models.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(userID)
}

// Calls returns the recorded invocations in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) table(userID string) map[string]*models.Prompt {
	t, ok := s.rows[userID]
	if !ok {
		t = make(map[string]*models.Prompt)
		s.rows[userID] = t
	}
	return t
}

func (s *Store) sorted(userID string) []*models.Prompt {
	out := make([]*models.Prompt, 0, len(s.rows[userID]))
	for _, p := range s.rows[userID] {
		out = append(out, p.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DateAdded.Equal(out[j].DateAdded) {
			return out[i].ID < out[j].ID
		}
		return out[i].DateAdded.After(out[j].DateAdded)
	})
	return out
}

// begin records the call and returns the injected or context error.
// Callers hold s.mu.
func (s *Store) begin(ctx context.Context, op, userID string, ids ...string) error {
	s.calls = append(s.calls, Call{Op: op, UserID: userID, IDs: ids})
	if err := ctx.Err(); err != nil {
		return remote.Wrap(op, err)
	}
	if err, ok := s.fail[op]; ok {
		return remote.Wrap(op, err)
	}
	return nil
}

// FetchPrompts implements remote.Store.
func (s *Store) FetchPrompts(ctx context.Context, userID string) ([]*models.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, remote.OpFetch, userID); err != nil {
		return nil, err
	}
	return s.sorted(userID), nil
}

// CreatePrompt implements remote.Store. Creating an existing id replaces it.
func (s *Store) CreatePrompt(ctx context.Context, userID string, p *models.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, remote.OpCreate, userID, p.ID); err != nil {
		return err
	}
	s.table(userID)[p.ID] = p.Clone()
	return nil
}

// UpdatePrompt implements remote.Store. Updating a missing id is a no-op.
func (s *Store) UpdatePrompt(ctx context.Context, userID string, p *models.Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, remote.OpUpdate, userID, p.ID); err != nil {
		return err
	}
	table := s.table(userID)
	if _, exists := table[p.ID]; exists {
		table[p.ID] = p.Clone()
	}
	return nil
}

// DeletePrompt implements remote.Store.
func (s *Store) DeletePrompt(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, remote.OpDelete, userID, id); err != nil {
		return err
	}
	delete(s.table(userID), id)
	return nil
}

// UpsertMany implements remote.Store.
func (s *Store) UpsertMany(ctx context.Context, userID string, prompts []*models.Prompt) error {
	ids := make([]string, len(prompts))
	for i, p := range prompts {
		ids[i] = p.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, remote.OpUpsert, userID, ids...); err != nil {
		return err
	}
	table := s.table(userID)
	for _, p := range prompts {
		table[p.ID] = p.Clone()
	}
	return nil
}
