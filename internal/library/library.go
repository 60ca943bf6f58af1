// Package library is the in-memory owner of the prompt library. Every mutation
// is persisted locally before it returns and, while a user is signed in,
// handed to a Mirror for propagation to the remote store.
package library

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptlib/internal/search"
	"github.com/thebtf/promptlib/pkg/models"
)

// LocalStore persists whole collections on this device.
type LocalStore interface {
	LoadPrompts(ctx context.Context) ([]*models.Prompt, error)
	SavePrompts(ctx context.Context, prompts []*models.Prompt) error
	LoadCategories(ctx context.Context) ([]models.Category, error)
	SaveCategories(ctx context.Context, categories []models.Category) error
	LoadSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// Mirror receives single-record prompt changes for the signed-in user.
// Implementations must not block on the network.
type Mirror interface {
	PromptCreated(ctx context.Context, userID string, p *models.Prompt) error
	PromptUpdated(ctx context.Context, userID string, p *models.Prompt) error
	PromptDeleted(ctx context.Context, userID, id string) error
}

// EventType names a library change.
type EventType string

const (
	EventPromptCreated   EventType = "prompt_created"
	EventPromptUpdated   EventType = "prompt_updated"
	EventPromptDeleted   EventType = "prompt_deleted"
	EventPromptsReplaced EventType = "prompts_replaced"
	EventCategories      EventType = "categories_changed"
	EventSettings        EventType = "settings_changed"
)

// Event is delivered to subscribers after a change has been applied.
type Event struct {
	Type EventType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// Option configures a Library.
type Option func(*Library)

// WithMirror sets the remote propagation target.
func WithMirror(m Mirror) Option {
	return func(l *Library) { l.mirror = m }
}

// WithEngine sets the search engine used by FilteredPrompts.
func WithEngine(e *search.Engine) Option {
	return func(l *Library) { l.engine = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Library) { l.newID = gen }
}

// Library holds prompts, categories, settings and the current filters.
// Mutations are serialized; readers receive copies.
type Library struct {
	mu         sync.RWMutex
	local      LocalStore
	mirror     Mirror
	engine     *search.Engine
	now        func() time.Time
	newID      func() string
	userID     string
	prompts    []*models.Prompt
	categories []models.Category
	settings   models.Settings
	filters    models.Filters

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New creates an empty library backed by local. Call Load to read the
// persisted state.
func New(local LocalStore, opts ...Option) *Library {
	l := &Library{
		local:      local,
		engine:     search.NewEngine(),
		now:        time.Now,
		newID:      uuid.NewString,
		prompts:    []*models.Prompt{},
		categories: models.DefaultCategories(),
		settings:   models.DefaultSettings(),
		filters:    models.DefaultFilters(),
		subs:       make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every collection from local persistence. A collection that
// cannot be read falls back to empty or default values.
func (l *Library) Load(ctx context.Context) {
	l.mu.Lock()
	l.loadLocked(ctx)
	l.mu.Unlock()
	l.emit(Event{Type: EventPromptsReplaced})
}

// Reload re-reads prompts from local persistence, discarding in-memory prompt
// changes that were never saved. The current prompts are kept when the read
// fails.
func (l *Library) Reload(ctx context.Context) {
	l.mu.Lock()
	prompts, err := l.local.LoadPrompts(ctx)
	if err != nil {
		l.mu.Unlock()
		log.Error().Err(err).Msg("Failed to reload prompts, keeping the current ones")
		return
	}
	l.prompts = prompts
	l.mu.Unlock()
	l.emit(Event{Type: EventPromptsReplaced})
}

func (l *Library) loadLocked(ctx context.Context) {
	prompts, err := l.local.LoadPrompts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load prompts, starting empty")
		prompts = []*models.Prompt{}
	}
	categories, err := l.local.LoadCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load categories, using defaults")
		categories = models.DefaultCategories()
	}
	settings, err := l.local.LoadSettings(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings, using defaults")
		settings = models.DefaultSettings()
	}
	l.prompts = prompts
	l.categories = categories
	l.settings = settings

	log.Info().
		Int("prompts", len(prompts)).
		Int("categories", len(categories)).
		Msg("Library loaded")
}

// SetUser sets the identity remote changes are mirrored for. An empty id
// stops mirroring.
func (l *Library) SetUser(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userID = userID
}

// UserID returns the identity changes are mirrored for, or "".
func (l *Library) UserID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.userID
}

// Prompts returns a deep copy of all prompts in storage order.
func (l *Library) Prompts() []*models.Prompt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.ClonePrompts(l.prompts)
}

// Prompt returns a copy of the prompt with id.
func (l *Library) Prompt(id string) (*models.Prompt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return l.prompts[i].Clone(), nil
}

// Replace swaps the whole prompt collection and persists it. Nothing is
// mirrored.
func (l *Library) Replace(ctx context.Context, prompts []*models.Prompt) {
	l.mu.Lock()
	l.prompts = models.ClonePrompts(prompts)
	l.savePrompts(ctx)
	l.mu.Unlock()
	l.emit(Event{Type: EventPromptsReplaced})
}

// Rebase makes fetched the prompt collection and starts mirroring for
// userID in one step. base is the collection as it was read before fetching
// and renamed maps its ids to the ids they were uploaded under. Changes made
// to the library since base are replayed on top of fetched and mirrored, so
// writes that raced the fetch are neither lost nor left unsynced. It returns
// the number of replayed changes.
func (l *Library) Rebase(ctx context.Context, base, fetched []*models.Prompt, renamed map[string]string, userID string) int {
	mapped := func(id string) string {
		if n, ok := renamed[id]; ok {
			return n
		}
		return id
	}

	l.mu.Lock()
	before := make(map[string]*models.Prompt, len(base))
	for _, p := range base {
		before[p.ID] = p
	}
	result := models.ClonePrompts(fetched)
	position := func(id string) int {
		for i, p := range result {
			if p.ID == id {
				return i
			}
		}
		return -1
	}

	l.userID = userID
	replayed := 0
	live := make(map[string]struct{}, len(l.prompts))
	for _, p := range l.prompts {
		live[p.ID] = struct{}{}
		old, existed := before[p.ID]
		if existed && samePrompt(old, p) {
			continue
		}
		c := p.Clone()
		c.ID = mapped(p.ID)
		if i := position(c.ID); i >= 0 {
			result[i] = c
			l.mirrorUpdated(ctx, c)
		} else {
			result = append(result, c)
			l.mirrorCreated(ctx, c)
		}
		replayed++
	}
	for _, p := range base {
		if _, ok := live[p.ID]; ok {
			continue
		}
		id := mapped(p.ID)
		if i := position(id); i >= 0 {
			result = append(result[:i:i], result[i+1:]...)
			if err := l.mirrorDeleted(ctx, id); err != nil {
				log.Warn().Err(err).Str("id", id).Msg("Failed to queue remote delete")
			}
			replayed++
		}
	}

	l.prompts = result
	l.savePrompts(ctx)
	l.mu.Unlock()

	if replayed > 0 {
		log.Info().Int("changes", replayed).Msg("Replayed changes made during sync")
	}
	l.emit(Event{Type: EventPromptsReplaced})
	return replayed
}

// Persist writes every collection to local persistence again, e.g. after
// the database file was removed underneath the process.
func (l *Library) Persist(ctx context.Context) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.savePrompts(ctx)
	l.saveCategories(ctx)
	l.saveSettings(ctx)
}

// Rebind switches to new persistence and mirror targets and writes the
// current state to them. A nil mirror keeps the current one.
func (l *Library) Rebind(ctx context.Context, local LocalStore, mirror Mirror) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.local = local
	if mirror != nil {
		l.mirror = mirror
	}
	l.savePrompts(ctx)
	l.saveCategories(ctx)
	l.saveSettings(ctx)
	log.Info().Int("prompts", len(l.prompts)).Msg("Library rewritten to new storage")
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn is called outside the library lock.
func (l *Library) Subscribe(fn func(Event)) (unsubscribe func()) {
	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn
	l.subMu.Unlock()

	return func() {
		l.subMu.Lock()
		delete(l.subs, id)
		l.subMu.Unlock()
	}
}

func (l *Library) emit(events ...Event) {
	l.subMu.Lock()
	subs := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// indexOf returns the position of id or -1. Callers hold l.mu.
func (l *Library) indexOf(id string) int {
	for i, p := range l.prompts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Persistence and mirror failures never fail a mutation; they are logged.

func (l *Library) savePrompts(ctx context.Context) {
	if err := l.local.SavePrompts(ctx, l.prompts); err != nil {
		log.Error().Err(err).Int("count", len(l.prompts)).Msg("Failed to persist prompts")
	}
}

func (l *Library) saveCategories(ctx context.Context) {
	if err := l.local.SaveCategories(ctx, l.categories); err != nil {
		log.Error().Err(err).Msg("Failed to persist categories")
	}
}

func (l *Library) saveSettings(ctx context.Context) {
	if err := l.local.SaveSettings(ctx, l.settings); err != nil {
		log.Error().Err(err).Msg("Failed to persist settings")
	}
}

func (l *Library) mirrorCreated(ctx context.Context, p *models.Prompt) {
	if l.mirror == nil || l.userID == "" {
		return
	}
	if err := l.mirror.PromptCreated(ctx, l.userID, p.Clone()); err != nil {
		log.Warn().Err(err).Str("id", p.ID).Msg("Failed to queue remote create")
	}
}

func (l *Library) mirrorUpdated(ctx context.Context, p *models.Prompt) {
	if l.mirror == nil || l.userID == "" {
		return
	}
	if err := l.mirror.PromptUpdated(ctx, l.userID, p.Clone()); err != nil {
		log.Warn().Err(err).Str("id", p.ID).Msg("Failed to queue remote update")
	}
}

func (l *Library) mirrorDeleted(ctx context.Context, id string) error {
	if l.mirror == nil || l.userID == "" {
		return nil
	}
	return l.mirror.PromptDeleted(ctx, l.userID, id)
}
