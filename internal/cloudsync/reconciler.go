package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptlib/internal/library"
	"github.com/thebtf/promptlib/internal/remote"
	"github.com/thebtf/promptlib/pkg/models"
)

// State is the sync state of the library.
type State int

const (
	LocalOnly State = iota
	Transitioning
	Synced
)

func (s State) String() string {
	switch s {
	case LocalOnly:
		return "local_only"
	case Transitioning:
		return "transitioning"
	case Synced:
		return "synced"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MigrationPolicy selects which local ids are replaced before the first
// upload of a sign-in.
type MigrationPolicy string

const (
	// ReassignLegacy replaces only ids that are not UUIDs.
	ReassignLegacy MigrationPolicy = "legacy"
	// ReassignAll gives every local prompt a fresh id.
	ReassignAll MigrationPolicy = "all"
)

// DefaultTimeout bounds a whole sign-in transition.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTransitionInProgress is returned when a sign-in is already running.
	ErrTransitionInProgress = errors.New("sync transition in progress")
	// ErrNoUser is returned when signing in without a user id.
	ErrNoUser = errors.New("user id is required")
)

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithTimeout bounds each sign-in transition.
func WithTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPolicy sets the id migration policy.
func WithPolicy(p MigrationPolicy) ReconcilerOption {
	return func(r *Reconciler) {
		if p == ReassignAll || p == ReassignLegacy {
			r.policy = p
		}
	}
}

// WithIDGenerator overrides the generator of replacement ids.
func WithIDGenerator(gen func() string) ReconcilerOption {
	return func(r *Reconciler) { r.newID = gen }
}

// Reconciler moves the library between local-only and synced operation.
type Reconciler struct {
	lib     *library.Library
	remote  remote.Store
	timeout time.Duration
	policy  MigrationPolicy
	newID   func() string

	mu     sync.Mutex
	state  State
	userID string
}

// NewReconciler creates a reconciler in the LocalOnly state.
func NewReconciler(lib *library.Library, rs remote.Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		lib:     lib,
		remote:  rs,
		timeout: DefaultTimeout,
		policy:  ReassignLegacy,
		newID:   uuid.NewString,
		state:   LocalOnly,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// UserID returns the signed-in user, or "".
func (r *Reconciler) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// SignIn merges the local library into the remote store of userID and then
// makes the remote collection the local one. On any failure the library is
// reloaded from local persistence and stays local-only.
func (r *Reconciler) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}

	r.mu.Lock()
	if r.state == Transitioning {
		r.mu.Unlock()
		return ErrTransitionInProgress
	}
	r.state = Transitioning
	r.mu.Unlock()

	start := time.Now()
	count, err := r.reconcile(ctx, userID)
	if err != nil {
		r.lib.SetUser("")
		// The caller's context may be what failed the transition.
		r.lib.Reload(context.WithoutCancel(ctx))
		r.setState(LocalOnly, "")
		log.Error().Err(err).Str("user", userID).Msg("Sign-in sync failed, staying local")
		return fmt.Errorf("sign in %s: %w", userID, err)
	}

	r.setState(Synced, userID)
	log.Info().
		Str("user", userID).
		Int("prompts", count).
		Dur("took", time.Since(start)).
		Msg("Library synced")
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, userID string) (int, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	base := r.lib.Prompts()
	upload := models.ClonePrompts(base)
	renamed := r.reidentify(upload)
	if len(renamed) > 0 {
		log.Info().Int("count", len(renamed)).Str("policy", string(r.policy)).Msg("Reassigned prompt ids")
	}

	if len(upload) > 0 {
		if err := r.remote.UpsertMany(tctx, userID, upload); err != nil {
			return 0, err
		}
	}

	fetched, err := r.remote.FetchPrompts(tctx, userID)
	if err != nil {
		return 0, err
	}
	// Mirroring starts together with the swap so later writes are queued.
	r.lib.Rebase(ctx, base, fetched, renamed, userID)
	return len(fetched), nil
}

// reidentify replaces ids in place according to the policy and returns the
// old to new id mapping.
func (r *Reconciler) reidentify(prompts []*models.Prompt) map[string]string {
	renamed := make(map[string]string)
	for _, p := range prompts {
		if r.policy == ReassignAll || !isUUID(p.ID) {
			id := r.newID()
			renamed[p.ID] = id
			p.ID = id
		}
	}
	return renamed
}

// SignOut returns to local-only operation. Local data is kept as is and
// queued remote operations stay queued.
func (r *Reconciler) SignOut() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Transitioning {
		return ErrTransitionInProgress
	}
	r.lib.SetUser("")
	r.state = LocalOnly
	r.userID = ""
	log.Info().Msg("Signed out, library is local only")
	return nil
}

func (r *Reconciler) setState(s State, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.userID = userID
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
