// Package remote defines the per-user remote prompt store that the local
// library mirrors to once a user has signed in.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/thebtf/promptlib/pkg/models"
)

// Store is the CRUD contract of a remote per-user prompt table.
// Implementations must be safe for concurrent use.
type Store interface {
	// FetchPrompts returns every prompt owned by userID, newest first.
	FetchPrompts(ctx context.Context, userID string) ([]*models.Prompt, error)
	// CreatePrompt stores p, replacing a row with the same id so a resent
	// create is harmless.
	CreatePrompt(ctx context.Context, userID string, p *models.Prompt) error
	UpdatePrompt(ctx context.Context, userID string, p *models.Prompt) error
	DeletePrompt(ctx context.Context, userID, id string) error
	// UpsertMany inserts or replaces prompts keyed by id.
	UpsertMany(ctx context.Context, userID string, prompts []*models.Prompt) error
}

// Operation names carried by Error.
const (
	OpFetch  = "fetch"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpUpsert = "upsert"
)

// ErrUnavailable is returned when the remote refuses calls, e.g. while the
// circuit breaker is open.
var ErrUnavailable = errors.New("remote unavailable")

// Error is a failed remote call.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with the operation. It returns nil for a nil err and
// leaves an existing *Error untouched.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}
