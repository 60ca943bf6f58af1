// Package cloudsync keeps the local library and the remote store in step:
// a durable outbox queues single-record changes, a drainer replays them
// against the remote and a reconciler performs the sign-in merge.
package cloudsync

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	dbgorm "github.com/thebtf/promptlib/internal/db/gorm"
	"github.com/thebtf/promptlib/internal/library"
	"github.com/thebtf/promptlib/pkg/models"
)

// Outbox queues prompt changes in the local database. It implements
// library.Mirror and never touches the network.
type Outbox struct {
	ops *dbgorm.OutboxStore
	now func() time.Time
}

var _ library.Mirror = (*Outbox)(nil)

// NewOutbox creates an outbox backed by ops.
func NewOutbox(ops *dbgorm.OutboxStore) *Outbox {
	return &Outbox{ops: ops, now: time.Now}
}

// PromptCreated implements library.Mirror.
func (o *Outbox) PromptCreated(ctx context.Context, userID string, p *models.Prompt) error {
	return o.enqueue(ctx, userID, dbgorm.OutboxCreate, p.ID, p)
}

// PromptUpdated implements library.Mirror.
func (o *Outbox) PromptUpdated(ctx context.Context, userID string, p *models.Prompt) error {
	return o.enqueue(ctx, userID, dbgorm.OutboxUpdate, p.ID, p)
}

// PromptDeleted implements library.Mirror.
func (o *Outbox) PromptDeleted(ctx context.Context, userID, id string) error {
	return o.enqueue(ctx, userID, dbgorm.OutboxDelete, id, nil)
}

// Pending returns the number of operations waiting for delivery.
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	return o.ops.CountByStatus(ctx, dbgorm.OutboxPending)
}

// Dead returns the operations that exhausted their attempts, newest first.
func (o *Outbox) Dead(ctx context.Context, limit int) ([]dbgorm.OutboxOp, error) {
	return o.ops.DeadOps(ctx, limit)
}

func (o *Outbox) enqueue(ctx context.Context, userID string, kind dbgorm.OutboxKind, promptID string, p *models.Prompt) error {
	op := &dbgorm.OutboxOp{
		UserID:   userID,
		Kind:     kind,
		PromptID: promptID,
	}
	if p != nil {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s payload for %s: %w", kind, promptID, err)
		}
		op.Payload = string(payload)
	}
	now := o.now()
	op.CreatedAtEpoch = now.UnixMilli()
	op.CreatedAt = now.Format(time.RFC3339)
	op.NextAttemptEpoch = op.CreatedAtEpoch

	_, err := o.ops.Enqueue(ctx, op)
	return err
}

// decodePayload restores the prompt carried by a create or update operation.
func decodePayload(op dbgorm.OutboxOp) (*models.Prompt, error) {
	var p models.Prompt
	if err := json.Unmarshal([]byte(op.Payload), &p); err != nil {
		return nil, fmt.Errorf("decode outbox op %d: %w", op.ID, err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}
