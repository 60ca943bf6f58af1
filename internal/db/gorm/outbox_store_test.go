// Package gorm provides GORM-based local persistence for promptlib.
package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStore_Lifecycle(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()

	ctx := context.Background()
	outbox := NewOutboxStore(store)

	id1, err := outbox.Enqueue(ctx, &OutboxOp{UserID: "u1", Kind: OutboxCreate, PromptID: "p1", Payload: `{}`})
	require.NoError(t, err)
	id2, err := outbox.Enqueue(ctx, &OutboxOp{UserID: "u1", Kind: OutboxDelete, PromptID: "p2"})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	due, err := outbox.Due(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, id1, due[0].ID)
	assert.Equal(t, OutboxPending, due[0].Status)

	// A rescheduled op is not due until its next attempt time.
	require.NoError(t, outbox.Reschedule(ctx, id1, 1, time.Now().Add(time.Hour), "boom"))
	due, err = outbox.Due(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id2, due[0].ID)

	require.NoError(t, outbox.Complete(ctx, id2))
	pending, err := outbox.CountByStatus(ctx, OutboxPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	require.NoError(t, outbox.MarkDead(ctx, id1, 8, "gave up"))
	dead, err := outbox.DeadOps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 8, dead[0].Attempts)
	assert.Equal(t, "gave up", dead[0].LastError.String)

	due, err = outbox.Due(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestOutboxStore_DueKeepsPromptOrder(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()

	ctx := context.Background()
	outbox := NewOutboxStore(store)
	now := time.Now().Add(time.Second)

	create, err := outbox.Enqueue(ctx, &OutboxOp{UserID: "u1", Kind: OutboxCreate, PromptID: "p1", Payload: `{}`})
	require.NoError(t, err)
	require.NoError(t, outbox.Reschedule(ctx, create, 1, now.Add(time.Hour), "boom"))
	del, err := outbox.Enqueue(ctx, &OutboxOp{UserID: "u1", Kind: OutboxDelete, PromptID: "p1"})
	require.NoError(t, err)
	other, err := outbox.Enqueue(ctx, &OutboxOp{UserID: "u1", Kind: OutboxDelete, PromptID: "p2"})
	require.NoError(t, err)
	sameIDOtherUser, err := outbox.Enqueue(ctx, &OutboxOp{UserID: "u2", Kind: OutboxDelete, PromptID: "p1"})
	require.NoError(t, err)

	ids := func(ops []OutboxOp) []int64 {
		out := make([]int64, len(ops))
		for i, op := range ops {
			out[i] = op.ID
		}
		return out
	}

	due, err := outbox.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{other, sameIDOtherUser}, ids(due), "delete of p1 waits for its create")

	due, err = outbox.Due(ctx, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{create, del, other, sameIDOtherUser}, ids(due))

	// A parked create no longer holds back later operations.
	require.NoError(t, outbox.MarkDead(ctx, create, 8, "gave up"))
	due, err = outbox.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{del, other, sameIDOtherUser}, ids(due))
}
