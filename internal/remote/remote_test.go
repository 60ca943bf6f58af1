package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/promptlib/internal/remote"
	"github.com/thebtf/promptlib/internal/remote/memory"
	"github.com/thebtf/promptlib/pkg/models"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, remote.Wrap(remote.OpFetch, nil))

	base := errors.New("boom")
	err := remote.Wrap(remote.OpCreate, base)
	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, remote.OpCreate, re.Op)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, "remote create: boom", err.Error())

	// Already wrapped errors keep their original operation.
	assert.Same(t, err, remote.Wrap(remote.OpUpsert, err))
}

func testBreakerConfig() remote.BreakerConfig {
	cfg := remote.DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 1
	cfg.Timeout = 50 * time.Millisecond
	return cfg
}

func TestBreaker_PassesThrough(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	b := remote.NewBreaker(mem, testBreakerConfig())

	p := &models.Prompt{ID: "p1", Title: "t", Content: "c"}
	require.NoError(t, b.CreatePrompt(ctx, "u1", p))
	require.NoError(t, b.UpsertMany(ctx, "u1", []*models.Prompt{{ID: "p2"}}))

	got, err := b.FetchPrompts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, b.DeletePrompt(ctx, "u1", "p1"))
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	mem.FailOn(remote.OpUpdate, errors.New("503"))
	b := remote.NewBreaker(mem, testBreakerConfig())

	p := &models.Prompt{ID: "p1"}
	for i := 0; i < 2; i++ {
		err := b.UpdatePrompt(ctx, "u1", p)
		require.Error(t, err)
		assert.False(t, errors.Is(err, remote.ErrUnavailable))
	}
	assert.Equal(t, "open", b.State())

	callsBefore := len(mem.Calls())
	err := b.UpdatePrompt(ctx, "u1", p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrUnavailable))
	var re *remote.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, remote.OpUpdate, re.Op)
	assert.Equal(t, callsBefore, len(mem.Calls()), "open breaker must not reach the store")

	// After the timeout one trial call is let through and closes the breaker.
	mem.FailOn(remote.OpUpdate, nil)
	require.Eventually(t, func() bool {
		return b.UpdatePrompt(ctx, "u1", p) == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	mem := memory.New()
	b := remote.NewBreaker(mem, testBreakerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err := b.FetchPrompts(ctx, "u1")
		require.Error(t, err)
	}
	assert.Equal(t, "closed", b.State())
}
