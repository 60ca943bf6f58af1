package remote

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/thebtf/promptlib/pkg/models"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// Trip once this share of at least MinRequests calls has failed.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the configuration used by the outbox drainer.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker is a Store that stops calling the wrapped store after repeated
// failures and fails fast with ErrUnavailable until the breaker half-opens.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Store, cfg BreakerConfig) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Remote circuit breaker state changed")
		},
		// A cancelled caller says nothing about remote health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the breaker state ("closed", "half-open" or "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) run(op string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Op: op, Err: errors.Join(ErrUnavailable, err)}
	}
	return Wrap(op, err)
}

// FetchPrompts implements Store.
func (b *Breaker) FetchPrompts(ctx context.Context, userID string) ([]*models.Prompt, error) {
	var out []*models.Prompt
	err := b.run(OpFetch, func() error {
		var err error
		out, err = b.next.FetchPrompts(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePrompt implements Store.
func (b *Breaker) CreatePrompt(ctx context.Context, userID string, p *models.Prompt) error {
	return b.run(OpCreate, func() error { return b.next.CreatePrompt(ctx, userID, p) })
}

// UpdatePrompt implements Store.
func (b *Breaker) UpdatePrompt(ctx context.Context, userID string, p *models.Prompt) error {
	return b.run(OpUpdate, func() error { return b.next.UpdatePrompt(ctx, userID, p) })
}

// DeletePrompt implements Store.
func (b *Breaker) DeletePrompt(ctx context.Context, userID, id string) error {
	return b.run(OpDelete, func() error { return b.next.DeletePrompt(ctx, userID, id) })
}

// UpsertMany implements Store.
func (b *Breaker) UpsertMany(ctx context.Context, userID string, prompts []*models.Prompt) error {
	return b.run(OpUpsert, func() error { return b.next.UpsertMany(ctx, userID, prompts) })
}
