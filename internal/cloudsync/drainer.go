package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	dbgorm "github.com/thebtf/promptlib/internal/db/gorm"
	"github.com/thebtf/promptlib/internal/remote"
)

// DrainerConfig tunes outbox delivery.
type DrainerConfig struct {
	// Interval between delivery passes in Run.
	Interval time.Duration
	// MaxAttempts after which an operation is parked as dead.
	MaxAttempts int
	// Concurrency bounds the prompts delivered in parallel.
	Concurrency int
	// BatchSize bounds the operations claimed per pass.
	BatchSize int
	// InitialDelay and MaxDelay shape the exponential retry schedule.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultDrainerConfig returns the delivery settings used by the CLI.
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		Interval:     5 * time.Second,
		MaxAttempts:  8,
		Concurrency:  4,
		BatchSize:    100,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Minute,
	}
}

// Drainer replays queued operations against the remote store.
// Operations for one prompt are delivered in order; different prompts are
// delivered concurrently.
type Drainer struct {
	ops    *dbgorm.OutboxStore
	remote remote.Store
	cfg    DrainerConfig
	now    func() time.Time

	sent   metric.Int64Counter
	failed metric.Int64Counter
}

// NewDrainer creates a drainer. rs is usually a *remote.Breaker so an
// unreachable remote is not hammered on every pass.
func NewDrainer(ops *dbgorm.OutboxStore, rs remote.Store, cfg DrainerConfig) (*Drainer, error) {
	def := DefaultDrainerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	meter := otel.Meter("github.com/thebtf/promptlib/internal/cloudsync")
	sent, err := meter.Int64Counter("promptlib.outbox.sent",
		metric.WithDescription("Outbox operations delivered to the remote store"))
	if err != nil {
		return nil, fmt.Errorf("create sent counter: %w", err)
	}
	failed, err := meter.Int64Counter("promptlib.outbox.failed",
		metric.WithDescription("Failed outbox delivery attempts"))
	if err != nil {
		return nil, fmt.Errorf("create failed counter: %w", err)
	}

	return &Drainer{
		ops:    ops,
		remote: rs,
		cfg:    cfg,
		now:    time.Now,
		sent:   sent,
		failed: failed,
	}, nil
}

// Run delivers due operations every Interval until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", d.cfg.Interval).Msg("Outbox drainer started")
	for {
		if _, err := d.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Outbox pass failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Outbox drainer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush delivers every operation that is currently due and returns how many
// were delivered. Failed operations are rescheduled and do not make Flush
// fail; only errors of the local queue do.
func (d *Drainer) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		due, err := d.ops.Due(ctx, d.now(), d.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(due) == 0 {
			return total, nil
		}
		delivered, err := d.pass(ctx, due)
		total += delivered
		if err != nil {
			return total, err
		}
		if delivered == 0 || len(due) < d.cfg.BatchSize {
			return total, nil
		}
	}
}

// pass delivers one batch. Operations are grouped by prompt so that a
// create is never overtaken by a later update or delete of the same prompt.
func (d *Drainer) pass(ctx context.Context, due []dbgorm.OutboxOp) (int, error) {
	var order []string
	groups := make(map[string][]dbgorm.OutboxOp)
	for _, op := range due {
		key := op.UserID + "/" + op.PromptID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], op)
	}

	delivered := make([]int, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, key := range order {
		ops := groups[key]
		g.Go(func() error {
			n, err := d.deliverGroup(gctx, ops)
			delivered[i] = n
			return err
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range delivered {
		total += n
	}
	return total, err
}

// deliverGroup sends ops in order and stops at the first failure so later
// operations wait for the earlier one.
func (d *Drainer) deliverGroup(ctx context.Context, ops []dbgorm.OutboxOp) (int, error) {
	delivered := 0
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return delivered, nil
		}
		sendErr := d.send(ctx, op)
		if sendErr == nil {
			if err := d.ops.Complete(ctx, op.ID); err != nil {
				return delivered, err
			}
			d.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(op.Kind))))
			delivered++
			continue
		}
		if err := d.fail(ctx, op, sendErr); err != nil {
			return delivered, err
		}
		return delivered, nil
	}
	return delivered, nil
}

func (d *Drainer) send(ctx context.Context, op dbgorm.OutboxOp) error {
	switch op.Kind {
	case dbgorm.OutboxCreate, dbgorm.OutboxUpdate:
		p, err := decodePayload(op)
		if err != nil {
			return err
		}
		if op.Kind == dbgorm.OutboxCreate {
			return d.remote.CreatePrompt(ctx, op.UserID, p)
		}
		return d.remote.UpdatePrompt(ctx, op.UserID, p)
	case dbgorm.OutboxDelete:
		return d.remote.DeletePrompt(ctx, op.UserID, op.PromptID)
	default:
		return fmt.Errorf("unknown outbox op kind %q", op.Kind)
	}
}

// fail records a failed attempt. While the remote is unavailable the
// attempt is not counted, so an outage alone never kills an operation.
func (d *Drainer) fail(ctx context.Context, op dbgorm.OutboxOp, sendErr error) error {
	d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(op.Kind))))

	attempts := op.Attempts
	if !errors.Is(sendErr, remote.ErrUnavailable) {
		attempts++
	}

	if attempts >= d.cfg.MaxAttempts {
		log.Error().Err(sendErr).
			Int64("op", op.ID).
			Str("kind", string(op.Kind)).
			Str("prompt", op.PromptID).
			Int("attempts", attempts).
			Msg("Outbox op exhausted its attempts")
		return d.ops.MarkDead(ctx, op.ID, attempts, sendErr.Error())
	}

	delay := d.retryDelay(attempts)
	log.Warn().Err(sendErr).
		Int64("op", op.ID).
		Str("kind", string(op.Kind)).
		Int("attempts", attempts).
		Dur("retry_in", delay).
		Msg("Outbox delivery failed")
	return d.ops.Reschedule(ctx, op.ID, attempts, d.now().Add(delay), sendErr.Error())
}

// retryDelay returns the randomized exponential delay before the next
// attempt after attempts failures.
func (d *Drainer) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialDelay
	b.MaxInterval = d.cfg.MaxDelay
	b.Reset()

	delay := b.InitialInterval
	for i := 0; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
