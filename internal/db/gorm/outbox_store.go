// Package gorm provides GORM-based local persistence for promptlib.
package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// OutboxStore provides durable storage for pending remote writes.
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore creates a new outbox store.
func NewOutboxStore(store *Store) *OutboxStore {
	return &OutboxStore{db: store.DB}
}

// Enqueue stores a new pending operation and returns its ID.
func (s *OutboxStore) Enqueue(ctx context.Context, op *OutboxOp) (int64, error) {
	if err := s.db.WithContext(ctx).Create(op).Error; err != nil {
		return 0, fmt.Errorf("enqueue outbox op: %w", err)
	}
	return op.ID, nil
}

// Due returns pending operations whose next attempt time has passed, oldest
// first. An operation waits while an older pending operation on the same
// prompt is not due yet, so a retried create is never overtaken.
func (s *OutboxStore) Due(ctx context.Context, now time.Time, limit int) ([]OutboxOp, error) {
	if limit <= 0 {
		limit = 100
	}

	var ops []OutboxOp
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_epoch <= ?", OutboxPending, now.UnixMilli()).
		Where(`NOT EXISTS (SELECT 1 FROM outbox_ops AS earlier
			WHERE earlier.status = ?
			AND earlier.user_id = outbox_ops.user_id
			AND earlier.prompt_id = outbox_ops.prompt_id
			AND earlier.id < outbox_ops.id
			AND earlier.next_attempt_epoch > ?)`, OutboxPending, now.UnixMilli()).
		Order("id ASC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("query due outbox ops: %w", err)
	}
	return ops, nil
}

// Complete removes a delivered operation.
func (s *OutboxStore) Complete(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&OutboxOp{}, id).Error; err != nil {
		return fmt.Errorf("complete outbox op %d: %w", id, err)
	}
	return nil
}

// Reschedule records a failed attempt and the time of the next one.
func (s *OutboxStore) Reschedule(ctx context.Context, id int64, attempts int, next time.Time, lastErr string) error {
	err := s.db.WithContext(ctx).
		Model(&OutboxOp{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":           attempts,
			"next_attempt_epoch": next.UnixMilli(),
			"last_error":         sqlNullString(lastErr),
		}).Error
	if err != nil {
		return fmt.Errorf("reschedule outbox op %d: %w", id, err)
	}
	return nil
}

// MarkDead parks an operation that exhausted its attempts.
func (s *OutboxStore) MarkDead(ctx context.Context, id int64, attempts int, lastErr string) error {
	err := s.db.WithContext(ctx).
		Model(&OutboxOp{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     OutboxDead,
			"attempts":   attempts,
			"last_error": sqlNullString(lastErr),
		}).Error
	if err != nil {
		return fmt.Errorf("mark outbox op %d dead: %w", id, err)
	}
	return nil
}

// CountByStatus returns the number of operations in the given status.
func (s *OutboxStore) CountByStatus(ctx context.Context, status OutboxStatus) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&OutboxOp{}).
		Where("status = ?", status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count outbox ops: %w", err)
	}
	return count, nil
}

// DeadOps returns parked operations, newest first.
func (s *OutboxStore) DeadOps(ctx context.Context, limit int) ([]OutboxOp, error) {
	if limit <= 0 {
		limit = 50
	}
	var ops []OutboxOp
	err := s.db.WithContext(ctx).
		Where("status = ?", OutboxDead).
		Order("id DESC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("query dead outbox ops: %w", err)
	}
	return ops, nil
}
