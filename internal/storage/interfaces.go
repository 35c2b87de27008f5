package storage

import (
	"context"
	"time"

	"lightning-fee-lab/internal/domain"
)

// DayStore provides access to days storage.
type DayStore interface {
	// Insert adds a day aggregate. Returns ErrDuplicateKey if day exists.
	Insert(ctx context.Context, a *domain.DayAggregate) error

	// GetByDay retrieves the aggregate of day. Returns ErrNotFound if not exists.
	GetByDay(ctx context.Context, day time.Time) (*domain.DayAggregate, error)

	// LastDay returns the latest stored day. ok is false when the store is empty.
	LastDay(ctx context.Context) (day time.Time, ok bool, err error)
}

// OverpaidStore provides access to per-payment overpaid rows.
type OverpaidStore interface {
	// InsertBulk adds the overpaid payments of day atomically.
	// Returns ErrDuplicateKey if rows for day already exist.
	InsertBulk(ctx context.Context, day time.Time, payments []domain.OverpaidPayment) error

	// GetByDay retrieves the overpaid payments of day ordered by
	// (block_height, txid, vout).
	GetByDay(ctx context.Context, day time.Time) ([]domain.OverpaidPayment, error)
}
