package postgres

import (
	"context"
	"fmt"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/storage"
)

// DayStore implements storage.DayStore using PostgreSQL.
type DayStore struct {
	pool *Pool
}

// NewDayStore creates a new DayStore.
func NewDayStore(pool *Pool) *DayStore {
	return &DayStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DayStore = (*DayStore)(nil)

// Insert adds a day aggregate. Returns ErrDuplicateKey if day exists.
func (s *DayStore) Insert(ctx context.Context, a *domain.DayAggregate) (err error) {
	if a == nil || a.Day.IsZero() {
		return storage.ErrInvalidInput
	}
	defer recordQuery("insert_day", time.Now(), &err)

	query := `
		INSERT INTO days (
			day,
			total_n, total_amount, overpaid_n, overpaid_amount,
			overpaid_chain_fee, overpaid_ln_fee,
			overpaid_quant_amount, overpaid_quant_chain_fee, overpaid_quant_ln_fee, overpaid_quant_diff
		) VALUES (
			$1,
			$2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11
		)
	`

	_, err = s.pool.Exec(ctx, query,
		domain.TruncateDay(a.Day),
		a.TotalN, a.TotalAmount, a.OverpaidN, a.OverpaidAmount,
		a.OverpaidChainFee, a.OverpaidLNFee,
		nonNil(a.QuantAmount), nonNil(a.QuantChainFee), nonNil(a.QuantLNFee), nonNil(a.QuantDiff),
	)
	return mapError("insert day", err)
}

// GetByDay retrieves the aggregate of day. Returns ErrNotFound if not exists.
func (s *DayStore) GetByDay(ctx context.Context, day time.Time) (_ *domain.DayAggregate, err error) {
	defer recordQuery("get_day", time.Now(), &err)

	query := `
		SELECT day,
			total_n, total_amount, overpaid_n, overpaid_amount,
			overpaid_chain_fee, overpaid_ln_fee,
			overpaid_quant_amount, overpaid_quant_chain_fee, overpaid_quant_ln_fee, overpaid_quant_diff
		FROM days
		WHERE day = $1
	`

	var a domain.DayAggregate
	err = s.pool.QueryRow(ctx, query, domain.TruncateDay(day)).Scan(
		&a.Day,
		&a.TotalN, &a.TotalAmount, &a.OverpaidN, &a.OverpaidAmount,
		&a.OverpaidChainFee, &a.OverpaidLNFee,
		&a.QuantAmount, &a.QuantChainFee, &a.QuantLNFee, &a.QuantDiff,
	)
	if err != nil {
		return nil, mapError("get day", err)
	}
	a.Day = domain.TruncateDay(a.Day)
	return &a, nil
}

// LastDay returns the latest stored day.
func (s *DayStore) LastDay(ctx context.Context) (_ time.Time, _ bool, err error) {
	defer recordQuery("last_day", time.Now(), &err)

	var last *time.Time
	if err = s.pool.QueryRow(ctx, `SELECT max(day) FROM days`).Scan(&last); err != nil {
		return time.Time{}, false, fmt.Errorf("select last day: %w", err)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return domain.TruncateDay(*last), true, nil
}

// nonNil stores missing deciles as an empty array rather than NULL.
func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
