package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/storage"
)

// OverpaidStore implements storage.OverpaidStore using PostgreSQL.
type OverpaidStore struct {
	pool *Pool
}

// NewOverpaidStore creates a new OverpaidStore.
func NewOverpaidStore(pool *Pool) *OverpaidStore {
	return &OverpaidStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OverpaidStore = (*OverpaidStore)(nil)

var overpaidColumns = []string{
	"day", "block_height", "txid", "vout", "amount_sat", "chain_fee_sat", "ln_fee_sat",
}

// InsertBulk adds the overpaid payments of day atomically.
// Returns ErrDuplicateKey if rows for day already exist.
func (s *OverpaidStore) InsertBulk(ctx context.Context, day time.Time, payments []domain.OverpaidPayment) (err error) {
	if day.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(payments) == 0 {
		return nil
	}
	defer recordQuery("insert_overpaid", time.Now(), &err)

	day = domain.TruncateDay(day)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM overpaid_payments WHERE day = $1)`, day).Scan(&exists); err != nil {
		return fmt.Errorf("check day exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"overpaid_payments"}, overpaidColumns,
		pgx.CopyFromSlice(len(payments), func(i int) ([]any, error) {
			p := payments[i]
			if p.TxID == "" {
				return nil, storage.ErrInvalidInput
			}
			return []any{day, p.BlockHeight, p.TxID, int64(p.Vout), p.AmountSat, p.ChainFeeSat, p.LNFeeSat}, nil
		}),
	)
	if err != nil {
		return mapError("copy overpaid payments", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByDay retrieves the overpaid payments of day ordered by
// (block_height, txid, vout).
func (s *OverpaidStore) GetByDay(ctx context.Context, day time.Time) (_ []domain.OverpaidPayment, err error) {
	defer recordQuery("get_overpaid", time.Now(), &err)

	query := `
		SELECT block_height, txid, vout, amount_sat, chain_fee_sat, ln_fee_sat
		FROM overpaid_payments
		WHERE day = $1
		ORDER BY block_height ASC, txid ASC, vout ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.TruncateDay(day))
	if err != nil {
		return nil, fmt.Errorf("query overpaid payments: %w", err)
	}
	defer rows.Close()

	var result []domain.OverpaidPayment
	for rows.Next() {
		var (
			p    domain.OverpaidPayment
			vout int64
		)
		if err := rows.Scan(&p.BlockHeight, &p.TxID, &vout, &p.AmountSat, &p.ChainFeeSat, &p.LNFeeSat); err != nil {
			return nil, fmt.Errorf("scan overpaid payment: %w", err)
		}
		p.Vout = uint32(vout)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overpaid payments: %w", err)
	}
	return result, nil
}
