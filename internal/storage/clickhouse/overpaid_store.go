package clickhouse

import (
	"context"
	"fmt"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/observability"
	"lightning-fee-lab/internal/storage"
)

// OverpaidStore implements storage.OverpaidStore using ClickHouse.
type OverpaidStore struct {
	conn *Conn
}

// NewOverpaidStore creates a new OverpaidStore.
func NewOverpaidStore(conn *Conn) *OverpaidStore {
	return &OverpaidStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OverpaidStore = (*OverpaidStore)(nil)

// InsertBulk adds the overpaid payments of day in one batch.
// Returns ErrDuplicateKey if rows for day already exist.
func (s *OverpaidStore) InsertBulk(ctx context.Context, day time.Time, payments []domain.OverpaidPayment) (err error) {
	if day.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(payments) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_overpaid", time.Since(start).Seconds(), err)
	}()

	day = domain.TruncateDay(day)

	// MergeTree does not enforce keys; check the batch and the day explicitly.
	seen := make(map[string]struct{}, len(payments))
	for _, p := range payments {
		if p.TxID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[p.Outpoint()]; exists {
			return storage.ErrDuplicateKey
		}
		seen[p.Outpoint()] = struct{}{}
	}

	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM overpaid_payments WHERE day = ?`, day).Scan(&count); err != nil {
		return fmt.Errorf("check day exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO overpaid_payments (
			day, block_height, txid, vout, amount_sat, chain_fee_sat, ln_fee_sat
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range payments {
		err = batch.Append(
			day, uint64(p.BlockHeight), p.TxID, p.Vout,
			p.AmountSat, p.ChainFeeSat, p.LNFeeSat,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByDay retrieves the overpaid payments of day ordered by
// (block_height, txid, vout).
func (s *OverpaidStore) GetByDay(ctx context.Context, day time.Time) ([]domain.OverpaidPayment, error) {
	query := `
		SELECT block_height, txid, vout, amount_sat, chain_fee_sat, ln_fee_sat
		FROM overpaid_payments
		WHERE day = ?
		ORDER BY block_height ASC, txid ASC, vout ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.TruncateDay(day))
	if err != nil {
		return nil, fmt.Errorf("query overpaid payments: %w", err)
	}
	defer rows.Close()

	var result []domain.OverpaidPayment
	for rows.Next() {
		var (
			p      domain.OverpaidPayment
			height uint64
		)
		if err := rows.Scan(&height, &p.TxID, &p.Vout, &p.AmountSat, &p.ChainFeeSat, &p.LNFeeSat); err != nil {
			return nil, fmt.Errorf("scan overpaid payment: %w", err)
		}
		p.BlockHeight = int64(height)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overpaid payments: %w", err)
	}
	return result, nil
}
