package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/storage"
)

// OverpaidStore is an in-memory implementation of storage.OverpaidStore.
type OverpaidStore struct {
	mu   sync.RWMutex
	data map[string][]domain.OverpaidPayment // keyed by YYYY-MM-DD
}

// NewOverpaidStore creates a new in-memory overpaid payment store.
func NewOverpaidStore() *OverpaidStore {
	return &OverpaidStore{
		data: make(map[string][]domain.OverpaidPayment),
	}
}

// Compile-time interface check.
var _ storage.OverpaidStore = (*OverpaidStore)(nil)

// InsertBulk adds the overpaid payments of day atomically.
func (s *OverpaidStore) InsertBulk(_ context.Context, day time.Time, payments []domain.OverpaidPayment) error {
	if day.IsZero() {
		return storage.ErrInvalidInput
	}
	if len(payments) == 0 {
		return nil
	}

	// Intra-batch duplicates
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

	key := day.UTC().Format(domain.DayLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = slices.Clone(payments)
	return nil
}

// GetByDay retrieves the overpaid payments of day ordered by
// (block_height, txid, vout).
func (s *OverpaidStore) GetByDay(_ context.Context, day time.Time) ([]domain.OverpaidPayment, error) {
	s.mu.RLock()
	result := slices.Clone(s.data[day.UTC().Format(domain.DayLayout)])
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b domain.OverpaidPayment) int {
		return cmp.Or(
			cmp.Compare(a.BlockHeight, b.BlockHeight),
			cmp.Compare(a.TxID, b.TxID),
			cmp.Compare(a.Vout, b.Vout),
		)
	})
	return result, nil
}
