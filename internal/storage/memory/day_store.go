package memory

import (
	"context"
	"sync"
	"time"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/storage"
)

// DayStore is an in-memory implementation of storage.DayStore.
type DayStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DayAggregate // keyed by YYYY-MM-DD
}

// NewDayStore creates a new in-memory day store.
func NewDayStore() *DayStore {
	return &DayStore{
		data: make(map[string]*domain.DayAggregate),
	}
}

// Compile-time interface check.
var _ storage.DayStore = (*DayStore)(nil)

// Insert adds a day aggregate. Returns ErrDuplicateKey if day exists.
func (s *DayStore) Insert(_ context.Context, a *domain.DayAggregate) error {
	if a == nil || a.Day.IsZero() {
		return storage.ErrInvalidInput
	}

	key := a.DayKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = copyAggregate(a)
	return nil
}

// GetByDay retrieves the aggregate of day. Returns ErrNotFound if not exists.
func (s *DayStore) GetByDay(_ context.Context, day time.Time) (*domain.DayAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[day.UTC().Format(domain.DayLayout)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyAggregate(a), nil
}

// LastDay returns the latest stored day.
func (s *DayStore) LastDay(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		last  time.Time
		found bool
	)
	for _, a := range s.data {
		if !found || a.Day.After(last) {
			last = a.Day
			found = true
		}
	}
	return last, found, nil
}

func copyAggregate(a *domain.DayAggregate) *domain.DayAggregate {
	cp := *a
	cp.Day = domain.TruncateDay(a.Day)
	cp.QuantAmount = append([]float64{}, a.QuantAmount...)
	cp.QuantChainFee = append([]float64{}, a.QuantChainFee...)
	cp.QuantLNFee = append([]float64{}, a.QuantLNFee...)
	cp.QuantDiff = append([]float64{}, a.QuantDiff...)
	return &cp
}
