package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

// CycleStore is an in-memory implementation of storage.CycleStore.
type CycleStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.Cycle // keyed by cycle_number
}

// NewCycleStore creates a new in-memory cycle store.
func NewCycleStore() *CycleStore {
	return &CycleStore{
		nextID: 1,
		data:   make(map[int64]*domain.Cycle),
	}
}

// Compile-time interface check.
var _ storage.CycleStore = (*CycleStore)(nil)

// Create inserts an active cycle. Returns ErrDuplicateKey if cycle_number exists.
func (s *CycleStore) Create(_ context.Context, cycleNumber int64, startTime time.Time) (*domain.Cycle, error) {
	if cycleNumber < 1 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[cycleNumber]; exists {
		return nil, storage.ErrDuplicateKey
	}

	c := &domain.Cycle{
		ID:          s.nextID,
		CycleNumber: cycleNumber,
		StartTime:   startTime,
		Status:      domain.CycleStatusActive,
	}
	s.nextID++
	s.data[cycleNumber] = c

	out := *c
	return &out, nil
}

// Complete marks the cycle completed. Returns ErrNotFound if missing.
func (s *CycleStore) Complete(_ context.Context, cycleNumber int64, done domain.CycleCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[cycleNumber]
	if !exists {
		return storage.ErrNotFound
	}
	c.Apply(done)
	return nil
}

// CloseStale completes active cycles numbered below before.
func (s *CycleStore) CloseStale(_ context.Context, before int64, endTime time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for num, c := range s.data {
		if num >= before || c.Status != domain.CycleStatusActive {
			continue
		}
		end := endTime
		c.EndTime = &end
		c.Status = domain.CycleStatusCompleted
		n++
	}
	return n, nil
}

// GetByNumber retrieves one cycle. Returns ErrNotFound if not exists.
func (s *CycleStore) GetByNumber(_ context.Context, cycleNumber int64) (*domain.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[cycleNumber]
	if !exists {
		return nil, storage.ErrNotFound
	}
	out := *c
	return &out, nil
}

// GetRecentCompleted returns up to limit completed cycles, newest first.
func (s *CycleStore) GetRecentCompleted(_ context.Context, limit int) ([]*domain.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Cycle, 0)
	for _, c := range s.data {
		if c.Status != domain.CycleStatusCompleted {
			continue
		}
		out := *c
		result = append(result, &out)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CycleNumber > result[j].CycleNumber
	})

	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountWins returns how many completed cycles wallet led.
func (s *CycleStore) CountWins(_ context.Context, wallet string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.data {
		if ledBy(c, wallet) {
			n++
		}
	}
	return n, nil
}

// TotalEarnings returns the sum of landed extraction payouts to wallet.
func (s *CycleStore) TotalEarnings(_ context.Context, wallet string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, c := range s.data {
		if ledBy(c, wallet) && c.TxAlpha != nil {
			total += c.AlphaExtraction
		}
	}
	return total, nil
}

// DeleteAll removes every cycle.
func (s *CycleStore) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[int64]*domain.Cycle)
	return nil
}

func ledBy(c *domain.Cycle, wallet string) bool {
	return c.Status == domain.CycleStatusCompleted && c.AlphaWallet != nil && *c.AlphaWallet == wallet
}
