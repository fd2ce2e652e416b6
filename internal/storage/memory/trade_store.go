package memory

import (
	"context"
	"sort"
	"sync"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	nextID int64
	data   []*domain.Trade
	sigs   map[string]struct{}
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		nextID: 1,
		sigs:   make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert appends a trade. Returns ErrDuplicateKey if tx_signature exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TxSignature == "" || t.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sigs[t.TxSignature]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	copy.ID = s.nextID
	s.nextID++
	s.data = append(s.data, &copy)
	s.sigs[t.TxSignature] = struct{}{}
	t.ID = copy.ID
	return nil
}

// GetByWallet returns up to limit trades of wallet, newest first.
func (s *TradeStore) GetByWallet(_ context.Context, wallet string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Trade, 0)
	for _, t := range s.data {
		if t.Wallet == wallet {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})

	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteAll removes every trade.
func (s *TradeStore) DeleteAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil
	s.sigs = make(map[string]struct{})
	return nil
}
