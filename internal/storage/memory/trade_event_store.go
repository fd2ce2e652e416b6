package memory

import (
	"context"
	"sync"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu     sync.RWMutex
	events []*domain.TradeEvent
	seen   map[eventKey]struct{}
}

type eventKey struct {
	signature string
	side      string
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{seen: make(map[eventKey]struct{})}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk appends events, skipping ones already stored.
func (s *TradeEventStore) InsertBulk(_ context.Context, events []*domain.TradeEvent) error {
	for _, e := range events {
		if e == nil || e.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		k := eventKey{e.Signature, e.Side}
		if _, exists := s.seen[k]; exists {
			continue
		}
		s.seen[k] = struct{}{}
		copy := *e
		s.events = append(s.events, &copy)
	}
	return nil
}

// GetCycleVolume aggregates the events recorded for cycleNumber.
func (s *TradeEventStore) GetCycleVolume(_ context.Context, cycleNumber int64) (*domain.CycleVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := &domain.CycleVolume{CycleNumber: cycleNumber}
	wallets := make(map[string]struct{})
	for _, e := range s.events {
		if e.CycleNumber != cycleNumber {
			continue
		}
		switch e.Side {
		case domain.TradeSideBuy:
			v.BuyVolume += e.SolAmount
		case domain.TradeSideSell:
			v.SellVolume += e.SolAmount
		}
		v.Trades++
		wallets[e.Wallet] = struct{}{}
	}
	v.Wallets = int64(len(wallets))
	return v, nil
}
