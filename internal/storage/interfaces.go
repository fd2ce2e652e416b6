package storage

import (
	"context"
	"time"

	"boil-protocol/internal/domain"
)

// CycleStore provides access to cycles storage.
type CycleStore interface {
	// Create inserts an active cycle. Returns ErrDuplicateKey if cycle_number exists.
	Create(ctx context.Context, cycleNumber int64, startTime time.Time) (*domain.Cycle, error)

	// Complete writes the resolution outcome and marks the cycle completed.
	// Returns ErrNotFound if no row has that cycle_number.
	Complete(ctx context.Context, cycleNumber int64, done domain.CycleCompletion) error

	// CloseStale marks every active cycle numbered below before as completed
	// at endTime, leaving its payout fields untouched. Returns the number of
	// rows closed.
	CloseStale(ctx context.Context, before int64, endTime time.Time) (int64, error)

	// GetByNumber retrieves one cycle. Returns ErrNotFound if not exists.
	GetByNumber(ctx context.Context, cycleNumber int64) (*domain.Cycle, error)

	// GetRecentCompleted returns up to limit completed cycles, newest first.
	GetRecentCompleted(ctx context.Context, limit int) ([]*domain.Cycle, error)

	// CountWins returns how many completed cycles wallet led.
	CountWins(ctx context.Context, wallet string) (int64, error)

	// TotalEarnings returns the sum of extraction payouts to wallet whose
	// transfer landed.
	TotalEarnings(ctx context.Context, wallet string) (float64, error)

	// DeleteAll removes every cycle row.
	DeleteAll(ctx context.Context) error
}

// TradeStore provides access to the trades log.
type TradeStore interface {
	// Insert appends a trade. Returns ErrDuplicateKey if tx_signature exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByWallet returns up to limit trades of wallet, newest first.
	GetByWallet(ctx context.Context, wallet string, limit int) ([]*domain.Trade, error)

	// DeleteAll removes every trade row.
	DeleteAll(ctx context.Context) error
}

// TradeEventStore is the append-only log of raw stream events.
type TradeEventStore interface {
	// InsertBulk appends events. Events whose signature and side are already
	// stored are skipped.
	InsertBulk(ctx context.Context, events []*domain.TradeEvent) error

	// GetCycleVolume aggregates the events recorded for cycleNumber.
	GetCycleVolume(ctx context.Context, cycleNumber int64) (*domain.CycleVolume, error)
}
