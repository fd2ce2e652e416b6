package clickhouse

import (
	"context"
	"fmt"
	"time"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk appends events in one batch. Redelivered events share the
// ORDER BY key and collapse under ReplacingMergeTree; intra-batch
// duplicates are dropped here.
func (s *TradeEventStore) InsertBulk(ctx context.Context, events []*domain.TradeEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("trade_events_insert", start, err) }(time.Now())

	for _, e := range events {
		if e == nil || e.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	type key struct{ signature, side string }
	seen := make(map[key]struct{}, len(events))

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			signature, mint, wallet, side, sol_amount, token_amount, market_cap_sol, cycle_number, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		k := key{e.Signature, e.Side}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		err = batch.Append(
			e.Signature, e.Mint, e.Wallet, e.Side,
			e.SolAmount, e.TokenAmount, e.MarketCap,
			uint64(e.CycleNumber), uint64(e.Timestamp.UnixMilli()),
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

// GetCycleVolume aggregates the events recorded for cycleNumber.
func (s *TradeEventStore) GetCycleVolume(ctx context.Context, cycleNumber int64) (v *domain.CycleVolume, err error) {
	defer func(start time.Time) { observe("trade_events_volume", start, err) }(time.Now())

	row := s.conn.QueryRow(ctx, `
		SELECT
			sumIf(sol_amount, side = 'buy'),
			sumIf(sol_amount, side = 'sell'),
			count(),
			uniqExact(wallet)
		FROM trade_events FINAL
		WHERE cycle_number = ?
	`, uint64(cycleNumber))

	var buy, sell float64
	var trades, wallets uint64
	if err := row.Scan(&buy, &sell, &trades, &wallets); err != nil {
		return nil, fmt.Errorf("query cycle volume: %w", err)
	}

	return &domain.CycleVolume{
		CycleNumber: cycleNumber,
		BuyVolume:   buy,
		SellVolume:  sell,
		Trades:      int64(trades),
		Wallets:     int64(wallets),
	}, nil
}
