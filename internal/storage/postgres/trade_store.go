package postgres

import (
	"context"
	"fmt"
	"time"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert appends a trade. Returns ErrDuplicateKey if tx_signature exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.TxSignature == "" || t.Wallet == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()

	err := s.pool.QueryRow(ctx, `
		INSERT INTO trades (round_id, wallet, sol_amount, token_amount, tx_signature, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.RoundID, t.Wallet, t.SolAmount, t.TokenAmount, t.TxSignature, t.Timestamp.UTC()).Scan(&t.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			observe("trade_insert", start, nil)
			return storage.ErrDuplicateKey
		}
		observe("trade_insert", start, err)
		return fmt.Errorf("insert trade: %w", err)
	}
	observe("trade_insert", start, nil)
	return nil
}

// GetByWallet returns up to limit trades of wallet, newest first.
func (s *TradeStore) GetByWallet(ctx context.Context, wallet string, limit int) (trades []*domain.Trade, err error) {
	defer func(start time.Time) { observe("trade_by_wallet", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, round_id, wallet, sol_amount, token_amount, tx_signature, timestamp
		FROM trades
		WHERE wallet = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("get trades by wallet: %w", err)
	}
	defer rows.Close()

	trades = make([]*domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.RoundID, &t.Wallet, &t.SolAmount, &t.TokenAmount, &t.TxSignature, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

// DeleteAll removes every trade row.
func (s *TradeStore) DeleteAll(ctx context.Context) (err error) {
	defer func(start time.Time) { observe("trade_delete_all", start, err) }(time.Now())

	if _, err = s.pool.Exec(ctx, `DELETE FROM trades`); err != nil {
		return fmt.Errorf("delete trades: %w", err)
	}
	return nil
}
