package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boil-protocol/internal/domain"
)

func TestTradeEventStore_CycleVolume(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeEventStore(conn)
	ctx := context.Background()
	now := time.Now()

	events := []*domain.TradeEvent{
		{Signature: "a", Mint: "m", Wallet: "w1", Side: domain.TradeSideBuy, SolAmount: 1, CycleNumber: 3, Timestamp: now},
		{Signature: "b", Mint: "m", Wallet: "w2", Side: domain.TradeSideSell, SolAmount: 0.25, CycleNumber: 3, Timestamp: now},
		{Signature: "c", Mint: "m", Wallet: "w1", Side: domain.TradeSideBuy, SolAmount: 5, CycleNumber: 4, Timestamp: now},
	}
	require.NoError(t, store.InsertBulk(ctx, events))
	require.NoError(t, store.InsertBulk(ctx, events[:1]))

	v, err := store.GetCycleVolume(ctx, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v.BuyVolume, 1e-12)
	assert.InDelta(t, 0.25, v.SellVolume, 1e-12)
	assert.Equal(t, int64(2), v.Trades)
	assert.Equal(t, int64(2), v.Wallets)

	empty, err := store.GetCycleVolume(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, empty.Total())
}

func TestTradeEventStore_EmptyBatch(t *testing.T) {
	store := NewTradeEventStore(nil)
	assert.NoError(t, store.InsertBulk(context.Background(), nil))
}

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("clickhouse://user:pw@db.local/analytics")
	require.NoError(t, err)
	assert.Equal(t, []string{"db.local:9000"}, opts.Addr)
	assert.Equal(t, "user", opts.Auth.Username)
	assert.Equal(t, "pw", opts.Auth.Password)
	assert.Equal(t, "analytics", opts.Auth.Database)

	db, err := DatabaseFromDSN("clickhouse://localhost:9000/analytics")
	require.NoError(t, err)
	assert.Equal(t, "analytics", db)

	_, err = DatabaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
