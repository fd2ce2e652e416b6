package memory

import (
	"context"
	"testing"

	"boil-protocol/internal/domain"
)

func TestTradeEventStore_CycleVolume(t *testing.T) {
	store := NewTradeEventStore()
	ctx := context.Background()

	events := []*domain.TradeEvent{
		{Signature: "a", Wallet: "w1", Side: domain.TradeSideBuy, SolAmount: 1, CycleNumber: 1},
		{Signature: "b", Wallet: "w2", Side: domain.TradeSideSell, SolAmount: 0.5, CycleNumber: 1},
		{Signature: "c", Wallet: "w1", Side: domain.TradeSideBuy, SolAmount: 2, CycleNumber: 2},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	// Re-delivered events are skipped.
	if err := store.InsertBulk(ctx, events[:1]); err != nil {
		t.Fatalf("InsertBulk (replay) failed: %v", err)
	}

	v, err := store.GetCycleVolume(ctx, 1)
	if err != nil {
		t.Fatalf("GetCycleVolume failed: %v", err)
	}
	if v.BuyVolume != 1 || v.SellVolume != 0.5 {
		t.Errorf("volume = %+v", v)
	}
	if v.Trades != 2 || v.Wallets != 2 {
		t.Errorf("trades=%d wallets=%d, want 2/2", v.Trades, v.Wallets)
	}
	if v.Total() != 1.5 {
		t.Errorf("Total = %f, want 1.5", v.Total())
	}
}
