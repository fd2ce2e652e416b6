package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

func strptr(s string) *string { return &s }

func TestCycleStore_CreateAndComplete(t *testing.T) {
	store := NewCycleStore()
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	c, err := store.Create(ctx, 1, start)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Status != domain.CycleStatusActive {
		t.Errorf("Status = %q, want active", c.Status)
	}

	err = store.Complete(ctx, 1, domain.CycleCompletion{
		EndTime:         start.Add(time.Minute),
		AlphaWallet:     strptr("alpha"),
		TotalTankSOL:    0.495,
		AlphaExtraction: 0.3465,
		ShatterAmount:   0.1485,
		Participants:    3,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := store.GetByNumber(ctx, 1)
	if err != nil {
		t.Fatalf("GetByNumber failed: %v", err)
	}
	if got.Status != domain.CycleStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.EndTime == nil || got.EndTime.Before(got.StartTime) {
		t.Errorf("EndTime = %v, want >= start", got.EndTime)
	}
	if got.Participants != 3 {
		t.Errorf("Participants = %d, want 3", got.Participants)
	}
}

func TestCycleStore_DuplicateKey(t *testing.T) {
	store := NewCycleStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, 5, time.Now()); err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	_, err := store.Create(ctx, 5, time.Now())
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCycleStore_CompleteMissing(t *testing.T) {
	store := NewCycleStore()
	err := store.Complete(context.Background(), 9, domain.CycleCompletion{EndTime: time.Now()})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCycleStore_RecentAndWallets(t *testing.T) {
	store := NewCycleStore()
	ctx := context.Background()
	now := time.Now()

	for n := int64(1); n <= 4; n++ {
		if _, err := store.Create(ctx, n, now); err != nil {
			t.Fatalf("Create %d failed: %v", n, err)
		}
	}
	// Cycle 4 stays active.
	winners := map[int64]*string{1: strptr("w1"), 2: strptr("w2"), 3: strptr("w1")}
	for n, w := range winners {
		done := domain.CycleCompletion{EndTime: now, AlphaWallet: w, AlphaExtraction: float64(n)}
		if n != 3 {
			done.TxAlpha = strptr("sig")
		}
		err := store.Complete(ctx, n, done)
		if err != nil {
			t.Fatalf("Complete %d failed: %v", n, err)
		}
	}

	recent, err := store.GetRecentCompleted(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecentCompleted failed: %v", err)
	}
	if len(recent) != 2 || recent[0].CycleNumber != 3 || recent[1].CycleNumber != 2 {
		t.Fatalf("unexpected recent cycles: %+v", recent)
	}

	wins, _ := store.CountWins(ctx, "w1")
	if wins != 2 {
		t.Errorf("CountWins = %d, want 2", wins)
	}
	// Cycle 3's transfer never landed.
	earned, _ := store.TotalEarnings(ctx, "w1")
	if earned != 1 {
		t.Errorf("TotalEarnings = %f, want 1", earned)
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if _, err := store.GetByNumber(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after DeleteAll, got %v", err)
	}
}

func TestCycleStore_CloseStale(t *testing.T) {
	store := NewCycleStore()
	ctx := context.Background()
	now := time.Now()

	for n := int64(1); n <= 3; n++ {
		if _, err := store.Create(ctx, n, now); err != nil {
			t.Fatalf("Create %d failed: %v", n, err)
		}
	}
	if err := store.Complete(ctx, 1, domain.CycleCompletion{EndTime: now, TotalTankSOL: 0.5}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	closed, err := store.CloseStale(ctx, 3, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CloseStale failed: %v", err)
	}
	if closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}

	two, _ := store.GetByNumber(ctx, 2)
	if two.Status != domain.CycleStatusCompleted || two.EndTime == nil {
		t.Errorf("cycle 2 = %+v, want completed with end time", two)
	}
	one, _ := store.GetByNumber(ctx, 1)
	if one.TotalTankSOL != 0.5 || !one.EndTime.Equal(now) {
		t.Errorf("cycle 1 was rewritten: %+v", one)
	}
	three, _ := store.GetByNumber(ctx, 3)
	if three.Status != domain.CycleStatusActive {
		t.Errorf("cycle 3 status = %q, want active", three.Status)
	}

	closed, _ = store.CloseStale(ctx, 3, now)
	if closed != 0 {
		t.Errorf("second CloseStale closed %d, want 0", closed)
	}
}
