package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/observability"
)

// Key names shared with the deployed service.
const (
	KeyCycleStart      = "cycle:current:start_time"
	KeyCycleNumber     = "cycle:current:number"
	KeyTank            = "cycle:current:tank"
	KeyTankEstimate    = "cycle:current:tank_estimate"
	KeyBuyers          = "cycle:current:buyers"
	KeyBaseline        = "wallet:baseline_balance"
	KeyCycleVolume     = "moltdown:current_cycle_volume"
	KeyHoldersTop      = "holders:top50"
	KeyHoldersAlpha    = "holders:alpha"
	KeyHoldersCount    = "holders:count"
	KeyHoldersUpdateAt = "holders:last_update"
)

// MinWalletLength filters malformed members out of the buyer leaderboard.
const MinWalletLength = 32

// State is the typed view over Store used by every component.
type State struct {
	store Store
}

// NewState wraps store.
func NewState(store Store) *State {
	return &State{store: store}
}

// Store returns the underlying primitive store.
func (s *State) Store() Store {
	return s.store
}

func (s *State) getFloat(ctx context.Context, key string) (float64, bool, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNil) {
		return 0, false, nil
	}
	if err != nil {
		observability.RecordCacheError("get")
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, true, nil
}

func (s *State) getInt(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrNil) {
		return 0, false, nil
	}
	if err != nil {
		observability.RecordCacheError("get")
		return 0, false, fmt.Errorf("get %s: %w", key, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, true, nil
}

func (s *State) set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, value); err != nil {
		observability.RecordCacheError("set")
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *State) setFloat(ctx context.Context, key string, v float64) error {
	return s.set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64))
}

func (s *State) incrFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := s.store.IncrByFloat(ctx, key, delta)
	if err != nil {
		observability.RecordCacheError("incrbyfloat")
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return v, nil
}

// CycleStartTime returns the active cycle's start; ok is false when unset.
func (s *State) CycleStartTime(ctx context.Context) (time.Time, bool, error) {
	ms, ok, err := s.getInt(ctx, KeyCycleStart)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// SetCycleStartTime stores t in unix milliseconds.
func (s *State) SetCycleStartTime(ctx context.Context, t time.Time) error {
	return s.set(ctx, KeyCycleStart, strconv.FormatInt(t.UnixMilli(), 10))
}

// CycleNumber returns the active cycle number, 1 when unset.
func (s *State) CycleNumber(ctx context.Context) (int64, error) {
	n, ok, err := s.getInt(ctx, KeyCycleNumber)
	if err != nil {
		return 0, err
	}
	if !ok || n < 1 {
		return 1, nil
	}
	return n, nil
}

// SetCycleNumber overwrites the cycle number.
func (s *State) SetCycleNumber(ctx context.Context, n int64) error {
	return s.set(ctx, KeyCycleNumber, strconv.FormatInt(n, 10))
}

// IncrementCycleNumber advances the cycle number and returns the new value.
// Only the coordinator calls it.
func (s *State) IncrementCycleNumber(ctx context.Context) (int64, error) {
	n, err := s.CycleNumber(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.SetCycleNumber(ctx, n+1); err != nil {
		return 0, err
	}
	return n + 1, nil
}

// Tank returns the balance-derived tank written by the poller.
func (s *State) Tank(ctx context.Context) (float64, error) {
	v, _, err := s.getFloat(ctx, KeyTank)
	return v, err
}

// SetTank stores the balance-derived tank.
func (s *State) SetTank(ctx context.Context, sol float64) error {
	return s.setFloat(ctx, KeyTank, sol)
}

// TankEstimate returns the volume-derived running estimate.
func (s *State) TankEstimate(ctx context.Context) (float64, error) {
	v, _, err := s.getFloat(ctx, KeyTankEstimate)
	return v, err
}

// AddTankEstimate adds delta SOL to the running estimate.
func (s *State) AddTankEstimate(ctx context.Context, delta float64) (float64, error) {
	return s.incrFloat(ctx, KeyTankEstimate, delta)
}

// BaselineBalance returns the baseline; ok is false when never set.
func (s *State) BaselineBalance(ctx context.Context) (float64, bool, error) {
	return s.getFloat(ctx, KeyBaseline)
}

// SetBaselineBalance stores the baseline in SOL.
func (s *State) SetBaselineBalance(ctx context.Context, sol float64) error {
	return s.setFloat(ctx, KeyBaseline, sol)
}

// CycleVolume returns the traded SOL volume of the active cycle.
func (s *State) CycleVolume(ctx context.Context) (float64, error) {
	v, _, err := s.getFloat(ctx, KeyCycleVolume)
	return v, err
}

// AddCycleVolume adds delta SOL to the cycle volume.
func (s *State) AddCycleVolume(ctx context.Context, delta float64) (float64, error) {
	return s.incrFloat(ctx, KeyCycleVolume, delta)
}

// AddBuyerAmount credits wallet with sol bought in the active cycle.
func (s *State) AddBuyerAmount(ctx context.Context, wallet string, sol float64) error {
	if _, err := s.store.ZIncrBy(ctx, KeyBuyers, wallet, sol); err != nil {
		observability.RecordCacheError("zincrby")
		return fmt.Errorf("add buyer %s: %w", wallet, err)
	}
	return nil
}

// TopBuyers returns up to limit buyers by descending volume. Members
// shorter than a wallet address are skipped and ranks stay dense.
func (s *State) TopBuyers(ctx context.Context, limit int) ([]domain.BuyerEntry, error) {
	if limit <= 0 {
		return []domain.BuyerEntry{}, nil
	}
	members, err := s.store.ZRevRangeWithScores(ctx, KeyBuyers, 0, int64(limit-1))
	if err != nil {
		observability.RecordCacheError("zrevrange")
		return nil, fmt.Errorf("top buyers: %w", err)
	}

	out := make([]domain.BuyerEntry, 0, len(members))
	for _, m := range members {
		if len(m.Member) < MinWalletLength {
			continue
		}
		out = append(out, domain.BuyerEntry{Rank: len(out) + 1, Wallet: m.Member, TotalBought: m.Score})
	}
	return out, nil
}

// BuyerPosition returns wallet's 1-based rank and total; rank is 0 when
// the wallet has not bought this cycle.
func (s *State) BuyerPosition(ctx context.Context, wallet string) (int64, float64, error) {
	total, err := s.store.ZScore(ctx, KeyBuyers, wallet)
	if errors.Is(err, ErrNil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("buyer score: %w", err)
	}
	rank, err := s.store.ZRevRank(ctx, KeyBuyers, wallet)
	if errors.Is(err, ErrNil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("buyer rank: %w", err)
	}
	return rank + 1, total, nil
}

// BuyerCount returns the number of wallets that bought this cycle.
func (s *State) BuyerCount(ctx context.Context) (int64, error) {
	return s.store.ZCard(ctx, KeyBuyers)
}

// SetHolders replaces the holder snapshot. An empty list is ignored so a
// failed fetch never erases good data.
func (s *State) SetHolders(ctx context.Context, holders []domain.Holder, at time.Time) error {
	if len(holders) == 0 {
		return nil
	}

	list, err := json.Marshal(holders)
	if err != nil {
		return fmt.Errorf("marshal holders: %w", err)
	}
	alpha, err := json.Marshal(holders[0])
	if err != nil {
		return fmt.Errorf("marshal alpha: %w", err)
	}

	if err := s.set(ctx, KeyHoldersTop, string(list)); err != nil {
		return err
	}
	if err := s.set(ctx, KeyHoldersAlpha, string(alpha)); err != nil {
		return err
	}
	if err := s.set(ctx, KeyHoldersUpdateAt, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return err
	}
	return s.set(ctx, KeyHoldersCount, strconv.Itoa(len(holders)))
}

// Holders returns up to limit cached holders; limit <= 0 returns all.
func (s *State) Holders(ctx context.Context, limit int) ([]domain.Holder, error) {
	v, err := s.store.Get(ctx, KeyHoldersTop)
	if errors.Is(err, ErrNil) {
		return []domain.Holder{}, nil
	}
	if err != nil {
		observability.RecordCacheError("get")
		return nil, fmt.Errorf("get holders: %w", err)
	}

	var holders []domain.Holder
	if err := json.Unmarshal([]byte(v), &holders); err != nil {
		return nil, fmt.Errorf("parse holders: %w", err)
	}
	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

// Alpha returns the cached rank-1 holder or nil when none is cached.
func (s *State) Alpha(ctx context.Context) (*domain.Holder, error) {
	v, err := s.store.Get(ctx, KeyHoldersAlpha)
	if errors.Is(err, ErrNil) {
		return nil, nil
	}
	if err != nil {
		observability.RecordCacheError("get")
		return nil, fmt.Errorf("get alpha: %w", err)
	}

	var h domain.Holder
	if err := json.Unmarshal([]byte(v), &h); err != nil {
		return nil, fmt.Errorf("parse alpha: %w", err)
	}
	if h.Wallet == "" {
		return nil, nil
	}
	h.Rank = 1
	return &h, nil
}

// HolderCount returns the size of the cached snapshot.
func (s *State) HolderCount(ctx context.Context) (int, error) {
	n, _, err := s.getInt(ctx, KeyHoldersCount)
	return int(n), err
}

// HoldersLastUpdate returns when the snapshot was last replaced; zero when never.
func (s *State) HoldersLastUpdate(ctx context.Context) (time.Time, error) {
	ms, ok, err := s.getInt(ctx, KeyHoldersUpdateAt)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// ResetCycleData clears the per-cycle accumulators at a cycle boundary.
// The holder snapshot and baseline are left alone.
func (s *State) ResetCycleData(ctx context.Context) error {
	if err := s.store.Del(ctx, KeyBuyers, KeyTankEstimate); err != nil {
		observability.RecordCacheError("del")
		return fmt.Errorf("reset cycle data: %w", err)
	}
	if err := s.set(ctx, KeyTank, "0"); err != nil {
		return err
	}
	return s.set(ctx, KeyCycleVolume, "0")
}

// ResetAll clears cycle data and restarts numbering at 1 with no start time.
func (s *State) ResetAll(ctx context.Context) error {
	if err := s.ResetCycleData(ctx); err != nil {
		return err
	}
	if err := s.store.Del(ctx, KeyCycleStart); err != nil {
		return fmt.Errorf("clear start time: %w", err)
	}
	return s.SetCycleNumber(ctx, 1)
}
