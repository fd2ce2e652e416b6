// Package trades consumes the live trade stream and folds it into
// per-cycle cache state and the trade logs.
package trades

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/domain"
	"boil-protocol/internal/observability"
	"boil-protocol/internal/pumpportal"
	"boil-protocol/internal/storage"
)

// Defaults for Config.
const (
	DefaultFlushInterval = 2 * time.Second
	// DefaultCreatorFeeRate is the creator's share of traded volume.
	DefaultCreatorFeeRate = 0.005
)

// Source delivers stream messages until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, out chan<- pumpportal.TradeMessage) error
}

// Config configures the Tracker.
type Config struct {
	Mint           string
	FlushInterval  time.Duration
	CreatorFeeRate float64
}

// Tracker batches stream trades and flushes them on an interval.
type Tracker struct {
	cfg    Config
	source Source
	state  *cache.State
	trades storage.TradeStore      // optional
	events storage.TradeEventStore // optional
	logger zerolog.Logger

	mu          sync.Mutex
	pendingBuys map[string]float64
	pendingSell float64
	buys        []domain.Trade
	raw         []*domain.TradeEvent
}

// NewTracker creates a Tracker. trades and events may be nil.
func NewTracker(cfg Config, source Source, state *cache.State, trades storage.TradeStore, events storage.TradeEventStore, logger zerolog.Logger) *Tracker {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.CreatorFeeRate <= 0 {
		cfg.CreatorFeeRate = DefaultCreatorFeeRate
	}
	return &Tracker{
		cfg:         cfg,
		source:      source,
		state:       state,
		trades:      trades,
		events:      events,
		logger:      logger.With().Str("component", "trade_tracker").Logger(),
		pendingBuys: make(map[string]float64),
	}
}

// Run consumes the source and flushes every FlushInterval until ctx is
// cancelled, then flushes what is left. A source that gives up ends Run
// with its error after the final flush.
func (t *Tracker) Run(ctx context.Context) error {
	msgs := make(chan pumpportal.TradeMessage, 256)
	srcErr := make(chan error, 1)
	go func() { srcErr <- t.source.Run(ctx, msgs) }()

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg := <-msgs:
			t.Handle(msg)
		case <-ticker.C:
			t.Flush(ctx)
		case err := <-srcErr:
			if err != nil {
				t.logger.Error().Err(err).Msg("trade stream stopped")
				runErr = err
			}
			break loop
		}
	}

	// Drain what the source already delivered.
	for drained := false; !drained; {
		select {
		case msg := <-msgs:
			t.Handle(msg)
		default:
			drained = true
		}
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	t.Flush(flushCtx)
	return runErr
}

// Handle queues one stream message. Messages for other mints or without
// a trade type are ignored.
func (t *Tracker) Handle(msg pumpportal.TradeMessage) {
	if msg.Mint != t.cfg.Mint || msg.TxType == "" || msg.TraderPublicKey == "" {
		return
	}

	sol := msg.SolAmount / domain.LamportsPerSOL
	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}

	event := &domain.TradeEvent{
		Signature:   msg.Signature,
		Mint:        msg.Mint,
		Wallet:      msg.TraderPublicKey,
		Side:        msg.TxType,
		SolAmount:   sol,
		TokenAmount: msg.TokenAmount,
		MarketCap:   msg.MarketCapSol,
		Timestamp:   ts,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch msg.TxType {
	case domain.TradeSideBuy:
		t.pendingBuys[msg.TraderPublicKey] += sol
		t.buys = append(t.buys, domain.Trade{
			Wallet:      msg.TraderPublicKey,
			SolAmount:   sol,
			TokenAmount: msg.TokenAmount,
			TxSignature: msg.Signature,
			Timestamp:   ts,
		})
	case domain.TradeSideSell:
		t.pendingSell += sol
	default:
		return
	}
	if msg.Signature != "" {
		t.raw = append(t.raw, event)
	}
	observability.RecordTrade(msg.TxType)
	t.logger.Debug().Str("wallet", msg.TraderPublicKey).Str("side", msg.TxType).Float64("sol", sol).Msg("trade queued")
}

// FlushResult summarizes one flush.
type FlushResult struct {
	Wallets     int
	BuyVolume   float64
	SellVolume  float64
	TankAdded   float64
	Requeued    int
	TradesSaved int
}

// Flush writes the pending batch. Buyer credits that fail are re-queued
// for the next flush; trade log failures are logged and dropped.
func (t *Tracker) Flush(ctx context.Context) FlushResult {
	t.mu.Lock()
	buys := t.pendingBuys
	sell := t.pendingSell
	logged := t.buys
	raw := t.raw
	t.pendingBuys = make(map[string]float64)
	t.pendingSell = 0
	t.buys = nil
	t.raw = nil
	t.mu.Unlock()

	var res FlushResult
	if len(buys) == 0 && sell == 0 && len(logged) == 0 && len(raw) == 0 {
		return res
	}

	for wallet, amount := range buys {
		if err := t.state.AddBuyerAmount(ctx, wallet, amount); err != nil {
			t.logger.Warn().Err(err).Str("wallet", wallet).Msg("buyer credit failed, requeued")
			t.requeue(wallet, amount)
			res.Requeued++
			continue
		}
		res.Wallets++
		res.BuyVolume += amount
	}
	res.SellVolume = sell

	if total := res.BuyVolume + res.SellVolume; total > 0 {
		if _, err := t.state.AddCycleVolume(ctx, total); err != nil {
			t.logger.Warn().Err(err).Msg("add cycle volume failed")
		}
		res.TankAdded = total * t.cfg.CreatorFeeRate
		if _, err := t.state.AddTankEstimate(ctx, res.TankAdded); err != nil {
			t.logger.Warn().Err(err).Msg("add tank estimate failed")
		}
	}

	cycle, err := t.state.CycleNumber(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("read cycle number for trade log")
		cycle = 1
	}
	res.TradesSaved = t.persist(ctx, cycle, logged, raw)

	if res.Wallets > 0 || res.SellVolume > 0 {
		t.logger.Info().
			Int("wallets", res.Wallets).
			Float64("buy_sol", res.BuyVolume).
			Float64("sell_sol", res.SellVolume).
			Float64("tank_added_sol", res.TankAdded).
			Msg("trade batch flushed")
	}
	return res
}

func (t *Tracker) requeue(wallet string, amount float64) {
	t.mu.Lock()
	t.pendingBuys[wallet] += amount
	t.mu.Unlock()
}

func (t *Tracker) persist(ctx context.Context, cycle int64, buys []domain.Trade, raw []*domain.TradeEvent) int {
	saved := 0
	if t.trades != nil {
		for i := range buys {
			b := buys[i]
			if b.TxSignature == "" {
				continue
			}
			b.RoundID = cycle
			err := t.trades.Insert(ctx, &b)
			switch {
			case err == nil:
				saved++
			case errors.Is(err, storage.ErrDuplicateKey):
			default:
				t.logger.Warn().Err(err).Str("signature", b.TxSignature).Msg("record trade failed")
			}
		}
	}

	if t.events != nil && len(raw) > 0 {
		for _, e := range raw {
			e.CycleNumber = cycle
		}
		if err := t.events.InsertBulk(ctx, raw); err != nil {
			t.logger.Warn().Err(err).Int("events", len(raw)).Msg("append trade events failed")
		}
	}
	return saved
}
