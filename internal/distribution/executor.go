// Package distribution pays out a resolved cycle: the extraction transfer
// to the leader and the shell shatter buy-and-burn.
package distribution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/observability"
	"boil-protocol/internal/solana"
)

// Defaults for Config.
const (
	DefaultDust        = 0.001
	DefaultSettleDelay = 3 * time.Second
)

// Payout kinds used in metrics.
const (
	KindExtraction = "extraction"
	KindShatter    = "shatter"
)

// Treasury is the fee wallet the payouts are drawn from.
type Treasury interface {
	TransferSOL(ctx context.Context, to string, lamports uint64) (string, error)
	TokenBalance(ctx context.Context, mint string) (uint64, string, error)
	Burn(ctx context.Context, mint string, amount uint64, tokenProgram string) (string, error)
}

// Buyer acquires tokens for SOL and returns the confirmed signature.
type Buyer interface {
	Buy(ctx context.Context, mint string, solAmount float64) (string, error)
}

// Config configures the Executor.
type Config struct {
	Mint        string
	Dust        float64       // payouts at or below this are skipped
	SettleDelay time.Duration // wait between buy and balance re-read
}

// Request is one cycle's payout.
type Request struct {
	Leader     string
	Extraction float64
	Shatter    float64
}

// Result reports which payouts landed.
type Result struct {
	TxAlpha   *string
	TxShatter *string
	// TokensBurned is zero when the burn step was skipped or failed.
	TokensBurned uint64
	Errors       []string
}

// Executor runs both payout paths independently.
type Executor struct {
	cfg      Config
	treasury Treasury
	buyer    Buyer
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, treasury Treasury, buyer Buyer, logger zerolog.Logger) *Executor {
	if cfg.Dust <= 0 {
		cfg.Dust = DefaultDust
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Executor{
		cfg:      cfg,
		treasury: treasury,
		buyer:    buyer,
		logger:   logger.With().Str("component", "distribution").Logger(),
		sleep:    sleepCtx,
	}
}

// Distribute pays the extraction and runs the shatter. A failure on one
// path is recorded in Result.Errors and never stops the other.
func (e *Executor) Distribute(ctx context.Context, req Request) Result {
	var res Result

	if req.Extraction > e.cfg.Dust {
		sig, err := e.extract(ctx, req.Leader, req.Extraction)
		observability.RecordTx(KindExtraction, err)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("extraction to %s failed: %v", req.Leader, err))
			e.logger.Error().Err(err).Str("leader", req.Leader).Float64("sol", req.Extraction).Msg("extraction failed")
		} else {
			res.TxAlpha = &sig
			observability.RecordDistributed(KindExtraction, req.Extraction)
			e.logger.Info().Str("leader", req.Leader).Float64("sol", req.Extraction).Str("tx", sig).Msg("extraction paid")
		}
	}

	if req.Shatter > e.cfg.Dust {
		sig, burned, err := e.shatter(ctx, req.Shatter)
		observability.RecordTx(KindShatter, err)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("shell shatter failed: %v", err))
			e.logger.Error().Err(err).Float64("sol", req.Shatter).Msg("shell shatter failed")
		}
		if sig != "" {
			res.TxShatter = &sig
			res.TokensBurned = burned
			observability.RecordDistributed(KindShatter, req.Shatter)
		}
	}

	if len(res.Errors) > 0 {
		e.logger.Warn().Int("errors", len(res.Errors)).Msg("distribution completed with errors")
	}
	return res
}

func (e *Executor) extract(ctx context.Context, leader string, sol float64) (string, error) {
	if err := solana.ValidateAddress(leader); err != nil {
		return "", err
	}
	return e.treasury.TransferSOL(ctx, leader, domain.SOLToLamports(sol))
}

// shatter buys with sol and burns what arrived. If the burn fails after a
// successful buy, the buy signature is returned with a nil error since the
// tokens are already off the market.
func (e *Executor) shatter(ctx context.Context, sol float64) (string, uint64, error) {
	before, _, err := e.treasury.TokenBalance(ctx, e.cfg.Mint)
	if err != nil {
		return "", 0, fmt.Errorf("token balance before buy: %w", err)
	}

	buySig, err := e.buyer.Buy(ctx, e.cfg.Mint, sol)
	if err != nil {
		return "", 0, fmt.Errorf("buy: %w", err)
	}
	e.logger.Info().Str("tx", buySig).Float64("sol", sol).Msg("shatter buy confirmed")

	if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
		return buySig, 0, nil
	}

	after, program, err := e.treasury.TokenBalance(ctx, e.cfg.Mint)
	if err != nil {
		e.logger.Warn().Err(err).Str("buy_tx", buySig).Msg("token balance after buy failed, burn skipped")
		return buySig, 0, nil
	}
	if after <= before {
		e.logger.Warn().Uint64("before", before).Uint64("after", after).Msg("no tokens acquired, burn skipped")
		return buySig, 0, nil
	}
	delta := after - before

	burnSig, err := e.burn(ctx, delta, program)
	if err != nil {
		e.logger.Warn().Err(err).Str("buy_tx", buySig).Uint64("tokens", delta).Msg("burn failed, keeping buy signature")
		return buySig, 0, nil
	}
	e.logger.Info().Str("tx", burnSig).Uint64("tokens", delta).Msg("tokens burned")
	return burnSig, delta, nil
}

// burn tries the program holding the balance first, then the remaining variants.
func (e *Executor) burn(ctx context.Context, amount uint64, held string) (string, error) {
	programs := make([]string, 0, len(solana.TokenPrograms))
	if held != "" {
		programs = append(programs, held)
	}
	for _, p := range solana.TokenPrograms {
		if p != held {
			programs = append(programs, p)
		}
	}

	var lastErr error
	for _, program := range programs {
		sig, err := e.treasury.Burn(ctx, e.cfg.Mint, amount, program)
		if err == nil {
			return sig, nil
		}
		e.logger.Debug().Err(err).Str("program", program).Msg("burn attempt failed")
		lastErr = err
	}
	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
