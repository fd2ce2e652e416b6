package tank

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/domain"
	"boil-protocol/internal/observability"
)

// BalanceReader reads the fee wallet's balance in lamports.
type BalanceReader interface {
	Balance(ctx context.Context) (uint64, error)
}

// Poller samples the fee wallet and keeps the cached tank current.
type Poller struct {
	wallet  BalanceReader
	state   *cache.State
	reserve float64
	logger  zerolog.Logger

	lastBalance float64
}

// NewPoller creates a Poller.
func NewPoller(wallet BalanceReader, state *cache.State, reserve float64, logger zerolog.Logger) *Poller {
	return &Poller{
		wallet:      wallet,
		state:       state,
		reserve:     reserve,
		logger:      logger.With().Str("component", "tank_poller").Logger(),
		lastBalance: -1,
	}
}

// Name identifies the poller in metrics and schedules.
func (p *Poller) Name() string { return "tank" }

// Start sets the baseline to the current balance when none is stored,
// so pre-existing funds are never counted as reward, then polls once.
func (p *Poller) Start(ctx context.Context) error {
	_, ok, err := p.state.BaselineBalance(ctx)
	if err != nil {
		return fmt.Errorf("read baseline: %w", err)
	}
	if !ok {
		balance, err := p.CurrentBalance(ctx)
		if err != nil {
			return fmt.Errorf("initial balance: %w", err)
		}
		if err := p.state.SetBaselineBalance(ctx, balance); err != nil {
			return err
		}
		p.logger.Info().Float64("baseline_sol", balance).Msg("initial baseline set")
	}
	return p.Poll(ctx)
}

// Poll reads the balance and writes the derived tank. On failure the
// previous cached tank stays in place. A missing baseline is set to the
// current balance and the tank to zero.
func (p *Poller) Poll(ctx context.Context) (err error) {
	defer func() { observability.RecordPollerRun(p.Name(), err) }()

	balance, err := p.CurrentBalance(ctx)
	if err != nil {
		return err
	}
	baseline, ok, err := p.state.BaselineBalance(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if err := p.state.SetBaselineBalance(ctx, balance); err != nil {
			return err
		}
		p.logger.Warn().Float64("baseline_sol", balance).Msg("baseline missing, set to current balance")
		baseline = balance
	}

	tank := Compute(balance, baseline, p.reserve)
	if err := p.state.SetTank(ctx, tank); err != nil {
		return err
	}
	observability.SetTank(tank)

	if math.Abs(balance-p.lastBalance) > 0.001 {
		p.logger.Debug().Float64("balance_sol", balance).Float64("tank_sol", tank).Msg("balance changed")
		p.lastBalance = balance
	}
	return nil
}

// ResetBaseline sets the baseline to the current balance and returns it.
func (p *Poller) ResetBaseline(ctx context.Context) (float64, error) {
	balance, err := p.CurrentBalance(ctx)
	if err != nil {
		return 0, err
	}
	if err := p.state.SetBaselineBalance(ctx, balance); err != nil {
		return 0, err
	}
	p.logger.Info().Float64("baseline_sol", balance).Msg("baseline reset")
	return balance, nil
}

// CurrentBalance returns the live wallet balance in SOL.
func (p *Poller) CurrentBalance(ctx context.Context) (float64, error) {
	lamports, err := p.wallet.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return domain.LamportsToSOL(lamports), nil
}
