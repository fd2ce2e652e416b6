// Package holders keeps the cached ranking of the token's largest holders.
package holders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/domain"
	"boil-protocol/internal/observability"
	"boil-protocol/internal/solana"
)

// MaxCached is the number of holders kept in the snapshot.
const MaxCached = 50

// ChainReader is the subset of solana.RPCClient the poller needs.
type ChainReader interface {
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]solana.TokenAccountBalance, error)
	GetTokenAccountOwner(ctx context.Context, tokenAccount string) (string, error)
}

// Poller refreshes the holder snapshot from the chain.
type Poller struct {
	rpc      ChainReader
	state    *cache.State
	mint     string
	excluded map[string]struct{}
	logger   zerolog.Logger
	now      func() time.Time
}

// NewPoller creates a Poller for mint. The mint, well-known programs and
// the mint's bonding curve never rank as holders.
func NewPoller(rpc ChainReader, state *cache.State, mint string, logger zerolog.Logger) (*Poller, error) {
	curve, err := solana.BondingCurveAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}

	excluded := map[string]struct{}{
		solana.SystemProgramID:  {},
		solana.TokenProgramID:   {},
		solana.WrappedSOLMint:   {},
		solana.PumpFunProgramID: {},
		mint:                    {},
		curve:                   {},
	}

	return &Poller{
		rpc:      rpc,
		state:    state,
		mint:     mint,
		excluded: excluded,
		logger:   logger.With().Str("component", "holder_poller").Logger(),
		now:      time.Now,
	}, nil
}

// Name identifies the poller in metrics and schedules.
func (p *Poller) Name() string { return "holders" }

// Poll fetches and ranks holders. An empty result leaves the cache as is.
func (p *Poller) Poll(ctx context.Context) (err error) {
	defer func() { observability.RecordPollerRun(p.Name(), err) }()

	start := time.Now()
	holders, err := p.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		p.logger.Debug().Msg("no holders found")
		return nil
	}
	if len(holders) > MaxCached {
		holders = holders[:MaxCached]
	}

	if err := p.state.SetHolders(ctx, holders, p.now()); err != nil {
		return fmt.Errorf("cache holders: %w", err)
	}
	observability.SetHolderCount(len(holders))

	p.logger.Debug().
		Int("holders", len(holders)).
		Str("alpha", holders[0].Wallet).
		Float64("alpha_balance", holders[0].TokenBalance).
		Dur("elapsed", time.Since(start)).
		Msg("holders refreshed")
	return nil
}

// Fetch returns ranked holders without touching the cache. Accounts whose
// owner cannot be resolved are skipped. A wallet holding several accounts
// is counted once with the summed balance.
func (p *Poller) Fetch(ctx context.Context) ([]domain.Holder, error) {
	accounts, err := p.rpc.GetTokenLargestAccounts(ctx, p.mint)
	if err != nil {
		return nil, fmt.Errorf("get largest accounts: %w", err)
	}

	byOwner := make(map[string]float64, len(accounts))
	for _, acct := range accounts {
		if acct.Address == "" || acct.Amount == 0 {
			continue
		}

		owner, err := p.rpc.GetTokenAccountOwner(ctx, acct.Address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Debug().Err(err).Str("account", acct.Address).Msg("skip account: owner lookup failed")
			continue
		}
		if owner == "" {
			continue
		}
		if _, skip := p.excluded[owner]; skip {
			continue
		}
		byOwner[owner] += float64(acct.Amount)
	}

	holders := make([]domain.Holder, 0, len(byOwner))
	for owner, balance := range byOwner {
		holders = append(holders, domain.Holder{Wallet: owner, TokenBalance: balance})
	}
	sort.Slice(holders, func(i, j int) bool {
		if holders[i].TokenBalance != holders[j].TokenBalance {
			return holders[i].TokenBalance > holders[j].TokenBalance
		}
		return holders[i].Wallet < holders[j].Wallet
	})
	for i := range holders {
		holders[i].Rank = i + 1
	}
	return holders, nil
}
