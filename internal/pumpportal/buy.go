package pumpportal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"boil-protocol/internal/observability"
)

// ErrNoProviders is returned by a chain with no providers.
var ErrNoProviders = errors.New("no buy providers configured")

// BuyProvider builds an unsigned buy transaction spending solAmount SOL.
type BuyProvider interface {
	Name() string
	BuildBuy(ctx context.Context, buyer, mint string, solAmount float64) ([]byte, error)
}

// PumpFunProvider buys through the pump.fun trade API.
type PumpFunProvider struct {
	client *Client
}

// NewPumpFunProvider creates the pump.fun provider.
func NewPumpFunProvider(client *Client) *PumpFunProvider {
	return &PumpFunProvider{client: client}
}

func (p *PumpFunProvider) Name() string { return "pump.fun" }

// BuildBuy uses 25% slippage expressed as a fraction.
func (p *PumpFunProvider) BuildBuy(ctx context.Context, buyer, mint string, solAmount float64) ([]byte, error) {
	return p.client.PumpFunTrade(ctx, PumpFunTradeRequest{
		PublicKey:        buyer,
		Action:           "buy",
		Mint:             mint,
		Amount:           solAmount,
		DenominatedInSol: true,
		Slippage:         0.25,
		PriorityFee:      DefaultPriorityFee,
	})
}

// PortalProvider buys through PumpPortal trade-local.
type PortalProvider struct {
	client *Client
}

// NewPortalProvider creates the PumpPortal provider.
func NewPortalProvider(client *Client) *PortalProvider {
	return &PortalProvider{client: client}
}

func (p *PortalProvider) Name() string { return "pumpportal" }

// BuildBuy uses 25% slippage expressed in percent.
func (p *PortalProvider) BuildBuy(ctx context.Context, buyer, mint string, solAmount float64) ([]byte, error) {
	return p.client.TradeLocal(ctx, TradeLocalRequest{
		PublicKey:        buyer,
		Action:           "buy",
		Mint:             mint,
		Amount:           solAmount,
		DenominatedInSol: "true",
		Slippage:         25,
		PriorityFee:      DefaultPriorityFee,
		Pool:             PoolPump,
	})
}

// BuyChain tries providers in order until one yields a transaction, then
// signs and submits it. A send failure is final: the next provider is
// only consulted when the previous one could not build a transaction.
type BuyChain struct {
	providers []BuyProvider
	wallet    Sender
	logger    zerolog.Logger
}

// NewBuyChain creates a chain over providers.
func NewBuyChain(wallet Sender, logger zerolog.Logger, providers ...BuyProvider) *BuyChain {
	return &BuyChain{
		providers: providers,
		wallet:    wallet,
		logger:    logger.With().Str("component", "buy_chain").Logger(),
	}
}

// Buy spends solAmount SOL on mint and returns the confirmed signature.
func (b *BuyChain) Buy(ctx context.Context, mint string, solAmount float64) (string, error) {
	if len(b.providers) == 0 {
		return "", ErrNoProviders
	}

	var failures []string
	for _, p := range b.providers {
		tx, err := p.BuildBuy(ctx, b.wallet.Address(), mint, solAmount)
		if err != nil {
			b.logger.Warn().Err(err).Str("provider", p.Name()).Msg("buy provider failed")
			failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		sig, err := b.wallet.SignAndSend(ctx, tx)
		observability.RecordTx("buy", err)
		if err != nil {
			return sig, fmt.Errorf("%s buy: %w", p.Name(), err)
		}

		b.logger.Info().Str("provider", p.Name()).Str("signature", sig).Float64("sol", solAmount).Msg("buy confirmed")
		return sig, nil
	}

	return "", fmt.Errorf("all swap APIs failed: %s", strings.Join(failures, "; "))
}
