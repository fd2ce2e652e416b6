package pumpportal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"boil-protocol/internal/observability"
)

// FeeClaimer collects accrued creator fees for a mint.
type FeeClaimer struct {
	client *Client
	wallet Sender
	mint   string
	logger zerolog.Logger
}

// NewFeeClaimer creates a claimer that signs with wallet.
func NewFeeClaimer(client *Client, wallet Sender, mint string, logger zerolog.Logger) *FeeClaimer {
	return &FeeClaimer{
		client: client,
		wallet: wallet,
		mint:   mint,
		logger: logger.With().Str("component", "fee_claimer").Logger(),
	}
}

// Claim builds, signs and confirms a collectCreatorFee transaction.
// The signature is returned alongside an on-chain failure when one occurs.
func (f *FeeClaimer) Claim(ctx context.Context) (string, error) {
	f.logger.Info().Str("wallet", f.wallet.Address()).Str("mint", f.mint).Msg("claiming creator fees")

	tx, err := f.client.TradeLocal(ctx, TradeLocalRequest{
		PublicKey:   f.wallet.Address(),
		Action:      "collectCreatorFee",
		Mint:        f.mint,
		PriorityFee: ClaimPriorityFee,
		Pool:        PoolPump,
	})
	if err != nil {
		observability.RecordTx("claim", err)
		return "", fmt.Errorf("build claim: %w", err)
	}

	sig, err := f.wallet.SignAndSend(ctx, tx)
	observability.RecordTx("claim", err)
	if err != nil {
		return sig, fmt.Errorf("submit claim: %w", err)
	}

	f.logger.Info().Str("signature", sig).Msg("creator fees claimed")
	return sig, nil
}
