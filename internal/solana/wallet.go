package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Wallet defaults.
const (
	DefaultConfirmTimeout = 60 * time.Second
	DefaultConfirmPoll    = 2 * time.Second
	DefaultSendRetries    = 3
)

var (
	// ErrConfirmTimeout is returned when a signature does not confirm in time.
	ErrConfirmTimeout = errors.New("confirmation timeout")
	// ErrNoTokenAccount is returned when the wallet holds no account for a mint.
	ErrNoTokenAccount = errors.New("token account not found")
)

// TokenPrograms lists the token programs checked for a mint, in order.
var TokenPrograms = []string{Token2022ProgramID, TokenProgramID}

// TxError wraps an on-chain execution failure.
type TxError struct {
	Signature string
	Err       interface{}
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// Wallet signs and submits transactions for one keypair.
type Wallet struct {
	rpc            RPCClient
	key            *Keypair
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	logger         zerolog.Logger
}

// WalletOption configures Wallet.
type WalletOption func(*Wallet)

// WithConfirmTimeout sets how long Confirm waits.
func WithConfirmTimeout(d time.Duration) WalletOption {
	return func(w *Wallet) {
		w.confirmTimeout = d
	}
}

// WithConfirmPoll sets the status polling interval.
func WithConfirmPoll(d time.Duration) WalletOption {
	return func(w *Wallet) {
		w.confirmPoll = d
	}
}

// NewWallet creates a wallet over rpc.
func NewWallet(rpc RPCClient, key *Keypair, logger zerolog.Logger, opts ...WalletOption) *Wallet {
	w := &Wallet{
		rpc:            rpc,
		key:            key,
		confirmTimeout: DefaultConfirmTimeout,
		confirmPoll:    DefaultConfirmPoll,
		logger:         logger.With().Str("component", "wallet").Str("address", key.Address()).Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Address returns the wallet's public key.
func (w *Wallet) Address() string {
	return w.key.Address()
}

// Keypair returns the signing key.
func (w *Wallet) Keypair() *Keypair {
	return w.key
}

// Balance returns the wallet's lamport balance.
func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	return w.rpc.GetBalance(ctx, w.Address())
}

// TransferSOL sends lamports to a recipient and waits for confirmation.
func (w *Wallet) TransferSOL(ctx context.Context, to string, lamports uint64) (string, error) {
	if _, err := DecodeAddress(to); err != nil {
		return "", fmt.Errorf("recipient: %w", err)
	}
	ix := TransferInstruction(w.Address(), to, lamports)
	return w.sendInstructions(ctx, ix)
}

// TokenBalance returns the raw balance the wallet holds of mint along with
// the token program owning its account. A wallet with no account under
// any program reports zero and an empty program.
func (w *Wallet) TokenBalance(ctx context.Context, mint string) (uint64, string, error) {
	var lastErr error
	for _, program := range TokenPrograms {
		ata, err := AssociatedTokenAddress(w.Address(), mint, program)
		if err != nil {
			return 0, "", err
		}

		info, err := w.rpc.GetAccountInfo(ctx, ata)
		if err != nil {
			lastErr = err
			continue
		}
		if info == nil {
			continue
		}

		bal, err := w.rpc.GetTokenAccountBalance(ctx, ata)
		if err != nil {
			lastErr = err
			continue
		}
		return bal.Amount, program, nil
	}

	if lastErr != nil {
		return 0, "", lastErr
	}
	return 0, "", nil
}

// Burn burns amount raw tokens of mint from the wallet's associated
// account under tokenProgram.
func (w *Wallet) Burn(ctx context.Context, mint string, amount uint64, tokenProgram string) (string, error) {
	ata, err := AssociatedTokenAddress(w.Address(), mint, tokenProgram)
	if err != nil {
		return "", err
	}

	info, err := w.rpc.GetAccountInfo(ctx, ata)
	if err != nil {
		return "", fmt.Errorf("lookup token account: %w", err)
	}
	if info == nil {
		return "", fmt.Errorf("%w: %s", ErrNoTokenAccount, ata)
	}

	ix := BurnInstruction(ata, mint, w.Address(), amount, tokenProgram)
	return w.sendInstructions(ctx, ix)
}

// SignAndSend signs a serialized transaction built by a third party,
// submits it and waits for confirmation.
func (w *Wallet) SignAndSend(ctx context.Context, unsigned []byte) (string, error) {
	signed, err := SignVersioned(unsigned, w.key)
	if err != nil {
		return "", err
	}
	return w.send(ctx, signed)
}

// Confirm polls signature status until it reaches confirmed commitment,
// fails on chain or the confirmation timeout elapses.
func (w *Wallet) Confirm(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, w.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(w.confirmPoll)
	defer ticker.Stop()

	for {
		statuses, err := w.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			w.logger.Debug().Err(err).Str("signature", signature).Msg("status poll failed")
		} else if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return &TxError{Signature: signature, Err: st.Err}
			}
			if st.Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmTimeout, signature)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Wallet) sendInstructions(ctx context.Context, ixs ...Instruction) (string, error) {
	bh, err := w.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := BuildSignedTransaction(w.key, ixs, bh.Blockhash)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	return w.send(ctx, tx)
}

func (w *Wallet) send(ctx context.Context, tx []byte) (string, error) {
	sig, err := w.rpc.SendTransaction(ctx, tx, &SendOpts{SkipPreflight: true, MaxRetries: DefaultSendRetries})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	w.logger.Debug().Str("signature", sig).Msg("transaction sent")

	if err := w.Confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}
