package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the protocol.
type RPCClient interface {
	// GetBalance returns the lamport balance of an address.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetTokenLargestAccounts returns the largest token accounts of a mint.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenAccountOwner resolves a token account to its owning wallet.
	GetTokenAccountOwner(ctx context.Context, tokenAccount string) (string, error)

	// GetTokenAccountBalance returns the raw balance of a token account.
	GetTokenAccountBalance(ctx context.Context, tokenAccount string) (*TokenAmount, error)

	// GetAccountInfo retrieves account info. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetLatestBlockhash returns a recent blockhash for transaction building.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte, opts *SendOpts) (string, error)

	// GetSignatureStatuses returns statuses in request order; nil entries are unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
