// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"boil-protocol/internal/solana"
)

// ErrNotFound is returned when an account is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Sent transactions confirm immediately unless FailSignatures marks them.
type RPCClient struct {
	mu sync.Mutex

	Balances      map[string]uint64
	LargestByMint map[string][]solana.TokenAccountBalance
	Owners        map[string]string
	TokenBalances map[string]uint64
	Accounts      map[string]*solana.AccountInfo
	Blockhash     string

	// Sent records every submitted transaction in order.
	Sent [][]byte
	// FailSignatures maps a signature to the on-chain error it reports.
	FailSignatures map[string]interface{}

	// Err, when set, is returned from every call.
	Err error
	// BalanceErr, when set, is returned from GetBalance only.
	BalanceErr error
	// SendErr, when set, is returned from SendTransaction only.
	SendErr error

	// OnSend runs after a transaction is recorded, under no lock.
	OnSend func(tx []byte)

	sigCounter int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:       make(map[string]uint64),
		LargestByMint:  make(map[string][]solana.TokenAccountBalance),
		Owners:         make(map[string]string),
		TokenBalances:  make(map[string]uint64),
		Accounts:       make(map[string]*solana.AccountInfo),
		FailSignatures: make(map[string]interface{}),
		Blockhash:      "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetBalance returns the stored lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[address], nil
}

// GetTokenLargestAccounts returns the stored accounts for mint.
func (c *RPCClient) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]solana.TokenAccountBalance, len(c.LargestByMint[mint]))
	copy(out, c.LargestByMint[mint])
	return out, nil
}

// GetTokenAccountOwner returns the stored owner of a token account.
func (c *RPCClient) GetTokenAccountOwner(_ context.Context, tokenAccount string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	owner, ok := c.Owners[tokenAccount]
	if !ok {
		return "", ErrNotFound
	}
	return owner, nil
}

// GetTokenAccountBalance returns the stored raw token balance.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, tokenAccount string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	amount, ok := c.TokenBalances[tokenAccount]
	if !ok {
		return nil, ErrNotFound
	}
	return &solana.TokenAmount{Amount: amount, Decimals: 6}, nil
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Accounts[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return &solana.Blockhash{Blockhash: c.Blockhash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction records tx and returns a sequential signature.
func (c *RPCClient) SendTransaction(_ context.Context, tx []byte, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	if c.Err != nil {
		c.mu.Unlock()
		return "", c.Err
	}
	if c.SendErr != nil {
		c.mu.Unlock()
		return "", c.SendErr
	}
	c.sigCounter++
	sig := fmt.Sprintf("sig%d", c.sigCounter)
	c.Sent = append(c.Sent, append([]byte(nil), tx...))
	onSend := c.OnSend
	c.mu.Unlock()

	if onSend != nil {
		onSend(tx)
	}
	return sig, nil
}

// GetSignatureStatuses reports every known signature as confirmed.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		st := &solana.SignatureStatus{Slot: 1, ConfirmationStatus: "confirmed"}
		if failure, ok := c.FailSignatures[sig]; ok {
			st.Err = failure
		}
		out[i] = st
	}
	return out, nil
}

// SetBalance sets a lamport balance.
func (c *RPCClient) SetBalance(address string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[address] = lamports
}

// AddTokenAccount registers a token account with its owner and balance,
// creating its account info so existence checks succeed.
func (c *RPCClient) AddTokenAccount(tokenAccount, owner string, amount uint64, tokenProgram string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Owners[tokenAccount] = owner
	c.TokenBalances[tokenAccount] = amount
	c.Accounts[tokenAccount] = &solana.AccountInfo{Owner: tokenProgram, Lamports: 2039280}
}

// SetTokenBalance updates a registered token account balance.
func (c *RPCClient) SetTokenBalance(tokenAccount string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[tokenAccount] = amount
}

// SetLargestAccounts sets the getTokenLargestAccounts result for mint.
func (c *RPCClient) SetLargestAccounts(mint string, accounts []solana.TokenAccountBalance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LargestByMint[mint] = accounts
}

// SentCount returns the number of submitted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}
