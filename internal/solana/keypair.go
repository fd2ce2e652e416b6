package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrEmptySecret is returned when no secret key material is supplied.
var ErrEmptySecret = errors.New("empty secret key")

// Keypair is an ed25519 signing key with its base58 address.
type Keypair struct {
	private ed25519.PrivateKey
	address string
}

// ParseKeypair parses a secret key as base58 (64-byte secret or 32-byte
// seed) or as a JSON byte array in the solana-keygen file format.
func ParseKeypair(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptySecret
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		if err := json.Unmarshal([]byte(secret), &raw); err != nil {
			return nil, fmt.Errorf("parse keypair array: %w", err)
		}
	} else {
		decoded, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("decode keypair: %w", err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		return NewKeypair(ed25519.PrivateKey(raw)), nil
	case ed25519.SeedSize:
		return NewKeypair(ed25519.NewKeyFromSeed(raw)), nil
	default:
		return nil, fmt.Errorf("secret key has %d bytes, want %d or %d", len(raw), ed25519.PrivateKeySize, ed25519.SeedSize)
	}
}

// NewKeypair wraps an ed25519 private key.
func NewKeypair(key ed25519.PrivateKey) *Keypair {
	pub := key.Public().(ed25519.PublicKey)
	return &Keypair{private: key, address: base58.Encode(pub)}
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return k.address
}

// PublicKey returns the raw public key bytes.
func (k *Keypair) PublicKey() []byte {
	return k.private.Public().(ed25519.PublicKey)
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}
