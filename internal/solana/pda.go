package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of a Solana address in bytes.
const PublicKeyLength = 32

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("no viable bump seed")

// DecodeAddress decodes a base58 address into its 32 raw bytes.
func DecodeAddress(addr string) ([]byte, error) {
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(b) != PublicKeyLength {
		return nil, fmt.Errorf("address %q decodes to %d bytes", addr, len(b))
	}
	return b, nil
}

// ValidateAddress reports whether addr is a base58 encoded 32-byte key.
func ValidateAddress(addr string) error {
	if len(addr) < 32 || len(addr) > 44 {
		return fmt.Errorf("address length %d out of range", len(addr))
	}
	_, err := DecodeAddress(addr)
	return err
}

// FindProgramAddress derives a program address for seeds, returning the
// address and the bump that produced it. Bumps are tried from 255 down.
func FindProgramAddress(seeds [][]byte, programID string) (string, byte, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, program...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), bump, nil
		}
	}

	return "", 0, ErrNoViableBump
}

// AssociatedTokenAddress derives the associated token account of owner
// for mint under the given token program.
func AssociatedTokenAddress(owner, mint, tokenProgram string) (string, error) {
	ownerBytes, err := DecodeAddress(owner)
	if err != nil {
		return "", err
	}
	mintBytes, err := DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	programBytes, err := DecodeAddress(tokenProgram)
	if err != nil {
		return "", err
	}

	addr, _, err := FindProgramAddress([][]byte{ownerBytes, programBytes, mintBytes}, AssociatedTokenProgramID)
	return addr, err
}

// BondingCurveAddress derives the pump.fun bonding curve account of a mint.
func BondingCurveAddress(mint string) (string, error) {
	mintBytes, err := DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte("bonding-curve"), mintBytes}, PumpFunProgramID)
	return addr, err
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
