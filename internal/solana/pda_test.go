package solana

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
)

const testMint = "So11111111111111111111111111111111111111112"

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"system program", SystemProgramID, false},
		{"token program", TokenProgramID, false},
		{"too short", "abc", true},
		{"invalid base58", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", true},
		{"wrong length", base58.Encode(bytes.Repeat([]byte{0xff}, 24)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestFindProgramAddress_OffCurve(t *testing.T) {
	addr, bump, err := FindProgramAddress([][]byte{[]byte("seed")}, PumpFunProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}

	raw, err := DecodeAddress(addr)
	if err != nil {
		t.Fatalf("derived address invalid: %v", err)
	}

	if isOnCurve(raw) {
		t.Errorf("derived address %s is on curve", addr)
	}

	if bump == 0 {
		t.Errorf("expected non-zero bump")
	}

	again, againBump, _ := FindProgramAddress([][]byte{[]byte("seed")}, PumpFunProgramID)
	if again != addr || againBump != bump {
		t.Errorf("derivation not deterministic")
	}
}

func TestAssociatedTokenAddress_DependsOnProgram(t *testing.T) {
	owner := SystemProgramID

	spl, err := AssociatedTokenAddress(owner, testMint, TokenProgramID)
	if err != nil {
		t.Fatalf("spl ATA: %v", err)
	}

	t22, err := AssociatedTokenAddress(owner, testMint, Token2022ProgramID)
	if err != nil {
		t.Fatalf("token-2022 ATA: %v", err)
	}

	if spl == t22 {
		t.Errorf("expected different ATAs per token program, got %s", spl)
	}
}

func TestAssociatedTokenAddress_InvalidOwner(t *testing.T) {
	if _, err := AssociatedTokenAddress("bad", testMint, TokenProgramID); err == nil {
		t.Fatal("expected error for invalid owner")
	}
}

func TestBondingCurveAddress(t *testing.T) {
	addr, err := BondingCurveAddress(testMint)
	if err != nil {
		t.Fatalf("BondingCurveAddress: %v", err)
	}
	if err := ValidateAddress(addr); err != nil {
		t.Errorf("invalid curve address: %v", err)
	}
}
