package solana_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"boil-protocol/internal/solana"
	"boil-protocol/internal/solana/stub"
)

const mint = "So11111111111111111111111111111111111111112"

func newWallet(t *testing.T, rpc *stub.RPCClient) *solana.Wallet {
	t.Helper()
	key := solana.NewKeypair(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{4}, ed25519.SeedSize)))
	return solana.NewWallet(rpc, key, zerolog.Nop(),
		solana.WithConfirmPoll(5*time.Millisecond),
		solana.WithConfirmTimeout(200*time.Millisecond),
	)
}

func TestWallet_TransferSOL(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc)

	sig, err := w.TransferSOL(context.Background(), solana.TokenProgramID, 1500)
	if err != nil {
		t.Fatalf("TransferSOL: %v", err)
	}

	if sig != "sig1" {
		t.Errorf("expected sig1, got %s", sig)
	}

	if rpc.SentCount() != 1 {
		t.Fatalf("expected 1 sent transaction, got %d", rpc.SentCount())
	}

	tx := rpc.Sent[0]
	if !ed25519.Verify(w.Keypair().PublicKey(), tx[65:], tx[1:65]) {
		t.Error("sent transaction signature invalid")
	}

	data := tx[len(tx)-12:]
	if binary.LittleEndian.Uint64(data[4:]) != 1500 {
		t.Errorf("unexpected lamports in transfer")
	}
}

func TestWallet_TransferSOL_InvalidRecipient(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc)

	if _, err := w.TransferSOL(context.Background(), "nope", 1); err == nil {
		t.Fatal("expected error")
	}
	if rpc.SentCount() != 0 {
		t.Error("nothing should be sent")
	}
}

func TestWallet_ConfirmFailure(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.FailSignatures["sig1"] = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	w := newWallet(t, rpc)

	sig, err := w.TransferSOL(context.Background(), solana.TokenProgramID, 1)

	var txErr *solana.TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TxError, got %v", err)
	}
	if sig != "sig1" || txErr.Signature != "sig1" {
		t.Errorf("expected signature sig1 to be reported")
	}
}

func TestWallet_TokenBalance(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc)

	ata, err := solana.AssociatedTokenAddress(w.Address(), mint, solana.TokenProgramID)
	if err != nil {
		t.Fatalf("ata: %v", err)
	}
	rpc.AddTokenAccount(ata, w.Address(), 777, solana.TokenProgramID)

	amount, program, err := w.TokenBalance(context.Background(), mint)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}

	if amount != 777 || program != solana.TokenProgramID {
		t.Errorf("got %d under %s", amount, program)
	}
}

func TestWallet_TokenBalance_NoAccount(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc)

	amount, program, err := w.TokenBalance(context.Background(), mint)
	if err != nil {
		t.Fatalf("TokenBalance: %v", err)
	}
	if amount != 0 || program != "" {
		t.Errorf("expected empty balance, got %d %q", amount, program)
	}
}

func TestWallet_Burn(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc)

	ata, _ := solana.AssociatedTokenAddress(w.Address(), mint, solana.Token2022ProgramID)
	rpc.AddTokenAccount(ata, w.Address(), 100, solana.Token2022ProgramID)

	if _, err := w.Burn(context.Background(), mint, 100, solana.Token2022ProgramID); err != nil {
		t.Fatalf("Burn: %v", err)
	}

	_, err := w.Burn(context.Background(), mint, 100, solana.TokenProgramID)
	if !errors.Is(err, solana.ErrNoTokenAccount) {
		t.Errorf("expected ErrNoTokenAccount, got %v", err)
	}

	if rpc.SentCount() != 1 {
		t.Errorf("expected 1 sent transaction, got %d", rpc.SentCount())
	}
}

func TestWallet_SignAndSend(t *testing.T) {
	rpc := stub.NewRPCClient()
	w := newWallet(t, rpc)

	message := bytes.Repeat([]byte{1}, 50)
	unsigned := append([]byte{1}, make([]byte, 64)...)
	unsigned = append(unsigned, message...)

	if _, err := w.SignAndSend(context.Background(), unsigned); err != nil {
		t.Fatalf("SignAndSend: %v", err)
	}

	sent := rpc.Sent[0]
	if !ed25519.Verify(w.Keypair().PublicKey(), message, sent[1:65]) {
		t.Error("signature invalid")
	}
}

func TestWallet_Confirm_Timeout(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Err = errors.New("node down")
	w := newWallet(t, rpc)

	err := w.Confirm(context.Background(), "sigX")
	if !errors.Is(err, solana.ErrConfirmTimeout) {
		t.Errorf("expected ErrConfirmTimeout, got %v", err)
	}
}
