package solana

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SignatureLength is the size of an ed25519 signature.
const SignatureLength = 64

const (
	systemTransferIndex = 2
	splBurnIndex        = 8
)

// ErrMalformedTransaction is returned when serialized bytes cannot be parsed.
var ErrMalformedTransaction = errors.New("malformed transaction")

// AccountMeta is an account referenced by an instruction.
type AccountMeta struct {
	PublicKey  string
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// TransferInstruction builds a System program transfer.
func TransferInstruction(from, to string, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: to, IsWritable: true},
		},
		Data: data,
	}
}

// BurnInstruction builds a token Burn against tokenAccount owned by owner.
func BurnInstruction(tokenAccount, mint, owner string, amount uint64, tokenProgram string) Instruction {
	data := make([]byte, 9)
	data[0] = splBurnIndex
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return Instruction{
		ProgramID: tokenProgram,
		Accounts: []AccountMeta{
			{PublicKey: tokenAccount, IsWritable: true},
			{PublicKey: mint, IsWritable: true},
			{PublicKey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// CompileMessage serializes a legacy message paid by payer.
// Accounts are ordered writable signers, readonly signers, writable
// non-signers, readonly non-signers, with the payer first.
func CompileMessage(payer string, instructions []Instruction, recentBlockhash string) ([]byte, error) {
	type entry struct {
		key      string
		signer   bool
		writable bool
	}

	var order []string
	metas := map[string]*entry{}
	add := func(key string, signer, writable bool) {
		e, ok := metas[key]
		if !ok {
			e = &entry{key: key}
			metas[key] = e
			order = append(order, key)
		}
		e.signer = e.signer || signer
		e.writable = e.writable || writable
	}

	add(payer, true, true)
	for _, ix := range instructions {
		for _, a := range ix.Accounts {
			add(a.PublicKey, a.IsSigner, a.IsWritable)
		}
	}
	for _, ix := range instructions {
		add(ix.ProgramID, false, false)
	}

	var groups [4][]string
	for _, key := range order {
		e := metas[key]
		switch {
		case e.signer && e.writable:
			groups[0] = append(groups[0], key)
		case e.signer:
			groups[1] = append(groups[1], key)
		case e.writable:
			groups[2] = append(groups[2], key)
		default:
			groups[3] = append(groups[3], key)
		}
	}

	keys := make([]string, 0, len(order))
	for _, g := range groups {
		keys = append(keys, g...)
	}
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	blockhash, err := DecodeAddress(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	msg := []byte{
		byte(len(groups[0]) + len(groups[1])),
		byte(len(groups[1])),
		byte(len(groups[3])),
	}
	msg = appendCompactU16(msg, len(keys))
	for _, k := range keys {
		b, err := DecodeAddress(k)
		if err != nil {
			return nil, err
		}
		msg = append(msg, b...)
	}
	msg = append(msg, blockhash...)

	msg = appendCompactU16(msg, len(instructions))
	for _, ix := range instructions {
		msg = append(msg, byte(index[ix.ProgramID]))
		msg = appendCompactU16(msg, len(ix.Accounts))
		for _, a := range ix.Accounts {
			msg = append(msg, byte(index[a.PublicKey]))
		}
		msg = appendCompactU16(msg, len(ix.Data))
		msg = append(msg, ix.Data...)
	}

	return msg, nil
}

// BuildSignedTransaction compiles and signs a legacy transaction with a single signer.
func BuildSignedTransaction(signer *Keypair, instructions []Instruction, recentBlockhash string) ([]byte, error) {
	msg, err := CompileMessage(signer.Address(), instructions, recentBlockhash)
	if err != nil {
		return nil, err
	}
	if msg[0] != 1 {
		return nil, fmt.Errorf("transaction requires %d signers", msg[0])
	}

	tx := appendCompactU16(nil, 1)
	tx = append(tx, signer.Sign(msg)...)
	tx = append(tx, msg...)
	return tx, nil
}

// SignVersioned places signer's signature in the first slot of a
// serialized transaction produced elsewhere. Legacy and v0 messages are
// both accepted since the signature covers the message bytes verbatim.
func SignVersioned(tx []byte, signer *Keypair) ([]byte, error) {
	count, n, err := readCompactU16(tx)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: no signature slots", ErrMalformedTransaction)
	}

	msgStart := n + count*SignatureLength
	if msgStart >= len(tx) {
		return nil, fmt.Errorf("%w: %d bytes for %d signatures", ErrMalformedTransaction, len(tx), count)
	}

	signed := make([]byte, len(tx))
	copy(signed, tx)
	copy(signed[n:n+SignatureLength], signer.Sign(tx[msgStart:]))
	return signed, nil
}

func appendCompactU16(b []byte, v int) []byte {
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}

func readCompactU16(b []byte) (int, int, error) {
	v := 0
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformedTransaction)
		}
		v |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix too long", ErrMalformedTransaction)
}
