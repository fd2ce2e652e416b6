package solana

import (
	"strconv"

	"github.com/mr-tron/base58"
)

func encodeSecret(k *Keypair) string {
	return base58.Encode(k.private)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
