package domain

// Holder is one ranked entry of the on-chain holder snapshot.
type Holder struct {
	Rank         int     `json:"rank"`
	Wallet       string  `json:"wallet"`
	TokenBalance float64 `json:"tokenBalance"` // raw token amount (6 decimals)
}

// BuyerEntry is one row of the per-cycle buy-volume leaderboard.
type BuyerEntry struct {
	Rank        int
	Wallet      string
	TotalBought float64 // SOL
}

// TokenDecimals is the mint's decimal places; raw balances divide by 10^TokenDecimals.
const TokenDecimals = 6

// UIAmount converts a raw token balance into display units.
func UIAmount(raw float64) float64 {
	return raw / 1_000_000
}
