package domain

import "time"

// Trade is one buy recorded against a cycle.
// Corresponds to trades table in PostgreSQL.
type Trade struct {
	ID          int64     // BIGSERIAL primary key
	RoundID     int64     // cycle number at time of trade
	Wallet      string    // buyer wallet
	SolAmount   float64   // SOL spent
	TokenAmount float64   // tokens received
	TxSignature string    // unique transaction signature
	Timestamp   time.Time // trade time reported by the stream
}

// TradeEvent is a raw buy or sell observed on the trade stream.
// Appended to trade_events in ClickHouse.
type TradeEvent struct {
	Signature   string
	Mint        string
	Wallet      string
	Side        string // "buy" | "sell"
	SolAmount   float64
	TokenAmount float64
	MarketCap   float64 // market cap in SOL
	CycleNumber int64
	Timestamp   time.Time
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// CycleVolume summarizes trade events of one cycle.
type CycleVolume struct {
	CycleNumber int64
	BuyVolume   float64
	SellVolume  float64
	Trades      int64
	Wallets     int64
}

// Total returns buy plus sell volume.
func (v CycleVolume) Total() float64 {
	return v.BuyVolume + v.SellVolume
}
