package domain

import "time"

// Cycle is one timed round of the protocol.
// Corresponds to cycles table in PostgreSQL.
type Cycle struct {
	ID          int64      // BIGSERIAL primary key
	CycleNumber int64      // unique, monotonic, starts at 1
	StartTime   time.Time  // cycle start
	EndTime     *time.Time // nil while active
	Status      string     // "active" | "completed"

	// Resolution outcome (zero values while active)
	AlphaWallet     *string // leader at resolution, nil when none
	AlphaBought     float64 // leader token balance, UI units
	TotalTankSOL    float64 // distributable amount
	AlphaExtraction float64 // majority share
	ShatterAmount   float64 // minority share (buy and burn)
	Participants    int     // holder count at resolution
	TxAlpha         *string // extraction transfer signature
	TxShatter       *string // burn (or buy) signature
}

// CycleCompletion carries the values written when a cycle resolves.
type CycleCompletion struct {
	EndTime         time.Time
	AlphaWallet     *string
	AlphaBought     float64
	TotalTankSOL    float64
	AlphaExtraction float64
	ShatterAmount   float64
	Participants    int
	TxAlpha         *string
	TxShatter       *string
}

// Cycle status constants
const (
	CycleStatusActive    = "active"
	CycleStatusCompleted = "completed"
)

// Apply copies a completion onto the cycle and marks it completed.
func (c *Cycle) Apply(done CycleCompletion) {
	end := done.EndTime
	c.EndTime = &end
	c.AlphaWallet = done.AlphaWallet
	c.AlphaBought = done.AlphaBought
	c.TotalTankSOL = done.TotalTankSOL
	c.AlphaExtraction = done.AlphaExtraction
	c.ShatterAmount = done.ShatterAmount
	c.Participants = done.Participants
	c.TxAlpha = done.TxAlpha
	c.TxShatter = done.TxShatter
	c.Status = CycleStatusCompleted
}
