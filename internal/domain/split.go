package domain

import "github.com/shopspring/decimal"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// Split is the resolved division of a tank.
type Split struct {
	Tank       float64
	Extraction float64 // paid to the leader
	Burn       float64 // bought back and burned
}

// ComputeSplit divides tank by alphaShare in whole lamports.
// Extraction is floored; burn takes the remainder, so Extraction+Burn == Tank.
func ComputeSplit(tank, alphaShare float64) Split {
	if tank <= 0 {
		return Split{}
	}
	total := SOLToLamports(tank)
	ext := decimal.NewFromInt(int64(total)).Mul(decimal.NewFromFloat(alphaShare)).Floor()
	extLamports := uint64(ext.IntPart())
	if extLamports > total {
		extLamports = total
	}
	return Split{
		Tank:       LamportsToSOL(total),
		Extraction: LamportsToSOL(extLamports),
		Burn:       LamportsToSOL(total - extLamports),
	}
}

// SOLToLamports converts SOL to lamports, rounding to the nearest lamport.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(decimal.NewFromFloat(sol).Mul(lamportsPerSOL).Round(0).IntPart())
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return decimal.NewFromInt(int64(lamports)).Div(lamportsPerSOL).InexactFloat64()
}
