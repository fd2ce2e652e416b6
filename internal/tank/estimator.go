// Package tank tracks the distributable creator-fee balance.
package tank

import "math"

// Inputs are the readings an estimator may draw on at resolution time.
type Inputs struct {
	Balance    float64 // live wallet balance, SOL
	Baseline   float64 // balance at the last resolution, SOL
	Reserve    float64 // SOL kept back for fees
	PolledTank float64 // last tank written by the poller
	Tracked    float64 // volume-derived running estimate
}

// Estimator proposes a tank value; ok is false when it has no usable value.
type Estimator interface {
	Name() string
	Estimate(in Inputs) (value float64, ok bool)
}

// Estimate is the value chosen by Select and the estimator that produced it.
type Estimate struct {
	Value  float64
	Source string
}

// Compute returns max(0, balance - baseline - reserve).
func Compute(balance, baseline, reserve float64) float64 {
	return math.Max(0, balance-baseline-reserve)
}

// BalanceDelta reads the tank off the wallet balance. It only accepts
// results of at least Min so a claim that has not settled yet falls through.
type BalanceDelta struct {
	Min float64
}

func (BalanceDelta) Name() string { return "balance_delta" }

func (e BalanceDelta) Estimate(in Inputs) (float64, bool) {
	v := Compute(in.Balance, in.Baseline, in.Reserve)
	return v, v >= e.Min
}

// PolledTank uses the poller's last cached tank.
type PolledTank struct{}

func (PolledTank) Name() string { return "polled_tank" }

func (PolledTank) Estimate(in Inputs) (float64, bool) {
	return in.PolledTank, in.PolledTank > 0
}

// TrackedVolume uses the estimate accumulated from traded volume.
type TrackedVolume struct{}

func (TrackedVolume) Name() string { return "tracked_volume" }

func (TrackedVolume) Estimate(in Inputs) (float64, bool) {
	return in.Tracked, in.Tracked > 0
}

// DefaultEstimators returns the resolution order used by the coordinator.
func DefaultEstimators(dust float64) []Estimator {
	return []Estimator{BalanceDelta{Min: dust}, PolledTank{}, TrackedVolume{}}
}

// Select returns the first accepted estimate. When none accepts, the
// balance delta is returned as is (possibly zero).
func Select(in Inputs, estimators ...Estimator) Estimate {
	for _, e := range estimators {
		if v, ok := e.Estimate(in); ok && v >= 0 {
			return Estimate{Value: v, Source: e.Name()}
		}
	}
	return Estimate{Value: Compute(in.Balance, in.Baseline, in.Reserve), Source: "balance_delta"}
}
