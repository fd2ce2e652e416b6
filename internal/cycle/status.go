package cycle

import (
	"context"
	"fmt"
	"time"

	"boil-protocol/internal/domain"
)

// Status is a point-in-time view of the active cycle.
type Status struct {
	CycleNumber   int64
	StartTime     *time.Time
	Duration      time.Duration
	TimeRemaining time.Duration
	HeatLevel     int
	Tank          float64
	TankEstimate  float64
	Volume        float64
	Participants  int
	Alpha         *domain.Holder
	Resolving     bool
}

// Status reads the active cycle state from the cache.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	st := Status{
		Duration:  c.cfg.Duration,
		Resolving: c.resolving.Load(),
	}

	var err error
	if st.CycleNumber, err = c.state.CycleNumber(ctx); err != nil {
		return st, fmt.Errorf("cycle number: %w", err)
	}

	start, ok, err := c.state.CycleStartTime(ctx)
	if err != nil {
		return st, fmt.Errorf("cycle start: %w", err)
	}
	st.TimeRemaining = c.cfg.Duration
	if ok {
		st.StartTime = &start
		st.TimeRemaining = max(0, c.cfg.Duration-c.now().Sub(start))
	}
	st.HeatLevel = heat(st.TimeRemaining, c.cfg.Duration)

	if st.Tank, err = c.state.Tank(ctx); err != nil {
		return st, fmt.Errorf("tank: %w", err)
	}
	if st.TankEstimate, err = c.state.TankEstimate(ctx); err != nil {
		return st, fmt.Errorf("tank estimate: %w", err)
	}
	if st.Volume, err = c.state.CycleVolume(ctx); err != nil {
		return st, fmt.Errorf("volume: %w", err)
	}
	if st.Participants, err = c.state.HolderCount(ctx); err != nil {
		return st, fmt.Errorf("holder count: %w", err)
	}
	if st.Alpha, err = c.state.Alpha(ctx); err != nil {
		return st, fmt.Errorf("alpha: %w", err)
	}
	return st, nil
}

// ResetAll clears cycle state and history. The next tick opens cycle 1.
func (c *Coordinator) ResetAll(ctx context.Context) error {
	if err := c.state.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset cache: %w", err)
	}
	if err := c.cycles.DeleteAll(ctx); err != nil {
		return fmt.Errorf("delete cycles: %w", err)
	}
	c.logger.Warn().Msg("all cycle state reset")
	return nil
}
