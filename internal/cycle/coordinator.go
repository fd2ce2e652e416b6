// Package cycle drives the protocol's timed cycles: it decides when a
// cycle ends, resolves it exactly once and starts the next one.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/distribution"
	"boil-protocol/internal/domain"
	"boil-protocol/internal/observability"
	"boil-protocol/internal/storage"
	"boil-protocol/internal/tank"
)

// Defaults for Config.
const (
	DefaultDuration           = 60 * time.Second
	DefaultTickInterval       = time.Second
	DefaultClaimSettle        = 2 * time.Second
	DefaultResolveTimeout     = 120 * time.Second
	DefaultBookkeepingTimeout = 10 * time.Second
	DefaultAlphaShare         = 0.70
	DefaultShatterShare       = 0.30
	DefaultReserve            = 0.005
	DefaultDust               = 0.001
)

// Resolve outcomes used in metrics.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// SourceNoBaseline marks a tank zeroed because no baseline was stored.
const SourceNoBaseline = "no_baseline"

const (
	persistAttempts   = 3
	persistRetryDelay = 250 * time.Millisecond
)

// FeeClaimer collects pending creator fees into the fee wallet.
type FeeClaimer interface {
	Claim(ctx context.Context) (string, error)
}

// Treasury reads the fee wallet balance and moves the baseline.
type Treasury interface {
	CurrentBalance(ctx context.Context) (float64, error)
	ResetBaseline(ctx context.Context) (float64, error)
}

// Distributor pays out a resolved split.
type Distributor interface {
	Distribute(ctx context.Context, req distribution.Request) distribution.Result
}

// Config configures the Coordinator.
type Config struct {
	Duration           time.Duration
	TickInterval       time.Duration
	AlphaShare         float64
	ShatterShare       float64
	Reserve            float64
	Dust               float64
	ClaimSettle        time.Duration
	ResolveTimeout     time.Duration // bound on claim, balance read and payouts
	BookkeepingTimeout time.Duration // bound on persisting and advancing
}

func (c *Config) applyDefaults() {
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.AlphaShare <= 0 && c.ShatterShare <= 0 {
		c.AlphaShare, c.ShatterShare = DefaultAlphaShare, DefaultShatterShare
	}
	if c.Dust <= 0 {
		c.Dust = DefaultDust
	}
	if c.ClaimSettle < 0 {
		c.ClaimSettle = 0
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = DefaultResolveTimeout
	}
	if c.BookkeepingTimeout <= 0 {
		c.BookkeepingTimeout = DefaultBookkeepingTimeout
	}
}

// Resolution is the record of one resolve run.
type Resolution struct {
	RunID        string
	CycleNumber  int64
	NextCycle    int64
	Leader       *domain.Holder
	Participants int
	ClaimTx      string
	Tank         tank.Estimate
	Split        domain.Split
	Distributed  bool
	TxAlpha      *string
	TxShatter    *string
	Errors       []string
	Outcome      string
}

// Coordinator owns cycle lifecycle transitions and baseline resets.
type Coordinator struct {
	cfg         Config
	state       *cache.State
	cycles      storage.CycleStore
	claimer     FeeClaimer
	treasury    Treasury
	distributor Distributor
	estimators  []tank.Estimator
	logger      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	resolving atomic.Bool
}

// NewCoordinator creates a Coordinator. claimer may be nil.
func NewCoordinator(
	cfg Config,
	state *cache.State,
	cycles storage.CycleStore,
	claimer FeeClaimer,
	treasury Treasury,
	distributor Distributor,
	logger zerolog.Logger,
) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:         cfg,
		state:       state,
		cycles:      cycles,
		claimer:     claimer,
		treasury:    treasury,
		distributor: distributor,
		estimators:  tank.DefaultEstimators(cfg.Dust),
		logger:      logger.With().Str("component", "cycle").Logger(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Duration returns the configured cycle length.
func (c *Coordinator) Duration() time.Duration {
	return c.cfg.Duration
}

// Shares returns the configured alpha and shatter shares.
func (c *Coordinator) Shares() (alpha, shatter float64) {
	return c.cfg.AlphaShare, c.cfg.ShatterShare
}

// Resolving reports whether a resolve is in flight.
func (c *Coordinator) Resolving() bool {
	return c.resolving.Load()
}

// Start restores the active cycle on boot. With no stored start time a
// first cycle is opened; an expired cycle is resolved immediately.
func (c *Coordinator) Start(ctx context.Context) error {
	number, err := c.state.CycleNumber(ctx)
	if err != nil {
		return fmt.Errorf("read cycle number: %w", err)
	}
	observability.SetCycleNumber(number)

	start, ok, err := c.state.CycleStartTime(ctx)
	if err != nil {
		return fmt.Errorf("read cycle start: %w", err)
	}

	switch {
	case !ok:
		return c.StartCycle(ctx, number)
	case c.now().Sub(start) > c.cfg.Duration:
		c.logger.Info().Int64("cycle", number).Time("started", start).Msg("stored cycle expired, resolving")
		c.Resolve(ctx)
		return nil
	default:
		remaining := c.cfg.Duration - c.now().Sub(start)
		c.logger.Info().
			Int64("cycle", number).
			Dur("remaining", remaining).
			Int("heat", heat(remaining, c.cfg.Duration)).
			Msg("resuming active cycle")
		return nil
	}
}

// Run ticks every TickInterval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.logger.Info().Dur("duration", c.cfg.Duration).Msg("cycle coordinator running")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick resolves the active cycle once its time is up. It reports whether
// a resolve ran.
func (c *Coordinator) Tick(ctx context.Context) bool {
	start, ok, err := c.state.CycleStartTime(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("tick: read cycle start")
		return false
	}
	if !ok {
		// Cleared by a reset; open a fresh cycle.
		number, err := c.state.CycleNumber(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("tick: read cycle number")
			return false
		}
		if err := c.StartCycle(ctx, number); err != nil {
			c.logger.Warn().Err(err).Msg("tick: start cycle")
		}
		return false
	}
	if c.cfg.Duration-c.now().Sub(start) > 0 {
		return false
	}
	_, ran := c.Resolve(ctx)
	return ran
}

// TimeRemaining returns the active cycle's remaining time, never negative.
// With no active cycle the full duration is reported.
func (c *Coordinator) TimeRemaining(ctx context.Context) (time.Duration, error) {
	start, ok, err := c.state.CycleStartTime(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return c.cfg.Duration, nil
	}
	remaining := c.cfg.Duration - c.now().Sub(start)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// StartCycle opens cycle number now. An existing row for number is kept.
// Active rows below number, left by a failed persist, are closed.
func (c *Coordinator) StartCycle(ctx context.Context, number int64) error {
	now := c.now()
	if err := c.state.SetCycleStartTime(ctx, now); err != nil {
		return fmt.Errorf("set cycle start: %w", err)
	}
	observability.SetCycleNumber(number)

	_, err := c.cycles.Create(ctx, number, now)
	switch {
	case err == nil:
		c.logger.Info().Int64("cycle", number).Time("start", now).Msg("cycle started")
	case errors.Is(err, storage.ErrDuplicateKey):
		c.logger.Info().Int64("cycle", number).Msg("cycle row already exists, continuing")
	default:
		return fmt.Errorf("create cycle %d: %w", number, err)
	}

	closed, err := c.cycles.CloseStale(ctx, number, now)
	if err != nil {
		c.logger.Warn().Err(err).Int64("cycle", number).Msg("close stale cycles failed")
	} else if closed > 0 {
		c.logger.Warn().Int64("closed", closed).Int64("cycle", number).Msg("closed stale active cycles")
	}
	return nil
}

// Resolve ends the active cycle and starts the next. A call made while
// another resolve is in flight returns immediately with ran == false.
func (c *Coordinator) Resolve(ctx context.Context) (res *Resolution, ran bool) {
	if !c.resolving.CompareAndSwap(false, true) {
		observability.RecordCycleResolved(OutcomeSkipped, 0)
		c.logger.Debug().Msg("resolve already in progress, skipping")
		return nil, false
	}
	defer c.resolving.Store(false)

	started := time.Now()
	res = &Resolution{RunID: uuid.NewString()}
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Errors = append(res.Errors, fmt.Sprintf("panic: %v", r))
			c.logger.Error().Interface("panic", r).Str("run_id", res.RunID).Msg("resolve panicked")
		}
		observability.RecordCycleResolved(res.Outcome, time.Since(started).Seconds())
	}()

	c.resolve(ctx, res)
	return res, true
}

func (c *Coordinator) resolve(ctx context.Context, res *Resolution) {
	logger := c.logger.With().Str("run_id", res.RunID).Logger()

	// Bookkeeping must finish even when the caller or the external
	// steps time out, or the next cycle never starts.
	book := context.WithoutCancel(ctx)

	number, err := c.state.CycleNumber(book)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Errors = append(res.Errors, fmt.Sprintf("read cycle number: %v", err))
		logger.Error().Err(err).Msg("resolve aborted: cycle number unavailable")
		return
	}
	res.CycleNumber = number
	logger = logger.With().Int64("cycle", number).Logger()
	logger.Info().Msg("resolving cycle")

	res.Leader, res.Participants = c.readLeader(book, logger, res)

	ext, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	defer cancel()

	c.claim(ext, logger, res)
	res.Tank = c.computeTank(ext, book, logger, res)
	res.Split = domain.ComputeSplit(res.Tank.Value, c.cfg.AlphaShare)

	logger.Info().
		Float64("tank_sol", res.Split.Tank).
		Str("source", res.Tank.Source).
		Float64("extraction_sol", res.Split.Extraction).
		Float64("shatter_sol", res.Split.Burn).
		Msg("tank computed")

	done := domain.CycleCompletion{
		TotalTankSOL: res.Split.Tank,
		Participants: res.Participants,
	}

	if res.Split.Tank > c.cfg.Dust && res.Leader != nil {
		result := c.distributor.Distribute(ext, distribution.Request{
			Leader:     res.Leader.Wallet,
			Extraction: res.Split.Extraction,
			Shatter:    res.Split.Burn,
		})
		res.Distributed = true
		res.TxAlpha, res.TxShatter = result.TxAlpha, result.TxShatter
		res.Errors = append(res.Errors, result.Errors...)

		leader := res.Leader.Wallet
		done.AlphaWallet = &leader
		done.AlphaBought = domain.UIAmount(res.Leader.TokenBalance)
		// Amounts are recorded only for payouts that landed.
		if result.TxAlpha != nil {
			done.AlphaExtraction = res.Split.Extraction
		}
		if result.TxShatter != nil {
			done.ShatterAmount = res.Split.Burn
		}
		done.TxAlpha = result.TxAlpha
		done.TxShatter = result.TxShatter
	} else {
		logger.Info().Bool("has_leader", res.Leader != nil).Msg("distribution skipped")
	}

	bk, bkCancel := context.WithTimeout(book, c.cfg.BookkeepingTimeout)
	defer bkCancel()

	done.EndTime = c.now()
	if err := c.persist(bk, logger, number, done); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("persist cycle: %v", err))
		logger.Error().Err(err).Msg("persist cycle failed")
	}

	if _, err := c.treasury.ResetBaseline(bk); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reset baseline: %v", err))
		logger.Error().Err(err).Msg("reset baseline failed")
	}

	next, err := c.state.IncrementCycleNumber(bk)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Errors = append(res.Errors, fmt.Sprintf("advance cycle: %v", err))
		logger.Error().Err(err).Msg("advance cycle failed")
		return
	}
	res.NextCycle = next

	if err := c.state.ResetCycleData(bk); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reset cycle data: %v", err))
		logger.Warn().Err(err).Msg("reset cycle data failed")
	}
	if err := c.StartCycle(bk, next); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("start cycle: %v", err))
		logger.Error().Err(err).Msg("start next cycle failed")
	}

	res.Outcome = OutcomeCompleted
	if len(res.Errors) > 0 {
		res.Outcome = OutcomePartial
	}
	logger.Info().Str("outcome", res.Outcome).Int("errors", len(res.Errors)).Int64("next", next).Msg("cycle resolved")
}

func (c *Coordinator) readLeader(ctx context.Context, logger zerolog.Logger, res *Resolution) (*domain.Holder, int) {
	leader, err := c.state.Alpha(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("read leader: %v", err))
		logger.Warn().Err(err).Msg("read leader failed")
	}
	count, err := c.state.HolderCount(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("read holder count failed")
	}
	return leader, count
}

// claim is best effort. A successful claim waits ClaimSettle so the
// balance read sees the fees.
func (c *Coordinator) claim(ctx context.Context, logger zerolog.Logger, res *Resolution) {
	if c.claimer == nil {
		return
	}
	sig, err := c.claimer.Claim(ctx)
	observability.RecordTx("claim", err)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("claim fees: %v", err))
		logger.Warn().Err(err).Msg("fee claim failed, continuing with settled balance")
		return
	}
	res.ClaimTx = sig
	logger.Info().Str("tx", sig).Msg("fees claimed")
	if err := c.sleep(ctx, c.cfg.ClaimSettle); err != nil {
		logger.Warn().Err(err).Msg("claim settle interrupted")
	}
}

func (c *Coordinator) computeTank(ext, book context.Context, logger zerolog.Logger, res *Resolution) tank.Estimate {
	baseline, ok, err := c.state.BaselineBalance(book)
	if err != nil || !ok {
		// Without a baseline every estimate would include funds that
		// predate the cycle. The bookkeeping reset establishes it.
		res.Errors = append(res.Errors, "baseline unavailable, tank treated as zero")
		logger.Warn().Err(err).Msg("baseline unavailable, tank treated as zero")
		return tank.Estimate{Value: 0, Source: SourceNoBaseline}
	}
	in := tank.Inputs{Baseline: baseline, Reserve: c.cfg.Reserve}

	balance, err := c.treasury.CurrentBalance(ext)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("read balance: %v", err))
		logger.Warn().Err(err).Msg("balance read failed, using cached estimates")
		in.Balance = baseline
	} else {
		in.Balance = balance
	}

	if in.PolledTank, err = c.state.Tank(book); err != nil {
		logger.Warn().Err(err).Msg("read cached tank failed")
	}
	if in.Tracked, err = c.state.TankEstimate(book); err != nil {
		logger.Warn().Err(err).Msg("read tank estimate failed")
	}

	return tank.Select(in, c.estimators...)
}

// persist retries complete a bounded number of times. A row left active
// after the last attempt is closed by the next StartCycle.
func (c *Coordinator) persist(ctx context.Context, logger zerolog.Logger, number int64, done domain.CycleCompletion) error {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = c.complete(ctx, number, done); err == nil {
			return nil
		}
		if attempt == persistAttempts {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("persist cycle failed, retrying")
		if serr := c.sleep(ctx, persistRetryDelay); serr != nil {
			break
		}
	}
	return err
}

// complete persists the outcome. A missing row is recreated with a start
// time one duration back.
func (c *Coordinator) complete(ctx context.Context, number int64, done domain.CycleCompletion) error {
	err := c.cycles.Complete(ctx, number, done)
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	c.logger.Warn().Int64("cycle", number).Msg("cycle row missing, recreating")
	_, err = c.cycles.Create(ctx, number, done.EndTime.Add(-c.cfg.Duration))
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("recreate cycle: %w", err)
	}
	return c.cycles.Complete(ctx, number, done)
}

// heat maps elapsed time to 0..100.
func heat(remaining, duration time.Duration) int {
	if duration <= 0 {
		return 0
	}
	elapsed := duration - remaining
	h := int(math.Round(float64(elapsed) / float64(duration) * 100))
	if h > 100 {
		return 100
	}
	if h < 0 {
		return 0
	}
	return h
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
