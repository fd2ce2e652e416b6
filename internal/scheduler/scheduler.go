// Package scheduler runs the protocol's interval jobs on a cron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Default job intervals.
const (
	PollSpec       = "@every 3s"
	RateSweepSpec  = "@every 5m"
	CacheSweepSpec = "@every 30s"

	// DefaultJobTimeout bounds one poller run.
	DefaultJobTimeout = 10 * time.Second
)

// Poller is a periodic read that refreshes cached state.
type Poller interface {
	Name() string
	Poll(ctx context.Context) error
}

// Scheduler manages all interval jobs. Overlapping runs of the same job
// are skipped.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a Scheduler. Jobs stop receiving new runs once ctx is done.
func New(ctx context.Context, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:     ctx,
		timeout: DefaultJobTimeout,
		logger:  logger,
	}
}

// AddPoller registers p to run on spec.
func (s *Scheduler) AddPoller(spec string, p Poller) error {
	if _, err := s.cron.AddFunc(spec, s.pollJob(p)); err != nil {
		return fmt.Errorf("register poller %s: %w", p.Name(), err)
	}
	s.logger.Debug().Str("job", p.Name()).Str("spec", spec).Msg("poller registered")
	return nil
}

// AddFunc registers a named job.
func (s *Scheduler) AddFunc(spec, name string, fn func()) error {
	if _, err := s.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	s.logger.Debug().Str("job", name).Str("spec", spec).Msg("job registered")
	return nil
}

// RunNow polls each p once, in order, before the schedule takes over.
// Failures are logged like scheduled runs.
func (s *Scheduler) RunNow(pollers ...Poller) {
	for _, p := range pollers {
		s.pollJob(p)()
	}
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", s.Len()).Msg("scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with jobs running")
	}
}

func (s *Scheduler) pollJob(p Poller) func() {
	return func() {
		if s.ctx.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if err := p.Poll(ctx); err != nil {
			s.logger.Warn().Err(err).Str("job", p.Name()).Msg("poll failed")
		}
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
