// Package api serves the protocol's public HTTP surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/cycle"
	"boil-protocol/internal/storage"
)

// Defaults for Config.
const (
	ProtocolName = "moltdown"
	Version      = "2.0.0"

	DefaultRateLimit     = 120
	DefaultRateWindow    = time.Minute
	DefaultAgentCacheTTL = 2 * time.Second
	DefaultSOLPrice      = 190
)

// Protocol is the cycle surface the API reads and drives.
type Protocol interface {
	Status(ctx context.Context) (cycle.Status, error)
	Resolve(ctx context.Context) (*cycle.Resolution, bool)
	ResetAll(ctx context.Context) error
	Duration() time.Duration
	Shares() (alpha, shatter float64)
}

// BalanceReader reads the fee wallet balance in SOL.
type BalanceReader interface {
	CurrentBalance(ctx context.Context) (float64, error)
}

// Config configures the Server.
type Config struct {
	Mint          string
	SOLPrice      float64
	EnableTest    bool // mounts /api/test routes
	RateLimit     int
	RateWindow    time.Duration
	AgentCacheTTL time.Duration
	ClaimSettle   time.Duration // full-cycle wait after claiming
	TxSettle      time.Duration // full-cycle wait after resolving
}

func (c *Config) applyDefaults() {
	if c.SOLPrice == 0 {
		c.SOLPrice = DefaultSOLPrice
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.AgentCacheTTL <= 0 {
		c.AgentCacheTTL = DefaultAgentCacheTTL
	}
}

// Deps are the collaborators handlers read from. Events, Claimer and
// Balance may be nil.
type Deps struct {
	Protocol Protocol
	State    *cache.State
	Cycles   storage.CycleStore
	Trades   storage.TradeStore
	Events   storage.TradeEventStore
	Claimer  cycle.FeeClaimer
	Balance  BalanceReader
}

// Server holds the HTTP routes and their shared middleware state.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	limiter    *RateLimiter
	agentCache *ResponseCache
	handler    http.Handler

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewServer builds the route table.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	cfg.applyDefaults()
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		logger:     logger.With().Str("component", "api").Logger(),
		limiter:    NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		agentCache: NewResponseCache(cfg.AgentCacheTTL),
		now:        time.Now,
		sleep:      sleepCtx,
	}
	s.handler = s.middleware(s.routes())
	return s
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// RateLimiter exposes the limiter so its sweep can be scheduled.
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}

// AgentCache exposes the agent response cache so its sweep can be scheduled.
func (s *Server) AgentCache() *ResponseCache {
	return s.agentCache
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	for _, prefix := range []string{"/api/protocol", "/api/round"} {
		mux.HandleFunc("GET "+prefix+"/status", s.handleProtocolStatus)
		mux.HandleFunc("GET "+prefix+"/current", s.handleCurrentRound)
		mux.HandleFunc("GET "+prefix+"/history", s.handleHistory)
		mux.HandleFunc("GET "+prefix+"/{cycleNumber}", s.handleCycle)
	}

	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/leaderboard/position/{wallet}", s.handleLeaderboardPosition)

	mux.HandleFunc("GET /api/user/{wallet}", s.handleUser)
	mux.HandleFunc("GET /api/user/{wallet}/trades", s.handleUserTrades)

	agent := http.NewServeMux()
	agent.HandleFunc("GET /api/agent/status", s.handleAgentStatus)
	agent.HandleFunc("GET /api/agent/alpha", s.handleAgentAlpha)
	agent.HandleFunc("GET /api/agent/positions", s.handleAgentPositions)
	agent.HandleFunc("GET /api/agent/history", s.handleAgentHistory)
	agent.HandleFunc("GET /api/agent/volume", s.handleAgentVolume)
	agent.HandleFunc("GET /api/agent/ping", s.handleAgentPing)
	agent.HandleFunc("/", s.handleNotFound)
	mux.Handle("/api/agent/", s.agentCache.Middleware(agent))

	if s.cfg.EnableTest {
		mux.HandleFunc("POST /api/test/simulate-buy", s.handleSimulateBuy)
		mux.HandleFunc("POST /api/test/force-round-end", s.handleForceRoundEnd)
		mux.HandleFunc("POST /api/test/claim-rewards", s.handleClaimRewards)
		mux.HandleFunc("POST /api/test/reset-all", s.handleResetAll)
		mux.HandleFunc("POST /api/test/full-cycle", s.handleFullCycle)
		s.logger.Warn().Msg("test routes enabled")
	}

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.Info().Msg("api server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"protocol":  ProtocolName,
		"version":   Version,
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
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
