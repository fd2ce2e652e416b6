// Command server runs the cycle coordinator, the background pollers, the
// trade tracker and the HTTP API in a single process.
//
// Usage:
//
//	server [--config config.yaml] [--port 3001] [--metrics-addr :9090] [--use-memory]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"boil-protocol/internal/api"
	"boil-protocol/internal/cache"
	"boil-protocol/internal/config"
	"boil-protocol/internal/cycle"
	"boil-protocol/internal/distribution"
	"boil-protocol/internal/domain"
	"boil-protocol/internal/holders"
	"boil-protocol/internal/observability"
	"boil-protocol/internal/pumpportal"
	"boil-protocol/internal/scheduler"
	"boil-protocol/internal/solana"
	"boil-protocol/internal/storage"
	chstore "boil-protocol/internal/storage/clickhouse"
	"boil-protocol/internal/storage/memory"
	"boil-protocol/internal/storage/migrations"
	"boil-protocol/internal/storage/postgres"
	"boil-protocol/internal/tank"
	"boil-protocol/internal/trades"
)

const (
	shutdownTimeout = 10 * time.Second
	forceExitAfter  = 30 * time.Second
)

// stores holds the persistence backends for the selected mode.
type stores struct {
	cache  cache.Store
	cycles storage.CycleStore
	trades storage.TradeStore
	events storage.TradeEventStore // nil without ClickHouse
}

func main() {
	config.LoadEnvFile(".env")

	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Metrics listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of Redis/Postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *useMemory {
		cfg.Server.UseMemory = true
	}

	logger := observability.SetupLogging(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing shutdown")
			os.Exit(1)
		case <-time.After(forceExitAfter):
			logger.Error().Dur("after", forceExitAfter).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	state := cache.NewState(st.cache)

	rpc := solana.NewHTTPClient(cfg.Solana.RPCURL)
	creatorKey, err := solana.ParseKeypair(cfg.Solana.CreatorPrivateKey)
	if err != nil {
		return fmt.Errorf("creator key: %w", err)
	}
	creator := solana.NewWallet(rpc, creatorKey, logger)
	logger.Info().Str("wallet", creator.Address()).Str("mint", cfg.Token.Mint).Msg("creator wallet loaded")
	logBackendWallet(ctx, cfg, rpc, logger)

	portal := pumpportal.NewClient(cfg.PumpPortal.APIURL, cfg.PumpPortal.PumpFunAPIURL)
	claimer := pumpportal.NewFeeClaimer(portal, creator, cfg.Token.Mint, logger)
	buyer := pumpportal.NewBuyChain(creator, logger,
		pumpportal.NewPumpFunProvider(portal),
		pumpportal.NewPortalProvider(portal),
	)

	tankPoller := tank.NewPoller(creator, state, cfg.Cycle.Reserve, logger)
	if err := tankPoller.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("tank baseline not established, next poll sets it")
	}

	holderPoller, err := holders.NewPoller(rpc, state, cfg.Token.Mint, logger)
	if err != nil {
		return fmt.Errorf("holder poller: %w", err)
	}

	streamCfg := pumpportal.DefaultStreamConfig()
	if cfg.PumpPortal.StreamURL != "" {
		streamCfg.URL = cfg.PumpPortal.StreamURL
	}
	streamCfg.Mint = cfg.Token.Mint
	tracker := trades.NewTracker(trades.Config{Mint: cfg.Token.Mint},
		pumpportal.NewStream(streamCfg, logger), state, st.trades, st.events, logger)

	executor := distribution.NewExecutor(distribution.Config{
		Mint: cfg.Token.Mint,
		Dust: cfg.Cycle.Dust,
	}, creator, buyer, logger)

	coordinator := cycle.NewCoordinator(cycle.Config{
		Duration:       cfg.CycleDuration(),
		AlphaShare:     cfg.Cycle.AlphaShare,
		ShatterShare:   cfg.Cycle.ShatterShare,
		Reserve:        cfg.Cycle.Reserve,
		Dust:           cfg.Cycle.Dust,
		ResolveTimeout: cfg.ResolveTimeout(),
	}, state, st.cycles, claimer, tankPoller, executor, logger)

	// Boot may resolve an expired cycle, so it needs a fresh leader.
	sched := scheduler.New(ctx, logger)
	sched.RunNow(holderPoller)

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	server := api.NewServer(api.Config{
		Mint:        cfg.Token.Mint,
		SOLPrice:    cfg.Cycle.SOLPrice,
		EnableTest:  !cfg.IsProduction(),
		ClaimSettle: cycle.DefaultClaimSettle,
		TxSettle:    distribution.DefaultSettleDelay,
	}, api.Deps{
		Protocol: coordinator,
		State:    state,
		Cycles:   st.cycles,
		Trades:   st.trades,
		Events:   st.events,
		Claimer:  claimer,
		Balance:  tankPoller,
	}, logger)

	for _, p := range []scheduler.Poller{tankPoller, holderPoller} {
		if err := sched.AddPoller(scheduler.PollSpec, p); err != nil {
			return err
		}
	}
	if err := sched.AddFunc(scheduler.RateSweepSpec, "rate_limit_sweep", func() {
		server.RateLimiter().Sweep()
	}); err != nil {
		return err
	}
	if err := sched.AddFunc(scheduler.CacheSweepSpec, "agent_cache_sweep", func() {
		server.AgentCache().Sweep()
	}); err != nil {
		return err
	}
	sched.Start()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("trade tracking stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := startMetricsServer(ctx, cfg.Server.MetricsAddr, logger); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info().Bool("test_routes", !cfg.IsProduction()).Msg("starting api")
		if err := server.Serve(ctx, addr, shutdownTimeout); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
		cancel()
	}

	stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	sched.Stop(stopCtx)
	wg.Wait()
	return runErr
}

// createStores opens the backends for the configured mode. The returned
// cleanup closes whatever was opened.
func createStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, func(), error) {
	if cfg.Server.UseMemory {
		logger.Info().Msg("using in-memory storage")
		return &stores{
			cache:  cache.NewMemoryStore(),
			cycles: memory.NewCycleStore(),
			trades: memory.NewTradeStore(),
			events: memory.NewTradeEventStore(),
		}, func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	redisStore, err := cache.NewRedisStore(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	closers = append(closers, func() { _ = redisStore.Close() })

	pool, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	closers = append(closers, pool.Close)

	if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		cache:  redisStore,
		cycles: postgres.NewCycleStore(pool),
		trades: postgres.NewTradeStore(pool),
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		st.events = chstore.NewTradeEventStore(conn)
	} else {
		logger.Info().Msg("clickhouse not configured, raw trade events disabled")
	}

	return st, cleanup, nil
}

// logBackendWallet reports the optional backend wallet. It holds no
// protocol role.
func logBackendWallet(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, logger zerolog.Logger) {
	if cfg.Solana.BackendPrivateKey == "" {
		return
	}
	key, err := solana.ParseKeypair(cfg.Solana.BackendPrivateKey)
	if err != nil {
		logger.Warn().Err(err).Msg("backend wallet key unreadable")
		return
	}
	w := solana.NewWallet(rpc, key, logger)
	lamports, err := w.Balance(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("wallet", w.Address()).Msg("backend wallet balance unavailable")
		return
	}
	logger.Info().
		Str("wallet", w.Address()).
		Float64("balance_sol", domain.LamportsToSOL(lamports)).
		Msg("backend wallet loaded")
}

// startMetricsServer serves /metrics and /health until ctx is cancelled.
func startMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
