package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/cycle"
	"boil-protocol/internal/storage/memory"
)

const (
	walletA = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	walletB = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

type fakeProtocol struct {
	mu          sync.Mutex
	status      cycle.Status
	statusErr   error
	statusCalls atomic.Int32
	panicStatus bool

	resolveRan   bool
	resolution   *cycle.Resolution
	resolveCalls atomic.Int32
	resets       atomic.Int32
}

func (p *fakeProtocol) Status(context.Context) (cycle.Status, error) {
	p.statusCalls.Add(1)
	if p.panicStatus {
		panic("status exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.statusErr
}

func (p *fakeProtocol) Resolve(context.Context) (*cycle.Resolution, bool) {
	p.resolveCalls.Add(1)
	if !p.resolveRan {
		return nil, false
	}
	return p.resolution, true
}

func (p *fakeProtocol) ResetAll(context.Context) error {
	p.resets.Add(1)
	return nil
}

func (p *fakeProtocol) Duration() time.Duration { return time.Minute }

func (p *fakeProtocol) Shares() (float64, float64) { return 0.7, 0.3 }

type fakeClaimer struct {
	sig string
	err error
	bal *fakeBalance
}

func (c *fakeClaimer) Claim(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if c.bal != nil {
		c.bal.add(0.25)
	}
	return c.sig, nil
}

type fakeBalance struct {
	mu  sync.Mutex
	sol float64
}

func (b *fakeBalance) CurrentBalance(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sol, nil
}

func (b *fakeBalance) add(d float64) {
	b.mu.Lock()
	b.sol += d
	b.mu.Unlock()
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	protocol *fakeProtocol
	state    *cache.State
	cycles   *memory.CycleStore
	trades   *memory.TradeStore
	events   *memory.TradeEventStore
	balance  *fakeBalance
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		protocol: &fakeProtocol{},
		state:    cache.NewState(cache.NewMemoryStore()),
		cycles:   memory.NewCycleStore(),
		trades:   memory.NewTradeStore(),
		events:   memory.NewTradeEventStore(),
		balance:  &fakeBalance{sol: 1.0},
	}
	env.srv = NewServer(cfg, Deps{
		Protocol: env.protocol,
		State:    env.state,
		Cycles:   env.cycles,
		Trades:   env.trades,
		Events:   env.events,
		Claimer:  &fakeClaimer{sig: "claim-sig", bal: env.balance},
		Balance:  env.balance,
	}, zerolog.Nop())
	env.srv.sleep = func(context.Context, time.Duration) error { return nil }
	env.handler = env.srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func zeroLogger() zerolog.Logger { return zerolog.Nop() }
