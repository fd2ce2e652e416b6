package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boil-protocol/internal/cache"
	"boil-protocol/internal/cycle"
	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
	"boil-protocol/internal/tank"
)

func statusFixture() cycle.Status {
	return cycle.Status{
		CycleNumber:   3,
		Duration:      time.Minute,
		TimeRemaining: 42500 * time.Millisecond,
		HeatLevel:     29,
		Tank:          0.5,
		TankEstimate:  0.2,
		Participants:  17,
		Alpha:         &domain.Holder{Rank: 1, Wallet: walletA, TokenBalance: 12_345_678},
	}
}

func TestProtocolStatus(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.protocol.status = statusFixture()

	for _, path := range []string{"/api/protocol/status", "/api/round/status"} {
		rec := env.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		body := decode(t, rec)
		assert.Equal(t, float64(3), body["cycleNumber"])
		assert.Equal(t, float64(29), body["heatLevel"])
		assert.Equal(t, float64(42500), body["timeLeftMs"])
		assert.Equal(t, float64(42), body["timeLeftSeconds"])
		assert.Equal(t, 0.5, body["tankSol"])
		assert.Equal(t, float64(95), body["tankUsd"])
		assert.Equal(t, float64(17), body["participants"])

		alpha := body["alphaClaw"].(map[string]any)
		assert.Equal(t, walletA, alpha["wallet"])
		assert.Equal(t, "12.35", alpha["tokenBalanceFormatted"])

		dist := body["distribution"].(map[string]any)
		assert.Equal(t, float64(70), dist["alphaPercent"])
		assert.Equal(t, float64(30), dist["shatterPercent"])
	}
}

func TestProtocolStatus_NoAlpha(t *testing.T) {
	env := newTestEnv(t, Config{})
	st := statusFixture()
	st.Alpha = nil
	env.protocol.status = st

	body := decode(t, env.do(t, http.MethodGet, "/api/protocol/status", ""))
	assert.Nil(t, body["alphaClaw"])
}

func TestProtocolStatus_Error(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.protocol.statusErr = errors.New("redis down")

	rec := env.do(t, http.MethodGet, "/api/protocol/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to get protocol status", decode(t, rec)["error"])
}

func TestCurrentRound(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.protocol.status = statusFixture()

	rec := env.do(t, http.MethodGet, "/api/round/current", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(3), body["roundNumber"])
	assert.Equal(t, "42s", body["timeLeftFormatted"])
	assert.Equal(t, 0.5, body["potSizeSol"])
	champion := body["champion"].(map[string]any)
	assert.Equal(t, walletA, champion["wallet"])

	dist := body["distribution"].(map[string]any)
	assert.Equal(t, float64(70), dist["alphaPercent"])
	assert.Equal(t, float64(70), dist["championPercent"])
	assert.Equal(t, float64(30), dist["buybackPercent"])
	assert.Equal(t, float64(0), dist["holderPercent"])
	assert.Equal(t, float64(0), dist["boostPercent"])
}

func seedCycles(t *testing.T, env *testEnv, n int) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= int64(n); i++ {
		_, err := env.cycles.Create(ctx, i, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		leader := walletA
		alphaTx := "tx-alpha"
		require.NoError(t, env.cycles.Complete(ctx, i, domain.CycleCompletion{
			EndTime:         start.Add(time.Duration(i+1) * time.Minute),
			AlphaWallet:     &leader,
			AlphaBought:     10,
			TotalTankSOL:    1,
			AlphaExtraction: 0.7,
			ShatterAmount:   0.3,
			Participants:    4,
			TxAlpha:         &alphaTx,
		}))
	}
	_, err := env.cycles.Create(ctx, int64(n+1), start.Add(time.Hour))
	require.NoError(t, err)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedCycles(t, env, 3)

	rec := env.do(t, http.MethodGet, "/api/protocol/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	cycles := body["cycles"].([]any)
	rounds := body["rounds"].([]any)
	require.Len(t, cycles, 2)
	require.Len(t, rounds, 2)

	first := cycles[0].(map[string]any)
	assert.Equal(t, float64(3), first["cycleNumber"])
	assert.Equal(t, walletA, first["alphaWallet"])
	assert.Equal(t, 0.7, first["alphaExtraction"])
	assert.Equal(t, "tx-alpha", first["txAlpha"])
	assert.Nil(t, first["txShatter"])
	assert.NotContains(t, first, "status")

	legacy := rounds[0].(map[string]any)
	assert.Equal(t, float64(3), legacy["roundNumber"])
	assert.Equal(t, 0.7, legacy["championPayout"])
	assert.Equal(t, 0.3, legacy["buybackAmount"])
}

func TestCycleByNumber(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedCycles(t, env, 1)

	rec := env.do(t, http.MethodGet, "/api/protocol/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid cycle number", decode(t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/protocol/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cycle not found", decode(t, rec)["error"])

	rec = env.do(t, http.MethodGet, "/api/round/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, domain.CycleStatusActive, body["status"])
	assert.Nil(t, body["endTime"])

	body = decode(t, env.do(t, http.MethodGet, "/api/protocol/1", ""))
	assert.Equal(t, domain.CycleStatusCompleted, body["status"])
	assert.NotNil(t, body["endTime"])
}

func seedHolders(t *testing.T, env *testEnv) time.Time {
	t.Helper()
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, env.state.SetHolders(context.Background(), []domain.Holder{
		{Rank: 1, Wallet: walletA, TokenBalance: 5_000_000},
		{Rank: 2, Wallet: walletB, TokenBalance: 1_250_000},
	}, at))
	return at
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t, Config{})
	at := seedHolders(t, env)

	rec := env.do(t, http.MethodGet, "/api/leaderboard?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	entries := body["leaderboard"].([]any)
	require.Len(t, entries, 1)
	top := entries[0].(map[string]any)
	assert.Equal(t, float64(1), top["rank"])
	assert.Equal(t, "7xKX...gAsU", top["walletShort"])
	assert.Equal(t, "5.00", top["tokenBalanceFormatted"])
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(2), body["totalHolders"])
	assert.Equal(t, float64(at.UnixMilli()), body["lastUpdate"])
	assert.Equal(t, "blockchain", body["source"])
}

func TestLeaderboard_Empty(t *testing.T) {
	env := newTestEnv(t, Config{})
	body := decode(t, env.do(t, http.MethodGet, "/api/leaderboard", ""))
	assert.Empty(t, body["leaderboard"])
	assert.Nil(t, body["lastUpdate"])
}

func TestLeaderboardPosition(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedHolders(t, env)

	rec := env.do(t, http.MethodGet, "/api/leaderboard/position/short", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, env.do(t, http.MethodGet, "/api/leaderboard/position/"+walletB, ""))
	assert.Equal(t, true, body["inLeaderboard"])
	assert.Equal(t, float64(2), body["rank"])
	assert.Equal(t, "1.25", body["tokenBalanceFormatted"])

	other := "So11111111111111111111111111111111111111112"
	body = decode(t, env.do(t, http.MethodGet, "/api/leaderboard/position/"+other, ""))
	assert.Equal(t, false, body["inLeaderboard"])
	assert.Nil(t, body["rank"])
	assert.Equal(t, float64(0), body["tokenBalance"])
	assert.NotContains(t, body, "tokenBalanceFormatted")
}

// panicStore and panicCycles fail any access.
type panicStore struct{ cache.Store }

type panicCycles struct{ storage.CycleStore }

func TestUser_InvalidWalletNeverTouchesStorage(t *testing.T) {
	srv := NewServer(Config{}, Deps{
		Protocol: &fakeProtocol{},
		State:    cache.NewState(panicStore{}),
		Cycles:   panicCycles{},
	}, zeroLogger())
	env := &testEnv{handler: srv.Handler()}

	for _, wallet := range []string{
		"short",
		"0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", // not base58
		"1111111111111111111111111111111111111111111111", // too long
	} {
		for _, path := range []string{"/api/user/" + wallet, "/api/user/" + wallet + "/trades"} {
			rec := env.do(t, http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, path)
			assert.Equal(t, "Invalid wallet address", decode(t, rec)["error"], path)
		}
	}
}

func TestUser(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	seedCycles(t, env, 2)
	require.NoError(t, env.state.AddBuyerAmount(ctx, walletB, 3))
	require.NoError(t, env.state.AddBuyerAmount(ctx, walletA, 1.5))

	body := decode(t, env.do(t, http.MethodGet, "/api/user/"+walletA, ""))
	assert.Equal(t, walletA, body["wallet"])
	current := body["currentRound"].(map[string]any)
	assert.Equal(t, float64(2), current["rank"])
	assert.Equal(t, 1.5, current["totalBoughtSol"])
	assert.Equal(t, true, current["isParticipating"])

	overall := body["overall"].(map[string]any)
	assert.Equal(t, float64(2), overall["totalWins"])
	assert.InDelta(t, 1.4, overall["totalEarnedSol"], 1e-9)
	assert.Equal(t, float64(0), overall["unclaimedRewardsSol"])

	body = decode(t, env.do(t, http.MethodGet, "/api/user/So11111111111111111111111111111111111111112", ""))
	current = body["currentRound"].(map[string]any)
	assert.Nil(t, current["rank"])
	assert.Equal(t, false, current["isParticipating"])
}

func TestUserTrades(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.trades.Insert(ctx, &domain.Trade{
			RoundID:     int64(i + 1),
			Wallet:      walletA,
			SolAmount:   0.1 * float64(i+1),
			TokenAmount: 1000,
			TxSignature: "sig-" + string(rune('a'+i)),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	body := decode(t, env.do(t, http.MethodGet, "/api/user/"+walletA+"/trades?limit=2", ""))
	assert.Equal(t, float64(2), body["count"])
	trades := body["trades"].([]any)
	require.Len(t, trades, 2)
	assert.Equal(t, "sig-c", trades[0].(map[string]any)["txSignature"])
	assert.Equal(t, float64(3), trades[0].(map[string]any)["roundId"])
}

func TestAgentStatus_Cached(t *testing.T) {
	env := newTestEnv(t, Config{Mint: walletB})
	env.protocol.status = statusFixture()

	rec := env.do(t, http.MethodGet, "/api/agent/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)

	cyc := body["cycle"].(map[string]any)
	assert.Equal(t, float64(3), cyc["number"])
	assert.Equal(t, false, cyc["isBoiling"])
	tankView := body["tank"].(map[string]any)
	assert.Equal(t, 0.5, tankView["valueSol"])
	dist := body["distribution"].(map[string]any)
	assert.InDelta(t, 0.35, dist["alphaEstimate"], 1e-9)
	assert.InDelta(t, 0.15, dist["shatterEstimate"], 1e-9)
	assert.Equal(t, float64(60000), body["cycleDurationMs"])
	assert.Equal(t, walletB, body["tokenMint"])
	alpha := body["alphaClaw"].(map[string]any)
	assert.InDelta(t, 12.345678, alpha["position"], 1e-9)

	rec = env.do(t, http.MethodGet, "/api/agent/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), env.protocol.statusCalls.Load())
}

func TestAgentAlpha(t *testing.T) {
	env := newTestEnv(t, Config{})
	st := statusFixture()
	st.Alpha = nil
	env.protocol.status = st

	body := decode(t, env.do(t, http.MethodGet, "/api/agent/alpha", ""))
	assert.Equal(t, false, body["hasAlpha"])
	assert.Equal(t, float64(3), body["cycleNumber"])
}

func TestAgentPositions(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	require.NoError(t, env.state.AddBuyerAmount(ctx, walletA, 2))
	require.NoError(t, env.state.AddBuyerAmount(ctx, walletB, 1))

	body := decode(t, env.do(t, http.MethodGet, "/api/agent/positions", ""))
	positions := body["positions"].([]any)
	require.Len(t, positions, 2)
	first := positions[0].(map[string]any)
	assert.Equal(t, walletA, first["wallet"])
	assert.Equal(t, true, first["isAlpha"])
	assert.Equal(t, float64(2), body["totalPositions"])
}

func TestAgentHistory(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedCycles(t, env, 8)

	body := decode(t, env.do(t, http.MethodGet, "/api/agent/history", ""))
	assert.Len(t, body["cycles"].([]any), 5)
}

func TestAgentVolume(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	require.NoError(t, env.state.SetCycleNumber(ctx, 4))
	require.NoError(t, env.events.InsertBulk(ctx, []*domain.TradeEvent{
		{Signature: "s1", Wallet: walletA, Side: domain.TradeSideBuy, SolAmount: 1, CycleNumber: 4},
		{Signature: "s2", Wallet: walletB, Side: domain.TradeSideSell, SolAmount: 0.5, CycleNumber: 4},
		{Signature: "s3", Wallet: walletB, Side: domain.TradeSideBuy, SolAmount: 9, CycleNumber: 3},
	}))

	body := decode(t, env.do(t, http.MethodGet, "/api/agent/volume", ""))
	assert.Equal(t, float64(4), body["cycleNumber"])
	assert.Equal(t, float64(1), body["buyVolumeSol"])
	assert.Equal(t, 0.5, body["sellVolumeSol"])
	assert.Equal(t, 1.5, body["totalVolumeSol"])
	assert.Equal(t, float64(2), body["trades"])
	assert.Equal(t, "events", body["source"])
}

func TestAgentVolume_CacheFallback(t *testing.T) {
	state := cache.NewState(cache.NewMemoryStore())
	_, err := state.AddCycleVolume(context.Background(), 2.5)
	require.NoError(t, err)
	srv := NewServer(Config{}, Deps{Protocol: &fakeProtocol{}, State: state}, zeroLogger())
	env := &testEnv{handler: srv.Handler()}

	body := decode(t, env.do(t, http.MethodGet, "/api/agent/volume", ""))
	assert.Equal(t, 2.5, body["totalVolumeSol"])
	assert.Equal(t, "cache", body["source"])
}

func TestAgentPing(t *testing.T) {
	env := newTestEnv(t, Config{})
	body := decode(t, env.do(t, http.MethodGet, "/api/agent/ping", ""))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ProtocolName, body["protocol"])
}

func TestTestRoutes_DisabledByDefault(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/api/test/reset-all", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, env.protocol.resets.Load())
}

func TestSimulateBuy(t *testing.T) {
	env := newTestEnv(t, Config{EnableTest: true})

	rec := env.do(t, http.MethodPost, "/api/test/simulate-buy", `{"wallet":"`+walletA+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "wallet and solAmount required", decode(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/api/test/simulate-buy", `{"wallet":"`+walletA+`","solAmount":0.4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rank, total, err := env.state.BuyerPosition(context.Background(), walletA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)
	assert.InDelta(t, 0.4, total, 1e-9)
}

func TestForceRoundEnd(t *testing.T) {
	env := newTestEnv(t, Config{EnableTest: true})

	rec := env.do(t, http.MethodPost, "/api/test/force-round-end", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.protocol.resolveRan = true
	env.protocol.resolution = &cycle.Resolution{
		CycleNumber: 3,
		NextCycle:   4,
		Outcome:     cycle.OutcomeCompleted,
		Tank:        tank.Estimate{Value: 0.5, Source: "balance_delta"},
		Split:       domain.ComputeSplit(0.5, 0.7),
	}
	rec = env.do(t, http.MethodPost, "/api/test/force-round-end", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	res := body["resolution"].(map[string]any)
	assert.Equal(t, float64(4), res["nextCycle"])
	assert.Equal(t, "balance_delta", res["tankSource"])
	assert.Equal(t, int32(2), env.protocol.resolveCalls.Load())
}

func TestClaimRewards(t *testing.T) {
	env := newTestEnv(t, Config{EnableTest: true})

	body := decode(t, env.do(t, http.MethodPost, "/api/test/claim-rewards", ""))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "claim-sig", body["txSignature"])
	assert.Equal(t, 1.0, body["balanceBefore"])
	assert.Equal(t, 1.25, body["balanceAfter"])
	assert.InDelta(t, 0.25, body["claimed"], 1e-9)
}

func TestClaimRewards_Failure(t *testing.T) {
	env := newTestEnv(t, Config{EnableTest: true})
	env.srv.deps.Claimer = &fakeClaimer{err: errors.New("no fees to claim")}

	body := decode(t, env.do(t, http.MethodPost, "/api/test/claim-rewards", ""))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "no fees to claim", body["error"])
	assert.Equal(t, float64(0), body["claimed"])
}

func TestResetAll(t *testing.T) {
	env := newTestEnv(t, Config{EnableTest: true})
	rec := env.do(t, http.MethodPost, "/api/test/reset-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), env.protocol.resets.Load())
}

func TestFullCycle(t *testing.T) {
	env := newTestEnv(t, Config{EnableTest: true})

	rec := env.do(t, http.MethodPost, "/api/test/full-cycle", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "championWallet required", decode(t, rec)["error"])

	env.protocol.resolveRan = true
	env.protocol.resolution = &cycle.Resolution{CycleNumber: 1, NextCycle: 2, Outcome: cycle.OutcomeCompleted}
	rec = env.do(t, http.MethodPost, "/api/test/full-cycle", `{"championWallet":"`+walletA+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 1.0, body["balanceBefore"])
	assert.Equal(t, 1.25, body["balanceAfterClaim"])
	assert.InDelta(t, 0.25, body["claimed"], 1e-9)
	assert.Len(t, body["steps"].([]any), 6)

	_, total, err := env.state.BuyerPosition(context.Background(), walletA)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, total, 1e-9)
}
