package api

import (
	"encoding/json"
	"net/http"
	"time"

	"boil-protocol/internal/cycle"
)

type simulateBuyRequest struct {
	Wallet    string  `json:"wallet"`
	SolAmount float64 `json:"solAmount"`
}

type fullCycleRequest struct {
	ChampionWallet string  `json:"championWallet"`
	BuyAmount      float64 `json:"buyAmount"`
}

type claimResponse struct {
	Success       bool    `json:"success"`
	TxSignature   string  `json:"txSignature,omitempty"`
	Error         string  `json:"error,omitempty"`
	BalanceBefore float64 `json:"balanceBefore"`
	BalanceAfter  float64 `json:"balanceAfter"`
	Claimed       float64 `json:"claimed"`
}

type resolutionView struct {
	CycleNumber int64    `json:"cycleNumber"`
	NextCycle   int64    `json:"nextCycle"`
	Outcome     string   `json:"outcome"`
	TankSol     float64  `json:"tankSol"`
	TankSource  string   `json:"tankSource"`
	Distributed bool     `json:"distributed"`
	TxAlpha     *string  `json:"txAlpha"`
	TxShatter   *string  `json:"txShatter"`
	Errors      []string `json:"errors,omitempty"`
}

func newResolutionView(res *cycle.Resolution) *resolutionView {
	if res == nil {
		return nil
	}
	return &resolutionView{
		CycleNumber: res.CycleNumber,
		NextCycle:   res.NextCycle,
		Outcome:     res.Outcome,
		TankSol:     res.Split.Tank,
		TankSource:  res.Tank.Source,
		Distributed: res.Distributed,
		TxAlpha:     res.TxAlpha,
		TxShatter:   res.TxShatter,
		Errors:      res.Errors,
	}
}

func (s *Server) handleSimulateBuy(w http.ResponseWriter, r *http.Request) {
	var req simulateBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet == "" || req.SolAmount == 0 {
		writeError(w, http.StatusBadRequest, "wallet and solAmount required")
		return
	}

	if err := s.deps.State.AddBuyerAmount(r.Context(), req.Wallet, req.SolAmount); err != nil {
		s.logger.Error().Err(err).Msg("simulate buy")
		writeError(w, http.StatusInternalServerError, "Failed to simulate buy")
		return
	}
	s.logger.Info().Str("wallet", req.Wallet).Float64("sol", req.SolAmount).Msg("simulated buy")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Simulated buy recorded",
	})
}

func (s *Server) handleForceRoundEnd(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Msg("forcing cycle end")
	res, ran := s.deps.Protocol.Resolve(r.Context())
	if !ran {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": "Resolution already in progress",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Round ended manually",
		"resolution": newResolutionView(res),
	})
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, r *http.Request) {
	if s.deps.Claimer == nil || s.deps.Balance == nil {
		writeError(w, http.StatusServiceUnavailable, "Fee claiming not configured")
		return
	}
	ctx := r.Context()

	before, err := s.deps.Balance.CurrentBalance(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("claim rewards: balance before")
		writeError(w, http.StatusInternalServerError, "Failed to claim rewards")
		return
	}

	resp := claimResponse{Success: true, BalanceBefore: before}
	sig, err := s.deps.Claimer.Claim(ctx)
	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	}
	resp.TxSignature = sig

	after, err := s.deps.Balance.CurrentBalance(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("claim rewards: balance after")
		writeError(w, http.StatusInternalServerError, "Failed to claim rewards")
		return
	}
	resp.BalanceAfter = after
	resp.Claimed = after - before
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Protocol.ResetAll(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("reset all")
		writeError(w, http.StatusInternalServerError, "Failed to reset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All data reset. Cycle 1 starts on the next tick.",
	})
}

// handleFullCycle claims, records a buy for the champion, forces a
// resolve and reports the balance movement.
func (s *Server) handleFullCycle(w http.ResponseWriter, r *http.Request) {
	var req fullCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChampionWallet == "" {
		writeError(w, http.StatusBadRequest, "championWallet required")
		return
	}
	if req.BuyAmount <= 0 {
		req.BuyAmount = 0.1
	}
	ctx := r.Context()
	steps := make([]map[string]any, 0, 6)

	fail := func(step string, err error) {
		s.logger.Error().Err(err).Str("step", step).Msg("full cycle")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": step + ": " + err.Error(), "steps": steps})
	}

	var before, afterClaim float64
	if s.deps.Balance != nil {
		var err error
		if before, err = s.deps.Balance.CurrentBalance(ctx); err != nil {
			fail("check balance", err)
			return
		}
		steps = append(steps, map[string]any{"step": "Check balance", "balance": before})
	}

	if s.deps.Claimer != nil {
		sig, err := s.deps.Claimer.Claim(ctx)
		step := map[string]any{"step": "Claim rewards", "success": err == nil, "txSignature": sig}
		if err != nil {
			step["error"] = err.Error()
		}
		steps = append(steps, step)
		_ = s.sleep(ctx, s.cfg.ClaimSettle)
	}

	afterClaim = before
	if s.deps.Balance != nil {
		var err error
		if afterClaim, err = s.deps.Balance.CurrentBalance(ctx); err != nil {
			fail("balance after claim", err)
			return
		}
		steps = append(steps, map[string]any{"step": "Balance after claim", "balance": afterClaim, "claimed": afterClaim - before})
	}

	if err := s.deps.State.AddBuyerAmount(ctx, req.ChampionWallet, req.BuyAmount); err != nil {
		fail("simulate buy", err)
		return
	}
	steps = append(steps, map[string]any{"step": "Simulate buy", "wallet": req.ChampionWallet, "amount": req.BuyAmount})

	res, ran := s.deps.Protocol.Resolve(ctx)
	steps = append(steps, map[string]any{"step": "Force cycle end", "done": ran, "resolution": newResolutionView(res)})
	_ = s.sleep(ctx, s.cfg.TxSettle)

	final := afterClaim
	if s.deps.Balance != nil {
		var err error
		if final, err = s.deps.Balance.CurrentBalance(ctx); err != nil {
			fail("final balance", err)
			return
		}
	}
	steps = append(steps, map[string]any{"step": "Final balance", "balance": final, "distributed": afterClaim - final})

	writeJSON(w, http.StatusOK, map[string]any{
		"steps":             steps,
		"balanceBefore":     before,
		"balanceAfterClaim": afterClaim,
		"claimed":           afterClaim - before,
		"balanceFinal":      final,
		"distributed":       afterClaim - final,
		"completedAt":       s.now().UTC().Format(time.RFC3339),
	})
}
