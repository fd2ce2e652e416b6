package api

import (
	"net/http"
	"time"

	"boil-protocol/internal/domain"
)

type agentStatusResponse struct {
	Protocol             string            `json:"protocol"`
	Version              string            `json:"version"`
	Tagline              string            `json:"tagline"`
	Cycle                agentCycle        `json:"cycle"`
	Tank                 agentTank         `json:"tank"`
	AlphaClaw            *agentAlpha       `json:"alphaClaw"`
	Distribution         agentDistribution `json:"distribution"`
	CycleDurationMs      int64             `json:"cycleDurationMs"`
	CycleDurationSeconds float64           `json:"cycleDurationSeconds"`
	Timestamp            time.Time         `json:"timestamp"`
	TokenMint            string            `json:"tokenMint"`
}

type agentCycle struct {
	Number          int64 `json:"number"`
	HeatLevel       int   `json:"heatLevel"`
	TimeLeftMs      int64 `json:"timeLeftMs"`
	TimeLeftSeconds int64 `json:"timeLeftSeconds"`
	IsBoiling       bool  `json:"isBoiling"`
	IsResolving     bool  `json:"isResolving"`
}

type agentTank struct {
	ValueSol     float64 `json:"valueSol"`
	Participants int     `json:"participants"`
}

type agentAlpha struct {
	Wallet    string  `json:"wallet"`
	Position  float64 `json:"position"`
	IsLeading bool    `json:"isLeading"`
}

type agentDistribution struct {
	distributionView
	AlphaEstimate   float64 `json:"alphaEstimate"`
	ShatterEstimate float64 `json:"shatterEstimate"`
}

type agentPosition struct {
	Rank        int     `json:"rank"`
	Wallet      string  `json:"wallet"`
	PositionSol float64 `json:"positionSol"`
	IsAlpha     bool    `json:"isAlpha"`
}

type agentCycleResult struct {
	CycleNumber     int64      `json:"cycleNumber"`
	AlphaWallet     *string    `json:"alphaWallet"`
	AlphaExtraction float64    `json:"alphaExtraction"`
	ShatterAmount   float64    `json:"shatterAmount"`
	TotalTank       float64    `json:"totalTank"`
	Participants    int        `json:"participants"`
	TxAlpha         *string    `json:"txAlpha"`
	TxShatter       *string    `json:"txShatter"`
	Timestamp       *time.Time `json:"timestamp"`
}

type agentVolumeResponse struct {
	CycleNumber    int64   `json:"cycleNumber"`
	BuyVolumeSol   float64 `json:"buyVolumeSol"`
	SellVolumeSol  float64 `json:"sellVolumeSol"`
	TotalVolumeSol float64 `json:"totalVolumeSol"`
	Trades         int64   `json:"trades"`
	Wallets        int64   `json:"wallets"`
	Source         string  `json:"source"`
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Protocol.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("agent status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":    "Failed to get protocol status",
			"protocol": ProtocolName,
		})
		return
	}

	tank := max(st.Tank, st.TankEstimate)
	alpha, _ := s.deps.Protocol.Shares()
	split := domain.ComputeSplit(tank, alpha)
	duration := s.deps.Protocol.Duration()

	resp := agentStatusResponse{
		Protocol: ProtocolName,
		Version:  Version,
		Tagline:  "Dominant position wins. Rest get cooked.",
		Cycle: agentCycle{
			Number:          st.CycleNumber,
			HeatLevel:       st.HeatLevel,
			TimeLeftMs:      st.TimeRemaining.Milliseconds(),
			TimeLeftSeconds: int64(st.TimeRemaining / time.Second),
			IsBoiling:       st.HeatLevel >= 100,
			IsResolving:     st.Resolving,
		},
		Tank: agentTank{ValueSol: tank, Participants: st.Participants},
		Distribution: agentDistribution{
			distributionView: s.distribution(),
			AlphaEstimate:    split.Extraction,
			ShatterEstimate:  split.Burn,
		},
		CycleDurationMs:      duration.Milliseconds(),
		CycleDurationSeconds: duration.Seconds(),
		Timestamp:            s.now().UTC(),
		TokenMint:            s.cfg.Mint,
	}
	if st.Alpha != nil {
		resp.AlphaClaw = &agentAlpha{
			Wallet:    st.Alpha.Wallet,
			Position:  domain.UIAmount(st.Alpha.TokenBalance),
			IsLeading: true,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgentAlpha(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Protocol.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("agent alpha")
		writeError(w, http.StatusInternalServerError, "Failed to get Alpha Claw")
		return
	}

	if st.Alpha == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"hasAlpha":    false,
			"message":     "No Alpha Claw yet. Be first to take position.",
			"cycleNumber": st.CycleNumber,
			"heatLevel":   st.HeatLevel,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hasAlpha":        true,
		"wallet":          st.Alpha.Wallet,
		"position":        domain.UIAmount(st.Alpha.TokenBalance),
		"cycleNumber":     st.CycleNumber,
		"heatLevel":       st.HeatLevel,
		"timeLeftSeconds": int64(st.TimeRemaining / time.Second),
	})
}

func (s *Server) handleAgentPositions(w http.ResponseWriter, r *http.Request) {
	buyers, err := s.deps.State.TopBuyers(r.Context(), queryLimit(r, 10, 50))
	if err != nil {
		s.logger.Error().Err(err).Msg("agent positions")
		writeError(w, http.StatusInternalServerError, "Failed to get positions")
		return
	}

	positions := make([]agentPosition, 0, len(buyers))
	for _, b := range buyers {
		positions = append(positions, agentPosition{
			Rank:        b.Rank,
			Wallet:      b.Wallet,
			PositionSol: b.TotalBought,
			IsAlpha:     b.Rank == 1,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions":      positions,
		"totalPositions": len(positions),
	})
}

func (s *Server) handleAgentHistory(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.deps.Cycles.GetRecentCompleted(r.Context(), queryLimit(r, 5, 20))
	if err != nil {
		s.logger.Error().Err(err).Msg("agent history")
		writeError(w, http.StatusInternalServerError, "Failed to get history")
		return
	}

	out := make([]agentCycleResult, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, agentCycleResult{
			CycleNumber:     c.CycleNumber,
			AlphaWallet:     c.AlphaWallet,
			AlphaExtraction: c.AlphaExtraction,
			ShatterAmount:   c.ShatterAmount,
			TotalTank:       c.TotalTankSOL,
			Participants:    c.Participants,
			TxAlpha:         c.TxAlpha,
			TxShatter:       c.TxShatter,
			Timestamp:       utcPtr(c.EndTime),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": out})
}

// handleAgentVolume reports the active cycle's volume from the event log,
// or from the cache counter when no event store is wired.
func (s *Server) handleAgentVolume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	number, err := s.deps.State.CycleNumber(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("agent volume cycle")
		writeError(w, http.StatusInternalServerError, "Failed to get volume")
		return
	}

	if s.deps.Events != nil {
		v, err := s.deps.Events.GetCycleVolume(ctx, number)
		if err == nil {
			writeJSON(w, http.StatusOK, agentVolumeResponse{
				CycleNumber:    number,
				BuyVolumeSol:   v.BuyVolume,
				SellVolumeSol:  v.SellVolume,
				TotalVolumeSol: v.Total(),
				Trades:         v.Trades,
				Wallets:        v.Wallets,
				Source:         "events",
			})
			return
		}
		s.logger.Warn().Err(err).Int64("cycle", number).Msg("event volume unavailable, using cache")
	}

	total, err := s.deps.State.CycleVolume(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("agent volume cache")
		writeError(w, http.StatusInternalServerError, "Failed to get volume")
		return
	}
	writeJSON(w, http.StatusOK, agentVolumeResponse{
		CycleNumber:    number,
		TotalVolumeSol: total,
		Source:         "cache",
	})
}

func (s *Server) handleAgentPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"protocol": ProtocolName,
		"message":  "Molt or meltdown",
	})
}
