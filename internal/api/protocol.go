package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"boil-protocol/internal/domain"
	"boil-protocol/internal/storage"
)

type alphaView struct {
	Wallet                string  `json:"wallet"`
	TokenBalance          float64 `json:"tokenBalance"`
	TokenBalanceFormatted string  `json:"tokenBalanceFormatted"`
}

type distributionView struct {
	AlphaPercent   float64 `json:"alphaPercent"`
	ShatterPercent float64 `json:"shatterPercent"`
}

type protocolStatusResponse struct {
	CycleNumber     int64            `json:"cycleNumber"`
	HeatLevel       int              `json:"heatLevel"`
	TimeLeftMs      int64            `json:"timeLeftMs"`
	TimeLeftSeconds int64            `json:"timeLeftSeconds"`
	TankSol         float64          `json:"tankSol"`
	TankUsd         float64          `json:"tankUsd"`
	Participants    int              `json:"participants"`
	AlphaClaw       *alphaView       `json:"alphaClaw"`
	Distribution    distributionView `json:"distribution"`
}

type championView struct {
	Wallet       string  `json:"wallet"`
	TokenBalance float64 `json:"tokenBalance"`
}

type legacyDistributionView struct {
	distributionView
	ChampionPercent float64 `json:"championPercent"`
	BuybackPercent  float64 `json:"buybackPercent"`
	HolderPercent   float64 `json:"holderPercent"`
	BoostPercent    float64 `json:"boostPercent"`
}

type currentRoundResponse struct {
	RoundNumber       int64                  `json:"roundNumber"`
	TimeLeftMs        int64                  `json:"timeLeftMs"`
	TimeLeftFormatted string                 `json:"timeLeftFormatted"`
	PotSizeSol        float64                `json:"potSizeSol"`
	PotSizeUsd        float64                `json:"potSizeUsd"`
	Participants      int                    `json:"participants"`
	Champion          *championView          `json:"champion"`
	HeatLevel         int                    `json:"heatLevel"`
	Distribution      legacyDistributionView `json:"distribution"`
}

type cycleView struct {
	CycleNumber     int64      `json:"cycleNumber"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	AlphaWallet     *string    `json:"alphaWallet"`
	AlphaBought     float64    `json:"alphaBought"`
	TotalTankSol    float64    `json:"totalTankSol"`
	AlphaExtraction float64    `json:"alphaExtraction"`
	ShatterAmount   float64    `json:"shatterAmount"`
	Participants    int        `json:"participants"`
	TxAlpha         *string    `json:"txAlpha"`
	TxShatter       *string    `json:"txShatter"`
	Status          string     `json:"status,omitempty"`
}

type roundView struct {
	RoundNumber    int64      `json:"roundNumber"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	ChampionWallet *string    `json:"championWallet"`
	ChampionBought float64    `json:"championBought"`
	TotalPotSol    float64    `json:"totalPotSol"`
	ChampionPayout float64    `json:"championPayout"`
	BuybackAmount  float64    `json:"buybackAmount"`
	Participants   int        `json:"participants"`
	TxChampion     *string    `json:"txChampion"`
	TxBuyback      *string    `json:"txBuyback"`
}

type historyResponse struct {
	Cycles []cycleView `json:"cycles"`
	Rounds []roundView `json:"rounds"`
}

func newCycleView(c *domain.Cycle) cycleView {
	return cycleView{
		CycleNumber:     c.CycleNumber,
		StartTime:       c.StartTime.UTC(),
		EndTime:         utcPtr(c.EndTime),
		AlphaWallet:     c.AlphaWallet,
		AlphaBought:     c.AlphaBought,
		TotalTankSol:    c.TotalTankSOL,
		AlphaExtraction: c.AlphaExtraction,
		ShatterAmount:   c.ShatterAmount,
		Participants:    c.Participants,
		TxAlpha:         c.TxAlpha,
		TxShatter:       c.TxShatter,
	}
}

func newRoundView(c *domain.Cycle) roundView {
	return roundView{
		RoundNumber:    c.CycleNumber,
		StartTime:      c.StartTime.UTC(),
		EndTime:        utcPtr(c.EndTime),
		ChampionWallet: c.AlphaWallet,
		ChampionBought: c.AlphaBought,
		TotalPotSol:    c.TotalTankSOL,
		ChampionPayout: c.AlphaExtraction,
		BuybackAmount:  c.ShatterAmount,
		Participants:   c.Participants,
		TxChampion:     c.TxAlpha,
		TxBuyback:      c.TxShatter,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *Server) distribution() distributionView {
	alpha, shatter := s.deps.Protocol.Shares()
	return distributionView{AlphaPercent: percent(alpha), ShatterPercent: percent(shatter)}
}

func (s *Server) handleProtocolStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Protocol.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("protocol status")
		writeError(w, http.StatusInternalServerError, "Failed to get protocol status")
		return
	}

	resp := protocolStatusResponse{
		CycleNumber:     st.CycleNumber,
		HeatLevel:       st.HeatLevel,
		TimeLeftMs:      st.TimeRemaining.Milliseconds(),
		TimeLeftSeconds: int64(st.TimeRemaining / time.Second),
		TankSol:         st.Tank,
		TankUsd:         st.Tank * s.cfg.SOLPrice,
		Participants:    st.Participants,
		Distribution:    s.distribution(),
	}
	if st.Alpha != nil {
		resp.AlphaClaw = &alphaView{
			Wallet:                st.Alpha.Wallet,
			TokenBalance:          st.Alpha.TokenBalance,
			TokenBalanceFormatted: formatTokens(st.Alpha.TokenBalance),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Protocol.Status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("current round")
		writeError(w, http.StatusInternalServerError, "Failed to get current round")
		return
	}

	dist := s.distribution()
	seconds := int64(st.TimeRemaining / time.Second)
	resp := currentRoundResponse{
		RoundNumber:       st.CycleNumber,
		TimeLeftMs:        st.TimeRemaining.Milliseconds(),
		TimeLeftFormatted: strconv.FormatInt(seconds, 10) + "s",
		PotSizeSol:        st.Tank,
		PotSizeUsd:        st.Tank * s.cfg.SOLPrice,
		Participants:      st.Participants,
		HeatLevel:         st.HeatLevel,
		Distribution: legacyDistributionView{
			distributionView: dist,
			ChampionPercent:  dist.AlphaPercent,
			BuybackPercent:   dist.ShatterPercent,
		},
	}
	if st.Alpha != nil {
		resp.Champion = &championView{Wallet: st.Alpha.Wallet, TokenBalance: st.Alpha.TokenBalance}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10, 100)
	cycles, err := s.deps.Cycles.GetRecentCompleted(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("cycle history")
		writeError(w, http.StatusInternalServerError, "Failed to get cycle history")
		return
	}

	resp := historyResponse{
		Cycles: make([]cycleView, 0, len(cycles)),
		Rounds: make([]roundView, 0, len(cycles)),
	}
	for _, c := range cycles {
		resp.Cycles = append(resp.Cycles, newCycleView(c))
		resp.Rounds = append(resp.Rounds, newRoundView(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(r.PathValue("cycleNumber"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cycle number")
		return
	}

	c, err := s.deps.Cycles.GetByNumber(r.Context(), n)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Cycle not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("cycle", n).Msg("get cycle")
		writeError(w, http.StatusInternalServerError, "Failed to get cycle")
		return
	}

	view := newCycleView(c)
	view.Status = c.Status
	writeJSON(w, http.StatusOK, view)
}
