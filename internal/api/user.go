package api

import (
	"net/http"
	"time"

	"boil-protocol/internal/solana"
)

type userResponse struct {
	Wallet       string           `json:"wallet"`
	CurrentRound userCurrentRound `json:"currentRound"`
	Overall      userOverall      `json:"overall"`
}

type userCurrentRound struct {
	Rank            *int64  `json:"rank"`
	TotalBoughtSol  float64 `json:"totalBoughtSol"`
	IsParticipating bool    `json:"isParticipating"`
}

type userOverall struct {
	TotalWins           int64   `json:"totalWins"`
	TotalEarnedSol      float64 `json:"totalEarnedSol"`
	UnclaimedRewardsSol float64 `json:"unclaimedRewardsSol"`
}

type tradeView struct {
	RoundID     int64     `json:"roundId"`
	SolAmount   float64   `json:"solAmount"`
	TokenAmount float64   `json:"tokenAmount"`
	TxSignature string    `json:"txSignature"`
	Timestamp   time.Time `json:"timestamp"`
}

type userTradesResponse struct {
	Wallet string      `json:"wallet"`
	Trades []tradeView `json:"trades"`
	Count  int         `json:"count"`
}

// walletParam returns the {wallet} path value, or writes 400 and returns
// false when it is not a valid address.
func walletParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet := r.PathValue("wallet")
	if err := solana.ValidateAddress(wallet); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid wallet address")
		return "", false
	}
	return wallet, true
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	rank, bought, err := s.deps.State.BuyerPosition(ctx, wallet)
	if err != nil {
		s.logger.Error().Err(err).Str("wallet", wallet).Msg("user position")
		writeError(w, http.StatusInternalServerError, "Failed to get user stats")
		return
	}
	wins, err := s.deps.Cycles.CountWins(ctx, wallet)
	if err != nil {
		s.logger.Error().Err(err).Str("wallet", wallet).Msg("user wins")
		writeError(w, http.StatusInternalServerError, "Failed to get user stats")
		return
	}
	earned, err := s.deps.Cycles.TotalEarnings(ctx, wallet)
	if err != nil {
		s.logger.Error().Err(err).Str("wallet", wallet).Msg("user earnings")
		writeError(w, http.StatusInternalServerError, "Failed to get user stats")
		return
	}

	resp := userResponse{
		Wallet: wallet,
		CurrentRound: userCurrentRound{
			TotalBoughtSol:  bought,
			IsParticipating: rank > 0,
		},
		Overall: userOverall{TotalWins: wins, TotalEarnedSol: earned},
	}
	if rank > 0 {
		resp.CurrentRound.Rank = &rank
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserTrades(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(w, r)
	if !ok {
		return
	}

	trades, err := s.deps.Trades.GetByWallet(r.Context(), wallet, queryLimit(r, 50, 500))
	if err != nil {
		s.logger.Error().Err(err).Str("wallet", wallet).Msg("user trades")
		writeError(w, http.StatusInternalServerError, "Failed to get user trades")
		return
	}

	resp := userTradesResponse{Wallet: wallet, Trades: make([]tradeView, 0, len(trades)), Count: len(trades)}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, tradeView{
			RoundID:     t.RoundID,
			SolAmount:   t.SolAmount,
			TokenAmount: t.TokenAmount,
			TxSignature: t.TxSignature,
			Timestamp:   t.Timestamp.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
