package api

import (
	"net/http"

	"boil-protocol/internal/cache"
)

type leaderboardEntry struct {
	Rank                  int     `json:"rank"`
	Wallet                string  `json:"wallet"`
	WalletShort           string  `json:"walletShort"`
	TokenBalance          float64 `json:"tokenBalance"`
	TokenBalanceFormatted string  `json:"tokenBalanceFormatted"`
}

type leaderboardResponse struct {
	Leaderboard  []leaderboardEntry `json:"leaderboard"`
	Count        int                `json:"count"`
	TotalHolders int                `json:"totalHolders"`
	LastUpdate   *int64             `json:"lastUpdate"`
	Source       string             `json:"source"`
}

type positionResponse struct {
	Wallet                string  `json:"wallet"`
	InLeaderboard         bool    `json:"inLeaderboard"`
	Rank                  *int    `json:"rank"`
	TokenBalance          float64 `json:"tokenBalance"`
	TokenBalanceFormatted string  `json:"tokenBalanceFormatted,omitempty"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryLimit(r, 10, 50)

	holders, err := s.deps.State.Holders(ctx, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard holders")
		writeError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}
	total, err := s.deps.State.HolderCount(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard holder count")
		writeError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}
	updated, err := s.deps.State.HoldersLastUpdate(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("leaderboard last update")
	}

	resp := leaderboardResponse{
		Leaderboard:  make([]leaderboardEntry, 0, len(holders)),
		Count:        len(holders),
		TotalHolders: total,
		Source:       "blockchain",
	}
	if !updated.IsZero() {
		ms := updated.UnixMilli()
		resp.LastUpdate = &ms
	}
	for _, h := range holders {
		resp.Leaderboard = append(resp.Leaderboard, leaderboardEntry{
			Rank:                  h.Rank,
			Wallet:                h.Wallet,
			WalletShort:           shortWallet(h.Wallet),
			TokenBalance:          h.TokenBalance,
			TokenBalanceFormatted: formatTokens(h.TokenBalance),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboardPosition(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	if len(wallet) < cache.MinWalletLength {
		writeError(w, http.StatusBadRequest, "Invalid wallet address")
		return
	}

	holders, err := s.deps.State.Holders(r.Context(), 0)
	if err != nil {
		s.logger.Error().Err(err).Msg("leaderboard position")
		writeError(w, http.StatusInternalServerError, "Failed to get position")
		return
	}

	for _, h := range holders {
		if h.Wallet != wallet {
			continue
		}
		rank := h.Rank
		writeJSON(w, http.StatusOK, positionResponse{
			Wallet:                wallet,
			InLeaderboard:         true,
			Rank:                  &rank,
			TokenBalance:          h.TokenBalance,
			TokenBalanceFormatted: formatTokens(h.TokenBalance),
		})
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{Wallet: wallet})
}
