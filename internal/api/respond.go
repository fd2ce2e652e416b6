package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"boil-protocol/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// queryLimit parses ?limit, falling back to def when absent or invalid
// and capping at max when max > 0.
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// percent renders a share as a whole percentage without float noise.
func percent(share float64) float64 {
	return decimal.NewFromFloat(share).Shift(2).Round(4).InexactFloat64()
}

// formatTokens renders a raw token balance in display units, two decimals.
func formatTokens(raw float64) string {
	return decimal.NewFromFloat(raw).Shift(-domain.TokenDecimals).StringFixed(2)
}

func shortWallet(w string) string {
	if len(w) <= 8 {
		return w
	}
	return w[:4] + "..." + w[len(w)-4:]
}
