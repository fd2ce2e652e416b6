// Package pumpportal talks to the PumpPortal and pump.fun trading APIs:
// transaction building for buys and fee claims, plus the trade stream.
package pumpportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultAPIURL       = "https://pumpportal.fun/api"
	DefaultPumpFunURL   = "https://pump.fun/api"
	DefaultTimeout      = 30 * time.Second
	DefaultPriorityFee  = 0.0005
	ClaimPriorityFee    = 0.0001
	MinTransactionBytes = 100
	PoolPump            = "pump"
)

// ErrUnexpectedResponse is returned when an endpoint answers 200 with a
// body too short to be a serialized transaction.
var ErrUnexpectedResponse = errors.New("unexpected response")

// APIError is a non-200 answer from a trading endpoint.
type APIError struct {
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.Status, e.Body)
}

// Sender signs and submits serialized transactions built by the APIs.
// *solana.Wallet implements it.
type Sender interface {
	Address() string
	SignAndSend(ctx context.Context, unsigned []byte) (string, error)
}

// TradeLocalRequest is the body of POST /trade-local.
type TradeLocalRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           float64 `json:"amount,omitempty"`
	DenominatedInSol string  `json:"denominatedInSol,omitempty"`
	Slippage         float64 `json:"slippage,omitempty"`
	PriorityFee      float64 `json:"priorityFee"`
	Pool             string  `json:"pool"`
}

// PumpFunTradeRequest is the body of POST pump.fun /trade.
type PumpFunTradeRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           float64 `json:"amount"`
	DenominatedInSol bool    `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
}

// Client builds unsigned transactions through the trading APIs.
type Client struct {
	apiURL     string
	pumpFunURL string
	client     *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a client for the PumpPortal API at apiURL and the
// pump.fun API at pumpFunURL. Empty URLs fall back to the public defaults.
func NewClient(apiURL, pumpFunURL string, opts ...ClientOption) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if pumpFunURL == "" {
		pumpFunURL = DefaultPumpFunURL
	}
	c := &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		pumpFunURL: strings.TrimRight(pumpFunURL, "/"),
		client:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TradeLocal requests an unsigned transaction from PumpPortal.
func (c *Client) TradeLocal(ctx context.Context, req TradeLocalRequest) ([]byte, error) {
	return c.postForTransaction(ctx, c.apiURL+"/trade-local", req)
}

// PumpFunTrade requests an unsigned transaction from pump.fun.
func (c *Client) PumpFunTrade(ctx context.Context, req PumpFunTradeRequest) ([]byte, error) {
	return c.postForTransaction(ctx, c.pumpFunURL+"/trade", req)
}

func (c *Client) postForTransaction(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{URL: url, Status: resp.StatusCode, Body: string(respBody)}
	}

	if len(respBody) < MinTransactionBytes {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, string(respBody))
	}

	return respBody, nil
}
