package pumpportal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"boil-protocol/internal/observability"
)

// DefaultStreamURL is the public PumpPortal data websocket.
const DefaultStreamURL = "wss://pumpportal.fun/api/data"

// ErrReconnectsExhausted is returned by Run after the last reconnect failed.
var ErrReconnectsExhausted = errors.New("max reconnection attempts reached")

// StreamConfig configures Stream behavior.
type StreamConfig struct {
	// URL is the websocket endpoint.
	URL string
	// Mint is the token whose trades are subscribed.
	Mint string
	// MaxReconnectAttempts bounds consecutive failed reconnects.
	MaxReconnectAttempts int
	// ReconnectDelay is multiplied by the attempt number.
	ReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:                  DefaultStreamURL,
		MaxReconnectAttempts: 10,
		ReconnectDelay:       5 * time.Second,
		PingInterval:         30 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// TradeMessage is a trade event pushed by the stream.
type TradeMessage struct {
	Signature       string  `json:"signature"`
	Mint            string  `json:"mint"`
	TraderPublicKey string  `json:"traderPublicKey"`
	TxType          string  `json:"txType"`
	SolAmount       float64 `json:"solAmount"` // lamports
	TokenAmount     float64 `json:"tokenAmount"`
	MarketCapSol    float64 `json:"marketCapSol"`
	Timestamp       int64   `json:"timestamp"` // unix ms, 0 when absent
}

// Stream subscribes to token trades and reconnects on failure.
type Stream struct {
	config StreamConfig
	dialer websocket.Dialer
	logger zerolog.Logger
}

// NewStream creates a trade stream.
func NewStream(config StreamConfig, logger zerolog.Logger) *Stream {
	if config.URL == "" {
		config.URL = DefaultStreamURL
	}
	return &Stream{
		config: config,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With().Str("component", "trade_stream").Logger(),
	}
}

// Run connects, subscribes and delivers matching trades to out until ctx
// is cancelled or reconnects are exhausted. The attempt counter resets
// after every successful connection.
func (s *Stream) Run(ctx context.Context, out chan<- TradeMessage) error {
	attempts := 0
	for {
		connected, err := s.session(ctx, out)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			observability.RecordStreamError()
			s.logger.Warn().Err(err).Msg("trade stream disconnected")
		}

		if connected {
			attempts = 0
		}
		if attempts >= s.config.MaxReconnectAttempts {
			return ErrReconnectsExhausted
		}
		attempts++

		delay := s.config.ReconnectDelay * time.Duration(attempts)
		s.logger.Info().
			Dur("delay", delay).
			Int("attempt", attempts).
			Int("max_attempts", s.config.MaxReconnectAttempts).
			Msg("reconnecting trade stream")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one connection until it fails. connected reports whether
// the dial and subscription succeeded.
func (s *Stream) session(ctx context.Context, out chan<- TradeMessage) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		return fn()
	}

	sub := map[string]interface{}{
		"method": "subscribeTokenTrade",
		"keys":   []string{s.config.Mint},
	}
	if err := write(func() error { return conn.WriteJSON(sub) }); err != nil {
		conn.Close()
		return false, fmt.Errorf("write subscribe: %w", err)
	}
	s.logger.Info().Str("mint", s.config.Mint).Msg("subscribed to token trades")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepalive(ctx, conn, write, done)
	}()

	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("read: %w", err)
		}

		trade, ok := s.parse(message)
		if !ok {
			continue
		}

		select {
		case out <- trade:
		case <-ctx.Done():
			return true, nil
		}
	}
}

// keepalive pings on an interval and closes the connection on cancel so
// the blocked reader returns.
func (s *Stream) keepalive(ctx context.Context, conn *websocket.Conn, write func(func() error) error, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			write(func() error {
				return conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			})
			conn.Close()
			return
		case <-ticker.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				s.logger.Debug().Err(err).Msg("ping failed")
			}
		}
	}
}

// parse keeps trade messages for the subscribed mint; subscription
// acknowledgements and other status frames are dropped.
func (s *Stream) parse(message []byte) (TradeMessage, bool) {
	var trade TradeMessage
	if err := json.Unmarshal(message, &trade); err != nil {
		return TradeMessage{}, false
	}
	if trade.Mint != s.config.Mint || trade.TxType == "" {
		return TradeMessage{}, false
	}
	return trade, true
}
