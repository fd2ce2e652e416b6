package pumpportal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testStreamConfig(url string) StreamConfig {
	cfg := DefaultStreamConfig()
	cfg.URL = url
	cfg.Mint = testMint
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectAttempts = 2
	return cfg
}

func TestStream_SubscribesAndFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var sub struct {
			Method string   `json:"method"`
			Keys   []string `json:"keys"`
		}
		if err := json.Unmarshal(msg, &sub); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		assert.Equal(t, "subscribeTokenTrade", sub.Method)
		assert.Equal(t, []string{testMint}, sub.Keys)

		c.WriteJSON(map[string]string{"message": "Successfully subscribed to keys."})
		c.WriteJSON(TradeMessage{Mint: "otherMint", TxType: "buy", SolAmount: 1e9})
		c.WriteJSON(TradeMessage{Mint: testMint})
		c.WriteMessage(websocket.TextMessage, []byte("not json"))
		c.WriteJSON(TradeMessage{
			Signature:       "sigA",
			Mint:            testMint,
			TraderPublicKey: "walletA",
			TxType:          "buy",
			SolAmount:       5e8,
		})

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := NewStream(testStreamConfig(wsURL), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan TradeMessage, 10)
	errCh := make(chan error, 1)
	go func() { errCh <- stream.Run(ctx, out) }()

	select {
	case trade := <-out:
		assert.Equal(t, "sigA", trade.Signature)
		assert.Equal(t, "walletA", trade.TraderPublicKey)
		assert.Equal(t, 5e8, trade.SolAmount)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for trade")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Empty(t, out)
}

func TestStream_ReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := connections.Add(1)

		if _, _, err := c.ReadMessage(); err != nil {
			return
		}

		if n == 1 {
			// drop the first connection right after subscribing
			return
		}

		c.WriteJSON(TradeMessage{Signature: "afterReconnect", Mint: testMint, TxType: "sell"})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := NewStream(testStreamConfig(wsURL), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan TradeMessage, 1)
	go stream.Run(ctx, out)

	select {
	case trade := <-out:
		assert.Equal(t, "afterReconnect", trade.Signature)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for trade after reconnect")
	}
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestStream_GivesUpAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := NewStream(testStreamConfig(wsURL), zerolog.Nop())

	err := stream.Run(context.Background(), make(chan TradeMessage))
	require.ErrorIs(t, err, ErrReconnectsExhausted)
}
