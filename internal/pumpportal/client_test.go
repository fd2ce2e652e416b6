package pumpportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "So11111111111111111111111111111111111111112"

var fakeTx = bytes.Repeat([]byte{1}, 200)

// fakeSender records transactions handed to it.
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (f *fakeSender) Address() string { return "creatorWallet" }

func (f *fakeSender) SignAndSend(_ context.Context, tx []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.err != nil {
		return "failedSig", f.err
	}
	return "sig" + string(rune('0'+len(f.sent))), nil
}

func TestClient_TradeLocal(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-local", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write(fakeTx)
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	tx, err := c.TradeLocal(context.Background(), TradeLocalRequest{
		PublicKey:   "pk",
		Action:      "collectCreatorFee",
		Mint:        testMint,
		PriorityFee: ClaimPriorityFee,
		Pool:        PoolPump,
	})
	require.NoError(t, err)
	assert.Equal(t, fakeTx, tx)

	assert.Equal(t, "collectCreatorFee", got["action"])
	assert.Equal(t, 0.0001, got["priorityFee"])
	assert.Equal(t, "pump", got["pool"])
	assert.NotContains(t, got, "amount")
}

func TestClient_NonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("no fees"))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	_, err := c.TradeLocal(context.Background(), TradeLocalRequest{Action: "collectCreatorFee"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "no fees", apiErr.Body)
}

func TestClient_ShortBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"nothing to claim"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.URL)
	_, err := c.TradeLocal(context.Background(), TradeLocalRequest{})
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestFeeClaimer_Claim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fakeTx)
	}))
	defer server.Close()

	sender := &fakeSender{}
	claimer := NewFeeClaimer(NewClient(server.URL, ""), sender, testMint, zerolog.Nop())

	sig, err := claimer.Claim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sig1", sig)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, fakeTx, sender.sent[0])
}

func TestFeeClaimer_APIFailureSendsNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := &fakeSender{}
	claimer := NewFeeClaimer(NewClient(server.URL, ""), sender, testMint, zerolog.Nop())

	_, err := claimer.Claim(context.Background())
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

type fakeProvider struct {
	name  string
	tx    []byte
	err   error
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) BuildBuy(_ context.Context, _, _ string, _ float64) ([]byte, error) {
	p.calls++
	return p.tx, p.err
}

func TestBuyChain_FallsThroughOnBuildFailure(t *testing.T) {
	first := &fakeProvider{name: "first", err: errors.New("503")}
	second := &fakeProvider{name: "second", tx: fakeTx}
	sender := &fakeSender{}

	chain := NewBuyChain(sender, zerolog.Nop(), first, second)
	sig, err := chain.Buy(context.Background(), testMint, 0.1485)

	require.NoError(t, err)
	assert.Equal(t, "sig1", sig)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestBuyChain_SendFailureIsFinal(t *testing.T) {
	first := &fakeProvider{name: "first", tx: fakeTx}
	second := &fakeProvider{name: "second", tx: fakeTx}
	sender := &fakeSender{err: errors.New("blockhash expired")}

	chain := NewBuyChain(sender, zerolog.Nop(), first, second)
	_, err := chain.Buy(context.Background(), testMint, 0.1)

	require.Error(t, err)
	assert.Equal(t, 0, second.calls)
	assert.Len(t, sender.sent, 1)
}

func TestBuyChain_AllFail(t *testing.T) {
	chain := NewBuyChain(&fakeSender{}, zerolog.Nop(),
		&fakeProvider{name: "a", err: errors.New("down")},
		&fakeProvider{name: "b", err: errors.New("down")},
	)

	_, err := chain.Buy(context.Background(), testMint, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all swap APIs failed")
	assert.Contains(t, err.Error(), "a: down")
	assert.Contains(t, err.Error(), "b: down")
}

func TestBuyChain_NoProviders(t *testing.T) {
	_, err := NewBuyChain(&fakeSender{}, zerolog.Nop()).Buy(context.Background(), testMint, 1)
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestProviders_RequestShapes(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]interface{}{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		w.Write(fakeTx)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/portal", server.URL+"/pf")

	_, err := NewPumpFunProvider(c).BuildBuy(context.Background(), "buyer", testMint, 0.5)
	require.NoError(t, err)
	_, err = NewPortalProvider(c).BuildBuy(context.Background(), "buyer", testMint, 0.5)
	require.NoError(t, err)

	pf := bodies["/pf/trade"]
	require.NotNil(t, pf)
	assert.Equal(t, true, pf["denominatedInSol"])
	assert.Equal(t, 0.25, pf["slippage"])

	portal := bodies["/portal/trade-local"]
	require.NotNil(t, portal)
	assert.Equal(t, "true", portal["denominatedInSol"])
	assert.Equal(t, 25.0, portal["slippage"])
	assert.Equal(t, "pump", portal["pool"])
}
