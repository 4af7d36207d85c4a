package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-prediction-market/internal/clock"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/escrow"
	"memecoin-prediction-market/internal/events"
	"memecoin-prediction-market/internal/ledger"
	"memecoin-prediction-market/internal/logging"
	"memecoin-prediction-market/internal/observability"
	"memecoin-prediction-market/internal/storage/memory"
)

const t0 = int64(1_700_000_000)

var (
	creator = domain.Pubkey{0xC0, 0x01}
	alice   = domain.Pubkey{0xA1}
	bob     = domain.Pubkey{0xB0}
)

type testEnv struct {
	srv     *httptest.Server
	handler http.Handler
	clock   *clock.Manual
	vault   *escrow.Vault
	bus     *events.MemoryBus
	hub     *Hub
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	store := memory.NewLedger()
	env := &testEnv{
		clock:   clock.NewManual(t0),
		vault:   escrow.NewVault(store, domain.Pubkey{}),
		bus:     events.NewMemoryBus(),
		metrics: observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	}
	t.Cleanup(env.bus.Close)

	svc, err := ledger.New(ledger.Options{
		Ledger:   store,
		Clock:    env.clock,
		Bus:      env.bus,
		Activity: memory.NewActivityStore(),
		Metrics:  env.metrics,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logging.Discard()
	env.hub = NewHub(env.bus, log, env.metrics)
	require.NoError(t, env.hub.Start(ctx))

	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = 6
	}
	env.handler = NewServer(cfg, svc, env.hub, log, env.metrics).Handler()
	env.srv = httptest.NewServer(env.handler)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) mint(t *testing.T, owner domain.Pubkey, amount uint64) {
	t.Helper()
	require.NoError(t, e.vault.Mint(context.Background(), owner, amount))
}

func (e *testEnv) balance(t *testing.T, owner domain.Pubkey) uint64 {
	t.Helper()
	b, err := e.vault.Balance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

// do sends a request as caller (zero pubkey sends no identity) and decodes
// the JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path string, caller domain.Pubkey, body any, out any) int {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if !caller.IsZero() {
		req.Header.Set(CallerHeader, caller.String())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestMarketLifecycle(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mint(t, alice, 1_000_000)
	env.mint(t, bob, 500_000)

	var m marketResponse
	status := env.do(t, http.MethodPost, "/markets", creator,
		map[string]any{"name": "DOGE_USD", "expiry_timestamp": t0 + 3600}, &m)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "DOGE_USD", m.Name)
	assert.Equal(t, creator, m.Creator)
	assert.Nil(t, m.Outcome)

	var b betResponse
	status = env.do(t, http.MethodPost, "/markets/DOGE_USD/bets", alice,
		map[string]any{"amount": 1_000_000, "prediction": true}, &b)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, domain.SideYes, b.Side)
	assert.Equal(t, m.Address, b.Market)

	status = env.do(t, http.MethodPost, "/markets/DOGE_USD/bets", bob,
		map[string]any{"amount": 500_000, "prediction": false}, nil)
	require.Equal(t, http.StatusCreated, status)

	var q quoteResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/markets/DOGE_USD/quote", domain.Pubkey{}, nil, &q))
	assert.Equal(t, uint64(1_000_000), q.YesAmount)
	assert.Equal(t, uint64(500_000), q.NoAmount)
	assert.Equal(t, "1.000000", q.YesAmountUI)
	assert.Equal(t, "0.500000", q.NoAmountUI)

	var bets []betResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/markets/DOGE_USD/bets", domain.Pubkey{}, nil, &bets))
	assert.Len(t, bets, 2)

	env.clock.Advance(time.Hour)

	var settled marketResponse
	status = env.do(t, http.MethodPost, "/markets/DOGE_USD/settle", creator,
		map[string]any{"outcome": true}, &settled)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, settled.Outcome)
	assert.Equal(t, domain.SideYes, *settled.Outcome)

	var detail betDetailResponse
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodGet, "/markets/DOGE_USD/bets/"+alice.String(), domain.Pubkey{}, nil, &detail))
	require.NotNil(t, detail.PendingPayout)
	assert.Equal(t, uint64(1_500_000), *detail.PendingPayout)

	// Claim without a body claims the caller's own bet.
	var c claimResponse
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/markets/DOGE_USD/claim", alice, nil, &c))
	assert.Equal(t, uint64(1_500_000), c.Payout)
	assert.Equal(t, "1.500000", c.PayoutUI)
	assert.True(t, c.Bet.Claimed)
	assert.Equal(t, uint64(1_500_000), env.balance(t, alice))

	var userBets []betResponse
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodGet, "/users/"+alice.String()+"/bets", domain.Pubkey{}, nil, &userBets))
	require.Len(t, userBets, 1)
	assert.True(t, userBets[0].Claimed)

	var activity []domain.LedgerEvent
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodGet, "/markets/DOGE_USD/activity", domain.Pubkey{}, nil, &activity))
	kinds := make([]domain.EventKind, 0, len(activity))
	for _, e := range activity {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []domain.EventKind{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventBetPlaced,
		domain.EventMarketSettled,
		domain.EventWinningsClaimed,
	}, kinds)

	var markets []marketResponse
	require.Equal(t, http.StatusOK,
		env.do(t, http.MethodGet, "/markets?creator="+creator.String(), domain.Pubkey{}, nil, &markets))
	assert.Len(t, markets, 1)
}

func TestClaim_ChunkedEmptyBody(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mint(t, alice, 1_000)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/markets", creator,
		map[string]any{"name": "WIF_USD", "expiry_timestamp": t0 + 60}, nil))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/markets/WIF_USD/bets", alice,
		map[string]any{"amount": 1_000, "prediction": false}, nil))
	env.clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/markets/WIF_USD/settle", creator,
		map[string]any{"outcome": false}, nil))

	// Chunked transfer: no Content-Length and nothing in the body.
	req := httptest.NewRequest(http.MethodPost, "/markets/WIF_USD/claim", io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set(CallerHeader, alice.String())

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var c claimResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Equal(t, uint64(1_000), c.Payout)
	assert.Equal(t, uint64(1_000), env.balance(t, alice))

	// A chunked body that is present but malformed is still rejected.
	req = httptest.NewRequest(http.MethodPost, "/markets/WIF_USD/claim", io.NopCloser(strings.NewReader("{")))
	req.ContentLength = -1
	req.Header.Set(CallerHeader, alice.String())
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mint(t, alice, 1_000)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/markets", creator,
		map[string]any{"name": "PEPE_USD", "expiry_timestamp": t0 + 60}, nil))

	tests := []struct {
		name   string
		method string
		path   string
		caller domain.Pubkey
		body   any
		status int
		code   domain.ErrorCode
	}{
		{
			name: "duplicate market", method: http.MethodPost, path: "/markets", caller: creator,
			body:   map[string]any{"name": "PEPE_USD", "expiry_timestamp": t0 + 60},
			status: http.StatusConflict, code: domain.CodeDuplicateMarket,
		},
		{
			name: "expiry in the past", method: http.MethodPost, path: "/markets", caller: creator,
			body:   map[string]any{"name": "BONK_USD", "expiry_timestamp": t0},
			status: http.StatusUnprocessableEntity, code: domain.CodeInvalidExpiry,
		},
		{
			name: "unknown market", method: http.MethodGet, path: "/markets/NOPE",
			status: http.StatusNotFound, code: domain.CodeMarketNotFound,
		},
		{
			name: "zero amount", method: http.MethodPost, path: "/markets/PEPE_USD/bets", caller: alice,
			body:   map[string]any{"amount": 0, "prediction": true},
			status: http.StatusUnprocessableEntity, code: domain.CodeZeroAmount,
		},
		{
			name: "insufficient funds", method: http.MethodPost, path: "/markets/PEPE_USD/bets", caller: bob,
			body:   map[string]any{"amount": 10, "prediction": true},
			status: http.StatusBadGateway, code: domain.CodeTransfer,
		},
		{
			name: "settle by non-creator", method: http.MethodPost, path: "/markets/PEPE_USD/settle", caller: alice,
			body:   map[string]any{"outcome": true},
			status: http.StatusForbidden, code: domain.CodeUnauthorized,
		},
		{
			name: "settle before expiry", method: http.MethodPost, path: "/markets/PEPE_USD/settle", caller: creator,
			body:   map[string]any{"outcome": true},
			status: http.StatusUnprocessableEntity, code: domain.CodeNotYetExpired,
		},
		{
			name: "claim without a bet", method: http.MethodPost, path: "/markets/PEPE_USD/claim", caller: alice,
			status: http.StatusNotFound, code: domain.CodeBetNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			status := env.do(t, tt.method, tt.path, tt.caller, tt.body, &resp)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.code.Name(), resp.Name)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, Config{})

	t.Run("missing caller", func(t *testing.T) {
		status := env.do(t, http.MethodPost, "/markets", domain.Pubkey{},
			map[string]any{"name": "X", "expiry_timestamp": t0 + 60}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("invalid caller", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/markets", strings.NewReader(`{}`))
		require.NoError(t, err)
		req.Header.Set(CallerHeader, "not-base58-0OIl")
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown field", func(t *testing.T) {
		status := env.do(t, http.MethodPost, "/markets", creator,
			map[string]any{"name": "X", "expiry": t0 + 60}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("missing prediction", func(t *testing.T) {
		status := env.do(t, http.MethodPost, "/markets/X/bets", alice,
			map[string]any{"amount": 1}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("missing outcome", func(t *testing.T) {
		status := env.do(t, http.MethodPost, "/markets/X/settle", creator, map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("invalid user path", func(t *testing.T) {
		status := env.do(t, http.MethodGet, "/users/xyz0/bets", domain.Pubkey{}, nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("inverted activity range", func(t *testing.T) {
		status := env.do(t, http.MethodGet, "/activity?from=10&to=5", domain.Pubkey{}, nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("non-numeric activity bound", func(t *testing.T) {
		status := env.do(t, http.MethodGet, "/activity?from=yesterday", domain.Pubkey{}, nil, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", alice, nil, nil))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", alice, nil, nil))

	var resp errorResponse
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/health", alice, nil, &resp))
	assert.Equal(t, "rate limit exceeded", resp.Error)

	// Buckets are per caller.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", bob, nil, nil))
}

func TestCallerKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ip:10.0.0.1", callerKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.7", callerKey(r))

	r.Header.Set(CallerHeader, alice.String())
	assert.Equal(t, "caller:"+alice.String(), callerKey(r))
}

func TestHub_StreamsMarketEvents(t *testing.T) {
	env := newTestEnv(t, Config{})

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws?market=DOGE_USD"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Filtered out: different market.
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/markets", creator,
		map[string]any{"name": "PEPE_USD", "expiry_timestamp": t0 + 60}, nil))
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/markets", creator,
		map[string]any{"name": "DOGE_USD", "expiry_timestamp": t0 + 60}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	e, err := events.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, domain.EventMarketCreated, e.Kind)
	assert.Equal(t, "DOGE_USD", e.MarketName)
	assert.Equal(t, creator, e.Actor)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusOf(domain.CodeAlreadyClaimed))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(domain.CodeNotAWinner))
	assert.Equal(t, http.StatusInternalServerError, statusOf(domain.CodeUnknown))
}
