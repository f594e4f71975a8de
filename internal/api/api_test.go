package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"megabridge/internal/bridge"
	"megabridge/internal/domain"
	"megabridge/internal/pricefeed/stub"
	"megabridge/internal/pricing"
	"megabridge/internal/quote"
	"megabridge/internal/storage/memory"
)

const (
	evmAddr = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	evmHash = "0xaa11bb22cc33dd44ee55ff6677889900aa11bb22cc33dd44ee55ff6677889900"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	cache   *pricing.Cache
	source  *stub.Source
	history *memory.PriceSnapshotStore
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	src := stub.NewSource("majors", domain.PriceTable{
		domain.SymbolETH:   3500,
		domain.SymbolSOL:   180,
		domain.SymbolMATIC: 0.5,
	})
	agg := pricing.NewAggregator([]pricing.Registration{{Source: src, Timeout: time.Second}}, logger)
	cache := pricing.NewCache(agg, pricing.WithLogger(logger))
	calc := quote.NewCalculator(cache, nil)
	history := memory.NewPriceSnapshotStore()

	srv := NewServer(Options{
		Cache:      cache,
		Quotes:     calc,
		Bridge:     bridge.NewService(memory.NewBridgeTransactionStore(), calc, logger),
		History:    history,
		Sources:    agg.Sources(),
		AdminToken: adminToken,
		Logger:     logger,
	})
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, handler: srv.Handler(), cache: cache, source: src, history: history}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, msg, body.Error)
}

func TestPrices(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/prices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var table map[string]float64
	decode(t, rec, &table)
	assert.Equal(t, 3500.0, table["ETH"])
	assert.Equal(t, 1.0, table["USDC"])
	assert.Equal(t, pricing.FallbackPrices[domain.SymbolSIGMA], table["SIGMA"])
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/quote?amount=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var q domain.Quote
	decode(t, rec, &q)
	assert.Equal(t, "0.994000", q.OutputAmount)
	assert.Equal(t, domain.SymbolETH, q.InputToken)
	assert.Equal(t, "3500.00", q.InputUSDValue)
	assert.Equal(t, "~5 minutes", q.EstimatedTime)

	rec = env.do(t, http.MethodGet, "/api/quote?amount=100&chainId=137", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &q)
	assert.Equal(t, domain.SymbolMATIC, q.InputToken)
	assert.Equal(t, "0.014200", q.OutputAmount)

	rec = env.do(t, http.MethodGet, "/api/quote?amount=1&chainId=nope", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &q)
	assert.Equal(t, domain.SymbolETH, q.InputToken, "unparsable chain falls back to the default")
}

func TestQuote_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	assertError(t, env.do(t, http.MethodGet, "/api/quote", ""), http.StatusBadRequest, "Amount is required")
	assertError(t, env.do(t, http.MethodGet, "/api/quote?amount=abc", ""), http.StatusBadRequest, "Invalid amount")
	assertError(t, env.do(t, http.MethodGet, "/api/quote?amount=-1", ""), http.StatusBadRequest, "Invalid amount")
	assertError(t, env.do(t, http.MethodGet, "/api/quote?amount=0", ""), http.StatusBadRequest, "Invalid amount")
	assertError(t, env.do(t, http.MethodGet, "/api/quote?amount=1e3000000", ""), http.StatusBadRequest, "Invalid amount")
}

func TestBridge_Submit(t *testing.T) {
	env := newTestEnv(t, "")

	body := `{"depositor":"` + evmAddr + `","amount":100,"txHash":"` + evmHash + `","sourceChainId":137}`
	rec := env.do(t, http.MethodPost, "/api/bridge", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, float64(1), resp["id"])
	assert.Equal(t, strings.ToLower(evmAddr), resp["depositor"])
	assert.Equal(t, "100", resp["amount"])
	assert.Equal(t, "0.014200", resp["quotedOutputAmount"])
	assert.Equal(t, "MATIC", resp["inputToken"])
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "137", resp["sourceChainId"])
	assert.Equal(t, float64(domain.MegaETHChainID), resp["destChainId"])
	assert.Equal(t, evmHash, resp["txHash"])
	assert.Nil(t, resp["completedTxHash"])
	assert.Equal(t, "~5 minutes", resp["estimatedTime"])
	assert.Equal(t, bridge.SubmittedMessage, resp["message"])
}

func TestBridge_SubmitDuplicateTxHash(t *testing.T) {
	env := newTestEnv(t, "")

	body := `{"depositor":"` + evmAddr + `","amount":"1","txHash":"` + evmHash + `"}`
	rec := env.do(t, http.MethodPost, "/api/bridge", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assertError(t, env.do(t, http.MethodPost, "/api/bridge", body), http.StatusConflict, "Transaction already submitted")

	rec = env.do(t, http.MethodGet, "/api/transactions", "")
	var txs []domain.BridgeTransaction
	decode(t, rec, &txs)
	assert.Len(t, txs, 1)
}

func TestBridge_SubmitErrors(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing depositor", `{"amount":"1"}`, "Depositor and amount are required"},
		{"missing amount", `{"depositor":"` + evmAddr + `"}`, "Depositor and amount are required"},
		{"invalid amount", `{"depositor":"` + evmAddr + `","amount":"-5"}`, "Invalid amount"},
		{"oversized amount", `{"depositor":"` + evmAddr + `","amount":"1e3000000"}`, "Invalid amount"},
		{"invalid address", `{"depositor":"0x1234","amount":"1"}`, "Invalid depositor address"},
		{"invalid tx hash", `{"depositor":"` + evmAddr + `","amount":"1","txHash":"0x12"}`, "Invalid transaction hash"},
		{"invalid chain", `{"depositor":"` + evmAddr + `","amount":"1","sourceChainId":"mars"}`, "Invalid source chain"},
		{"malformed body", `{"depositor":`, "Invalid request body"},
		{"amount wrong type", `{"depositor":"` + evmAddr + `","amount":true}`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, env.do(t, http.MethodPost, "/api/bridge", tt.body), http.StatusBadRequest, tt.msg)
		})
	}

	rec := env.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func submit(t *testing.T, env *testEnv, amount string) int64 {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/bridge", `{"depositor":"`+evmAddr+`","amount":"`+amount+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tx domain.BridgeTransaction
	decode(t, rec, &tx)
	return tx.ID
}

func TestTransactions(t *testing.T) {
	env := newTestEnv(t, "")
	first := submit(t, env, "1")
	second := submit(t, env, "2")

	rec := env.do(t, http.MethodGet, "/api/transactions/"+strings.ToUpper(evmAddr[2:]), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []domain.BridgeTransaction
	decode(t, rec, &txs)
	require.Len(t, txs, 2)

	rec = env.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &txs)
	require.Len(t, txs, 2)
	assert.Equal(t, first, txs[0].ID, "pending oldest first")
	assert.Equal(t, second, txs[1].ID)

	rec = env.do(t, http.MethodGet, "/api/transactions/0x0000000000000000000000000000000000000001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdmin_FulfillAndReject(t *testing.T) {
	env := newTestEnv(t, "")
	a := submit(t, env, "1")
	b := submit(t, env, "2")

	rec := env.do(t, http.MethodPost, "/api/admin/fulfill/"+itoa(a), `{"megaTxHash":"`+evmHash+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tx domain.BridgeTransaction
	decode(t, rec, &tx)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	require.NotNil(t, tx.CompletedTxHash)
	assert.Equal(t, evmHash, *tx.CompletedTxHash)

	rec = env.do(t, http.MethodPost, "/api/admin/reject/"+itoa(b), "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tx)
	assert.Equal(t, domain.StatusRejected, tx.Status)

	assertError(t, env.do(t, http.MethodPost, "/api/admin/fulfill/"+itoa(a), ""), http.StatusNotFound, "Transaction not found")
	assertError(t, env.do(t, http.MethodPost, "/api/admin/reject/"+itoa(b), ""), http.StatusNotFound, "Transaction not found")

	rec = env.do(t, http.MethodGet, "/api/transactions", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdmin_FulfillUnknownID(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/admin/fulfill/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Transaction not found"}`, rec.Body.String())

	assertError(t, env.do(t, http.MethodPost, "/api/admin/reject/999", ""), http.StatusNotFound, "Transaction not found")
}

func TestAdmin_InvalidInput(t *testing.T) {
	env := newTestEnv(t, "")
	id := submit(t, env, "1")

	assertError(t, env.do(t, http.MethodPost, "/api/admin/fulfill/abc", ""), http.StatusBadRequest, "Invalid transaction id")
	assertError(t, env.do(t, http.MethodPost, "/api/admin/reject/0", ""), http.StatusBadRequest, "Invalid transaction id")
	assertError(t, env.do(t, http.MethodPost, "/api/admin/fulfill/"+itoa(id), `{"megaTxHash":"0xbeef"}`),
		http.StatusBadRequest, "Invalid transaction hash")
	assertError(t, env.do(t, http.MethodPost, "/api/admin/fulfill/"+itoa(id), `not json`),
		http.StatusBadRequest, "Invalid request body")
}

func TestAdmin_Token(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	id := submit(t, env, "1")

	assertError(t, env.do(t, http.MethodPost, "/api/admin/reject/"+itoa(id), ""), http.StatusUnauthorized, "Unauthorized")
	assertError(t, env.do(t, http.MethodPost, "/api/admin/reject/"+itoa(id), "", "Authorization", "Bearer wrong"),
		http.StatusUnauthorized, "Unauthorized")

	rec := env.do(t, http.MethodPost, "/api/admin/reject/"+itoa(id), "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodOptions, "/api/quote", "",
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", http.MethodGet,
	)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodGet, "/api/prices", "", "Origin", "https://app.example.com")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPriceHistory(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	require.NoError(t, env.history.InsertBulk(ctx, []*domain.PriceSnapshot{
		{Symbol: domain.SymbolETH, PriceUSD: 3400, FetchedAtMs: 1000},
		{Symbol: domain.SymbolETH, PriceUSD: 3500, FetchedAtMs: 2000},
		{Symbol: domain.SymbolSOL, PriceUSD: 180, FetchedAtMs: 2000},
	}))

	rec := env.do(t, http.MethodGet, "/api/prices/history?symbol=eth&from=0&to=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []historyPoint
	decode(t, rec, &points)
	require.Len(t, points, 2)
	assert.Equal(t, int64(1000), points[0].FetchedAt)
	assert.Equal(t, 3500.0, points[1].PriceUSD)

	assertError(t, env.do(t, http.MethodGet, "/api/prices/history", ""), http.StatusBadRequest, "Symbol is required")
	assertError(t, env.do(t, http.MethodGet, "/api/prices/history?symbol=ETH&from=5&to=1", ""), http.StatusBadRequest, "Invalid time range")
	assertError(t, env.do(t, http.MethodGet, "/api/prices/history?symbol=ETH&to=x", ""), http.StatusBadRequest, "Invalid time range")
}

func TestPriceHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, "")
	env.server.history = nil

	assertError(t, env.do(t, http.MethodGet, "/api/prices/history?symbol=ETH", ""),
		http.StatusServiceUnavailable, "Price history is not enabled")
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	decode(t, rec, &status)
	assert.Equal(t, []string{"majors"}, status.Sources)
	assert.Nil(t, status.Prices, "nothing fetched yet")

	env.do(t, http.MethodGet, "/api/prices", "")
	rec = env.do(t, http.MethodGet, "/status", "")
	decode(t, rec, &status)
	require.NotNil(t, status.Prices)
	assert.Equal(t, pricing.OutcomePartial, status.Prices.Outcome)
	assert.False(t, status.Prices.Degraded)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPriceStream(t *testing.T) {
	env := newTestEnv(t, "")
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/prices/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg PriceMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "prices", msg.Type)
	assert.Equal(t, 3500.0, msg.Prices[domain.SymbolETH])
	assert.Equal(t, 1, env.server.hub.Len())

	env.source.Set(domain.PriceTable{domain.SymbolETH: 3600})
	env.cache.Refresh(context.Background())

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 3600.0, msg.Prices[domain.SymbolETH])
	assert.False(t, msg.Degraded)

	conn.Close()
	assert.Eventually(t, func() bool { return env.server.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPriceStream_PushesWithoutRequests(t *testing.T) {
	logger := zaptest.NewLogger(t)
	clock := &manualClock{now: time.UnixMilli(1704067200000)}
	src := stub.NewSource("majors",
		domain.PriceTable{domain.SymbolETH: 3500},
		domain.PriceTable{domain.SymbolETH: 3700},
	)
	agg := pricing.NewAggregator([]pricing.Registration{{Source: src, Timeout: time.Second}}, logger)
	cache := pricing.NewCache(agg, pricing.WithClock(clock), pricing.WithLogger(logger))
	calc := quote.NewCalculator(cache, nil)

	srv := NewServer(Options{
		Cache:          cache,
		Quotes:         calc,
		Bridge:         bridge.NewService(memory.NewBridgeTransactionStore(), calc, logger),
		Sources:        agg.Sources(),
		StreamInterval: 10 * time.Millisecond,
		Logger:         logger,
	})
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/prices/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg PriceMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 3500.0, msg.Prices[domain.SymbolETH])

	// Poll ticks while the entry is fresh do not refetch.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, src.Calls())

	clock.Advance(pricing.DefaultTTL)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 3700.0, msg.Prices[domain.SymbolETH])
	assert.Equal(t, clock.Now().UnixMilli(), msg.FetchedAt)
	assert.Equal(t, 2, src.Calls())
}

func TestServer_CloseStopsPolling(t *testing.T) {
	env := newTestEnv(t, "")
	env.server.Close()
	env.server.Close()

	select {
	case <-env.server.pollDone:
	default:
		t.Fatal("poller still running after Close")
	}
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.5","b":0.25,"c":null}`), &v))
	assert.Equal(t, flexString("1.5"), v.A)
	assert.Equal(t, flexString("0.25"), v.B)
	assert.Equal(t, flexString(""), v.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":{}}`), &v))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
