package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/tradesim/pkg/book"
	"github.com/uhyunpark/tradesim/pkg/costmodel"
	"github.com/uhyunpark/tradesim/pkg/metrics"
	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

const (
	eps    = 1e-12
	symbol = "BTC-USDT"
)

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	m := metrics.New()
	srv := NewServer(Config{AllowedOrigins: []string{"https://app.example.com"}, MaxDepth: 10},
		book.New(symbol), costmodel.NewModel(costmodel.ImpactClosedForm), m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &testEnv{srv: srv, http: ts, metrics: m}
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

const snapshotJSON = `{
	"bids": [{"price": 100, "size": 1}, {"price": 99, "size": 2}],
	"asks": [{"price": 101, "size": 1.5}, {"price": 102, "size": 0.5}],
	"timestamp": 1635739200000
}`

func simulateBody(params string) string {
	return `{"orderbookData": ` + snapshotJSON + `, "parameters": ` + params + `}`
}

func TestSimulate(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/simulate", "/api/v1/simulate"} {
		t.Run(path, func(t *testing.T) {
			resp, body := env.post(t, path, simulateBody(`{"orderSize": 1, "volatility": 50, "feeTier": "standard"}`))
			require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

			var est SimulationResponse
			require.NoError(t, json.Unmarshal(body, &est))
			assert.InDelta(t, 0.005, est.Slippage, eps)
			assert.InDelta(t, 0.0005, est.Fees, eps)
			assert.InDelta(t, 0.01, est.MarketImpact, eps)
			assert.InDelta(t, 0.0155, est.NetCost, eps)
			assert.InDelta(t, 0.5, est.MakerTaker.Maker, eps)
			assert.InDelta(t, 0.5, est.MakerTaker.Taker, eps)
			assert.GreaterOrEqual(t, est.Timings.TotalMs, 0.0)
			assert.Positive(t, est.Timestamp)

			var raw map[string]any
			require.NoError(t, json.Unmarshal(body, &raw))
			assert.Contains(t, raw, "makerTakerProportion")
			assert.Contains(t, raw, "performanceMetrics")
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.SimulationsTotal.WithLabelValues("ok")))
}

func TestSimulateRejectsInvalidParameters(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		params string
		field  string
	}{
		{"zero size", `{"orderSize": 0, "volatility": 50, "feeTier": "standard"}`, "orderSize"},
		{"negative size", `{"orderSize": -1, "volatility": 50, "feeTier": "standard"}`, "orderSize"},
		{"missing size", `{"volatility": 50, "feeTier": "standard"}`, "orderSize"},
		{"negative volatility", `{"orderSize": 1, "volatility": -5, "feeTier": "standard"}`, "volatility"},
		{"volatility over 100", `{"orderSize": 1, "volatility": 101, "feeTier": "standard"}`, "volatility"},
		{"missing volatility", `{"orderSize": 1, "feeTier": "standard"}`, "volatility"},
		{"unknown tier", `{"orderSize": 1, "volatility": 50, "feeTier": "gold"}`, "feeTier"},
		{"missing tier", `{"orderSize": 1, "volatility": 50}`, "feeTier"},
		{"unknown side", `{"orderSize": 1, "volatility": 50, "feeTier": "vip", "side": "short"}`, "side"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/simulate", simulateBody(tt.params))
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

			var er ErrorResponse
			require.NoError(t, json.Unmarshal(body, &er))
			assert.Equal(t, "validation failed", er.Error)
			assert.Equal(t, tt.field, er.Field)
			assert.NotEmpty(t, er.Message)
		})
	}

	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(env.metrics.SimulationsTotal.WithLabelValues("rejected")))
}

func TestSimulateRejectsEmptySide(t *testing.T) {
	env := newTestEnv(t)

	body := `{"orderbookData": {"bids": [], "asks": [{"price": 101, "size": 1}]},
		"parameters": {"orderSize": 1, "volatility": 50, "feeTier": "standard"}}`
	resp, b := env.post(t, "/simulate", body)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var er ErrorResponse
	require.NoError(t, json.Unmarshal(b, &er))
	assert.Equal(t, "bids", er.Field)
}

func TestSimulateMalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{"", "{", `{"parameters": "nope"}`} {
		resp, _ := env.post(t, "/simulate", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}
}

func TestSimulateMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/simulate")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAggregateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/v1/orderbook/aggregate", snapshotJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out AggregatedOrderbook
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, symbol, out.Symbol)
	assert.Equal(t, 10, out.MaxDepth)
	require.Len(t, out.Bids, 2)
	require.Len(t, out.Asks, 2)
	assert.InDelta(t, 3.0, out.Bids[1].CumulativeSize, eps)
	assert.InDelta(t, 100.0, out.Bids[1].DepthPercent, eps)
	assert.InDelta(t, 2.0/3.0*100, out.Asks[1].DepthPercent, 1e-9)
	require.True(t, out.Spread.Available)
	assert.InDelta(t, 1.0, *out.Spread.Absolute, eps)
	assert.InDelta(t, 1.0, *out.Spread.Percent, eps)
}

func TestAggregateEndpointDepth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/v1/orderbook/aggregate?depth=1", snapshotJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out AggregatedOrderbook
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 1, out.MaxDepth)
	require.Len(t, out.Bids, 1)
	require.Len(t, out.Asks, 1)
	// 1.5 on the ask side is the largest cumulative after truncation
	assert.InDelta(t, 1.0/1.5*100, out.Bids[0].DepthPercent, 1e-9)
	assert.InDelta(t, 100.0, out.Asks[0].DepthPercent, eps)

	for _, bad := range []string{"0", "-3", "ten"} {
		resp, _ := env.post(t, "/api/v1/orderbook/aggregate?depth="+bad, snapshotJSON)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "depth=%s", bad)
	}
}

func TestAggregateEndpointOneSided(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/v1/orderbook/aggregate", `{"bids": [{"price": 100, "size": 1}], "asks": []}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	spread := raw["spread"].(map[string]any)
	assert.Equal(t, false, spread["available"])
	assert.Nil(t, spread["absolute"])
	assert.Nil(t, spread["percent"])
}

func TestLiveOrderbook(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/v1/orderbook")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty AggregatedOrderbook
	require.NoError(t, json.Unmarshal(body, &empty))
	assert.Empty(t, empty.Bids)
	assert.False(t, empty.Spread.Available)

	resp, body = env.post(t, "/api/v1/orderbook", snapshotJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.BookSnapshotsTotal))

	resp, body = env.get(t, "/api/v1/orderbook?depth=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live AggregatedOrderbook
	require.NoError(t, json.Unmarshal(body, &live))
	require.Len(t, live.Bids, 1)
	require.Len(t, live.Asks, 1)
	assert.Equal(t, 100.0, live.Bids[0].Price)
	assert.Equal(t, 101.0, live.Asks[0].Price)
	assert.Equal(t, int64(1635739200000), live.Timestamp)

	resp, _ = env.get(t, "/api/v1/orderbook?depth=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateLevels(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/v1/orderbook", snapshotJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// remove the best bid, add a better ask, resize a deeper ask
	resp, body = env.post(t, "/api/v1/orderbook/levels", `{
		"updates": [
			{"side": "bid", "price": 100, "size": 0},
			{"side": "ask", "price": 100.5, "size": 3},
			{"side": "ask", "price": 102, "size": 4}
		],
		"timestamp": 1635739200500
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.get(t, "/api/v1/orderbook")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live AggregatedOrderbook
	require.NoError(t, json.Unmarshal(body, &live))

	require.Len(t, live.Bids, 1)
	assert.Equal(t, 99.0, live.Bids[0].Price)
	require.Len(t, live.Asks, 3)
	assert.Equal(t, 100.5, live.Asks[0].Price)
	assert.Equal(t, 4.0, live.Asks[2].Size)
	assert.InDelta(t, 8.5, live.Asks[2].CumulativeSize, eps)
	assert.Equal(t, int64(1635739200500), live.Timestamp)
}

func TestUpdateLevelsRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		code  int
		field string
	}{
		{"no updates", `{"updates": []}`, http.StatusUnprocessableEntity, "updates"},
		{"unknown side", `{"updates": [{"side": "mid", "price": 100, "size": 1}]}`, http.StatusUnprocessableEntity, "side"},
		{"zero price", `{"updates": [{"side": "bid", "price": 0, "size": 1}]}`, http.StatusUnprocessableEntity, "price"},
		{"negative size", `{"updates": [{"side": "ask", "price": 100, "size": -1}]}`, http.StatusUnprocessableEntity, "size"},
		{"missing size", `{"updates": [{"side": "ask", "price": 100}]}`, http.StatusUnprocessableEntity, "size"},
		{"malformed", `{"updates": `, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/api/v1/orderbook/levels", tt.body)
			require.Equal(t, tt.code, resp.StatusCode, string(body))

			var er ErrorResponse
			require.NoError(t, json.Unmarshal(body, &er))
			assert.Equal(t, tt.field, er.Field)
		})
	}

	bids, asks := env.srv.book.Depth()
	assert.Zero(t, bids)
	assert.Zero(t, asks)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "healthy", h.Status)
	_, err := time.Parse(time.RFC3339, h.Timestamp)
	assert.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/simulate", simulateBody(`{"orderSize": 1, "volatility": 50, "feeTier": "vip"}`))
	resp, body := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `simulations_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "simulation_stage_latency_ms")
}

func TestRequestIDPropagates(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	preflight := func(origin, headers string) string {
		t.Helper()
		req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/simulate", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		// Browsers send request header names lowercased
		req.Header.Set("Access-Control-Request-Headers", headers)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.Header.Get("Access-Control-Allow-Origin")
	}

	tests := []struct {
		name    string
		origin  string
		headers string
		want    string
	}{
		{"allowed origin", "https://app.example.com", "content-type", "https://app.example.com"},
		{"allowed origin with request id", "https://app.example.com", "content-type,x-request-id", "https://app.example.com"},
		{"unknown origin", "https://evil.example.com", "content-type", ""},
		{"header not allowed", "https://app.example.com", "content-type,x-api-key", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preflight(tt.origin, tt.headers))
		})
	}
}

func TestWebSocketOrderbookChannel(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	sub, err := json.Marshal(WSSubscribeRequest{Op: "subscribe", Channels: []string{"orderbook:" + symbol}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, sub))

	// Initial message carries the (still empty) live book
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var initial OrderbookUpdate
	require.NoError(t, json.Unmarshal(msg, &initial))
	assert.Equal(t, "orderbook", initial.Type)
	assert.Equal(t, symbol, initial.Symbol)
	assert.Empty(t, initial.Bids)

	var snap SnapshotRequest
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(snapshotJSON))).Decode(&snap))
	env.srv.ApplySnapshot(orderbook.RawBook{Bids: snap.Bids, Asks: snap.Asks, Timestamp: snap.Timestamp})

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	var update OrderbookUpdate
	require.NoError(t, json.Unmarshal(msg, &update))
	require.Len(t, update.Bids, 2)
	assert.Equal(t, 100.0, update.Bids[0].Price)
	assert.True(t, update.Spread.Available)
	assert.Equal(t, 1, env.srv.hub.ClientCount())
}

func TestWebSocketIgnoresOtherChannels(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"orderbook:ETH-USDT"}}))
	// Wait until the subscription has been processed before broadcasting
	require.Eventually(t, func() bool { return env.srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	env.srv.ApplySnapshot(orderbook.RawBook{
		Bids: []orderbook.PriceLevel{{Price: 100, Size: 1}},
		Asks: []orderbook.PriceLevel{{Price: 101, Size: 1}},
	})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "unsubscribed client should not receive updates")
}
