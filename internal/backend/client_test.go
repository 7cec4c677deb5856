package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/config"
	"tradedash/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.BackendConfig{
		URL:       srv.URL,
		Timeout:   2 * time.Second,
		UserAgent: "tradedash-test",
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100},
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetCurrenciesAcceptsMixedEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/currencies", r.URL.Path)
		assert.Equal(t, "tradedash-test", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"success":true,"currencies":["btc",{"code":"eth","symbol":"Ξ"},{"symbol":"?"}]}`))
	})

	got, err := c.GetCurrencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Currency{{Code: "BTC"}, {Code: "ETH", Symbol: "Ξ"}}, got)
}

func TestGetPairDataSendsPairAndForce(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC", r.URL.Query().Get("base"))
		assert.Equal(t, "USDT", r.URL.Query().Get("quote"))
		assert.Equal(t, "1", r.URL.Query().Get("force"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"orderbook":{"asks":[["101","1"]],"bids":[[99,2]]},"ticker":{"last":100.5}}}`))
	})

	data, err := c.GetPairData(context.Background(), "BTC", "USDT", true)
	require.NoError(t, err)
	assert.Equal(t, 100.5, data.Ticker.Last)
	require.Len(t, data.OrderBook.Asks, 1)
	assert.Equal(t, "101", data.OrderBook.Asks[0][0])
	assert.Equal(t, float64(99), data.OrderBook.Bids[0][0])
}

func TestSemanticFailureIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"success": false, "error": "unknown currency"})
	})

	_, err := c.GetTradeParams(context.Background(), "XYZ")
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Contains(t, err.Error(), "unknown currency")
}

func TestHTTPStatusIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	})

	err := c.SubscribePair(context.Background(), "BTC", "USDT")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetBalances(ctx, "USDT")
	require.Error(t, err)
	assert.False(t, IsAPIError(err))
}

func TestGetTradeIndicatorsWithTable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("include_table"))
		_, _ = w.Write([]byte(`{"success":true,"indicators":{"rsi":41.2},"autotrade_levels":{"active_cycle":true,"start_price":2.5,"active_step":3,"table":[{"step":1,"rate":1.0}]}}`))
	})

	ind, err := c.GetTradeIndicators(context.Background(), "ETH", "USDT", true)
	require.NoError(t, err)
	assert.True(t, ind.AutotradeLevels.ActiveCycle)
	assert.Equal(t, 2.5, ind.AutotradeLevels.StartPrice)
	assert.Equal(t, 3, ind.AutotradeLevels.ActiveStep)
	require.Len(t, ind.AutotradeLevels.Table, 1)
	assert.Nil(t, ind.AutotradeLevels.Table[0].OrderbookLevel)
	assert.Equal(t, 41.2, ind.Indicators["rsi"])
}

func TestGetBreakEvenTableOmitsStartPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, present := body["start_price"]
		assert.False(t, present, "start_price must not be sent")
		assert.Equal(t, float64(16), body["steps"])
		writeJSON(w, map[string]interface{}{"success": true, "table": []map[string]interface{}{{"step": 1, "rate": 0.5}}})
	})

	table, err := c.GetBreakEvenTable(context.Background(), models.BreakEvenRequest{Currency: "BTC", Steps: 16})
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, 0.5, table[0].Rate)
}

func TestTradeParamsRoundTrip(t *testing.T) {
	stored := map[string]models.TradeParams{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var p models.TradeParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			stored[p.Currency] = p
			writeJSON(w, map[string]interface{}{"success": true, "params": p})
		default:
			writeJSON(w, map[string]interface{}{"success": true, "params": stored[r.URL.Query().Get("currency")]})
		}
	})

	in := models.TradeParams{Currency: "SOL", Steps: 10, StartVolume: 5, Pprof: 0.7, Kprof: 0.03, TargetR: 3, GeomMultiplier: 1.5, RebuyMode: "fixed", OrderbookLevel: 2}
	saved, err := c.SaveTradeParams(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, saved)

	loaded, err := c.GetTradeParams(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, in, loaded)
}

func TestSavePartialUIState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ETH", body["currency"])
		writeJSON(w, map[string]interface{}{"success": true})
	})

	require.NoError(t, c.SavePartialUIState(context.Background(), map[string]interface{}{"currency": "ETH"}))
}
