// Package backend is the HTTP client for the trading backend the dashboard reflects.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradedash/config"
	"tradedash/logger"
	"tradedash/models"
)

// APIError is a semantic failure: the backend answered but reported success=false
// or a non-2xx status.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsAPIError reports whether err carries a semantic backend failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e envelope) result() envelope { return e }

func (e envelope) reason() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return "request was not successful"
}

type enveloped interface {
	result() envelope
}

// Client talks JSON over HTTP to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewClient builds a client from the backend section of the configuration.
func NewClient(cfg config.BackendConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	agent := cfg.UserAgent
	if agent == "" {
		agent = "tradedash"
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: userAgentTransport{agent: agent, base: transport},
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}

	c.log.WithComponent("backend").WithFields(logger.Fields{
		"url":     base.String(),
		"timeout": cfg.Timeout,
		"rps":     rps,
		"burst":   burst,
	}).Info("backend client initialized")

	return c, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}, out enveloped) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.log.WithComponent("backend").WithFields(logger.Fields{
		"operation":  op,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "backend", op, time.Since(start), logger.Fields{"status": resp.StatusCode})

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &env) == nil && (env.Error != "" || env.Message != "") {
			msg = env.reason()
		}
		return &APIError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if env := out.result(); !env.Success {
		return &APIError{Op: op, Status: resp.StatusCode, Message: env.reason()}
	}
	return nil
}

func pairQuery(base, quote string) url.Values {
	q := url.Values{}
	q.Set("base", base)
	q.Set("quote", quote)
	return q
}

func setFlag(q url.Values, key string, on bool) {
	if on {
		q.Set(key, "1")
	}
}

type currenciesResponse struct {
	envelope
	Currencies []models.Currency `json:"currencies"`
}

// GetCurrencies lists the base currencies the backend trades.
func (c *Client) GetCurrencies(ctx context.Context) ([]models.Currency, error) {
	var resp currenciesResponse
	if err := c.do(ctx, "get_currencies", http.MethodGet, "/api/currencies", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := resp.Currencies[:0]
	for _, cur := range resp.Currencies {
		if cur.Code != "" {
			out = append(out, cur)
		}
	}
	return out, nil
}

type pairDataResponse struct {
	envelope
	Data models.PairData `json:"data"`
}

// GetPairData fetches the order book and ticker for a pair.
func (c *Client) GetPairData(ctx context.Context, base, quote string, force bool) (models.PairData, error) {
	q := pairQuery(base, quote)
	setFlag(q, "force", force)
	var resp pairDataResponse
	if err := c.do(ctx, "get_pair_data", http.MethodGet, "/api/pair/data", q, nil, &resp); err != nil {
		return models.PairData{}, err
	}
	return resp.Data, nil
}

type pairInfoResponse struct {
	envelope
	Data models.PairInfo `json:"data"`
}

// GetPairInfo fetches trading limits and precisions for a pair.
func (c *Client) GetPairInfo(ctx context.Context, base, quote string, force bool) (models.PairInfo, error) {
	q := pairQuery(base, quote)
	setFlag(q, "force", force)
	var resp pairInfoResponse
	if err := c.do(ctx, "get_pair_info", http.MethodGet, "/api/pair/info", q, nil, &resp); err != nil {
		return models.PairInfo{}, err
	}
	return resp.Data, nil
}

type balancesResponse struct {
	envelope
	Balances []models.Balance `json:"balances"`
}

// GetBalances fetches wallet balances valued in quote.
func (c *Client) GetBalances(ctx context.Context, quote string) ([]models.Balance, error) {
	q := url.Values{}
	q.Set("quote", quote)
	var resp balancesResponse
	if err := c.do(ctx, "get_balances", http.MethodGet, "/api/balances", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Balances, nil
}

type indicatorsResponse struct {
	envelope
	models.TradeIndicators
}

// GetTradeIndicators fetches live indicators and the autotrade levels. With
// includeTable the persisted break-even table of an active cycle is embedded.
func (c *Client) GetTradeIndicators(ctx context.Context, base, quote string, includeTable bool) (models.TradeIndicators, error) {
	q := pairQuery(base, quote)
	setFlag(q, "include_table", includeTable)
	var resp indicatorsResponse
	if err := c.do(ctx, "get_trade_indicators", http.MethodGet, "/api/trade/indicators", q, nil, &resp); err != nil {
		return models.TradeIndicators{}, err
	}
	return resp.TradeIndicators, nil
}

type tableResponse struct {
	envelope
	Table models.BreakEvenTable `json:"table"`
}

// GetBreakEvenTable asks the backend to compute a preview table.
func (c *Client) GetBreakEvenTable(ctx context.Context, req models.BreakEvenRequest) (models.BreakEvenTable, error) {
	var resp tableResponse
	if err := c.do(ctx, "get_breakeven_table", http.MethodPost, "/api/breakeven/table", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Table, nil
}

type paramsResponse struct {
	envelope
	Params models.TradeParams `json:"params"`
}

// GetTradeParams loads the saved parameters for a base currency.
func (c *Client) GetTradeParams(ctx context.Context, base string) (models.TradeParams, error) {
	q := url.Values{}
	q.Set("currency", base)
	var resp paramsResponse
	if err := c.do(ctx, "get_trade_params", http.MethodGet, "/api/trade/params", q, nil, &resp); err != nil {
		return models.TradeParams{}, err
	}
	return resp.Params, nil
}

// SaveTradeParams stores params and returns what the backend persisted.
func (c *Client) SaveTradeParams(ctx context.Context, params models.TradeParams) (models.TradeParams, error) {
	var resp paramsResponse
	if err := c.do(ctx, "save_trade_params", http.MethodPost, "/api/trade/params", nil, params, &resp); err != nil {
		return models.TradeParams{}, err
	}
	return resp.Params, nil
}

type sessionProfitResponse struct {
	envelope
	models.SessionProfit
}

// GetSessionProfit fetches realised profit for the running session.
func (c *Client) GetSessionProfit(ctx context.Context, base, quote string) (models.SessionProfit, error) {
	var resp sessionProfitResponse
	if err := c.do(ctx, "get_session_profit", http.MethodGet, "/api/trade/session-profit", pairQuery(base, quote), nil, &resp); err != nil {
		return models.SessionProfit{}, err
	}
	return resp.SessionProfit, nil
}

type ackResponse struct {
	envelope
}

// SubscribePair asks the backend to start streaming the pair.
func (c *Client) SubscribePair(ctx context.Context, base, quote string) error {
	body := map[string]string{"base": base, "quote": quote}
	return c.do(ctx, "subscribe_pair", http.MethodPost, "/api/pair/subscribe", nil, body, &ackResponse{})
}

// SavePartialUIState merges updates into the persisted UI settings.
func (c *Client) SavePartialUIState(ctx context.Context, updates map[string]interface{}) error {
	return c.do(ctx, "save_partial_ui_state", http.MethodPost, "/api/ui/state/partial", nil, updates, &ackResponse{})
}
