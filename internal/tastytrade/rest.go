// Package tastytrade is the REST client for the venue's HTTP API: session
// and OAuth authentication, streaming tokens, order entry, account state
// and historical data.
package tastytrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

const (
	productionBaseURL = "https://api.tastyworks.com"
	sandboxBaseURL    = "https://api.cert.tastyworks.com"
)

func BaseURL(env domain.Environment) string {
	if env == domain.EnvironmentSandbox {
		return sandboxBaseURL
	}
	return productionBaseURL
}

// APIRecorder receives per-category request outcomes for instrumentation.
type APIRecorder interface {
	APIRequest(category string, elapsed time.Duration)
	APIFailure(category string)
}

type ClientConfig struct {
	BaseURL   string
	AccountID string
	// SessionToken may be pre-issued; otherwise call Authenticate or attach
	// an OAuth handler.
	SessionToken string
	OAuth        *OAuthHandler
	HTTPClient   *http.Client
	RateLimiter  *RateLimiter
	Recorder     APIRecorder
	Logger       *slog.Logger
}

type Client struct {
	baseURL     string
	accountID   string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	oauth       *OAuthHandler
	recorder    APIRecorder
	logger      *slog.Logger

	mu           sync.RWMutex
	sessionToken string
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		accountID:    cfg.AccountID,
		httpClient:   httpClient,
		rateLimiter:  cfg.RateLimiter,
		oauth:        cfg.OAuth,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		sessionToken: cfg.SessionToken,
	}
}

func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

func (c *Client) setSessionToken(token string) {
	c.mu.Lock()
	c.sessionToken = token
	c.mu.Unlock()
}

func (c *Client) AccountID() string { return c.accountID }

func (c *Client) authorization(ctx context.Context) (string, error) {
	if c.oauth != nil {
		return c.oauth.AuthorizationHeader(ctx)
	}
	if token := c.SessionToken(); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("tastytrade: no session token; authenticate first")
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, category domain.EndpointCategory) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Acquire(ctx, category, 1); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if category != domain.EndpointAuth {
		auth, err := c.authorization(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(category)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if c.recorder != nil {
		c.recorder.APIRequest(string(category), time.Since(start))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.recordFailure(category)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Client) recordFailure(category domain.EndpointCategory) {
	if c.recorder != nil {
		c.recorder.APIFailure(string(category))
	}
}

// Authenticate exchanges login credentials for a session token.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	body := map[string]string{
		"login":    username,
		"password": password,
	}
	respData, err := c.doRequest(ctx, http.MethodPost, "/sessions", body, domain.EndpointAuth)
	if err != nil {
		return fmt.Errorf("authenticate session: %w", err)
	}

	var result struct {
		SessionToken string `json:"session-token"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return fmt.Errorf("parse session response: %w", err)
	}
	if result.SessionToken == "" {
		return fmt.Errorf("authenticate session: empty session token in response")
	}

	c.setSessionToken(result.SessionToken)
	c.logger.Info("session authenticated")
	return nil
}

// StreamToken fetches a fresh streaming endpoint and token pair. Tokens are
// single-use; the coordinator requests one per connection attempt.
func (c *Client) StreamToken(ctx context.Context) (string, string, error) {
	respData, err := c.doRequest(ctx, http.MethodGet, "/api-quote-tokens", nil, domain.EndpointMarketData)
	if err != nil {
		return "", "", fmt.Errorf("fetch quote token: %w", err)
	}

	var result struct {
		WebsocketURL string `json:"websocket-url"`
		Token        string `json:"token"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return "", "", fmt.Errorf("parse quote token response: %w", err)
	}
	if result.WebsocketURL == "" || result.Token == "" {
		return "", "", fmt.Errorf("fetch quote token: incomplete response")
	}
	return result.WebsocketURL, result.Token, nil
}

// OrderLeg and OrderPayload mirror the venue's order entry schema.
type OrderLeg struct {
	InstrumentType string `json:"instrument-type"`
	Symbol         string `json:"symbol"`
	Action         string `json:"action"`
	Quantity       string `json:"quantity"`
}

type OrderPayload struct {
	OrderType   string     `json:"order-type"`
	TimeInForce string     `json:"time-in-force"`
	Price       string     `json:"price,omitempty"`
	PriceEffect string     `json:"price-effect,omitempty"`
	StopTrigger string     `json:"stop-trigger,omitempty"`
	Legs        []OrderLeg `json:"legs"`
}

type VenueOrder struct {
	ID             json.Number `json:"id"`
	InstrumentType string      `json:"instrument-type"`
	Symbol         string      `json:"symbol"`
	OrderSide      string      `json:"order-side"`
	OrderType      string      `json:"order-type"`
	TimeInForce    string      `json:"time-in-force"`
	Quantity       string      `json:"quantity"`
	LimitPrice     string      `json:"limit-price"`
	StopPrice      string      `json:"stop-price"`
	Status         string      `json:"status"`
	ReceivedAt     time.Time   `json:"received-at"`
}

func (c *Client) PlaceOrder(ctx context.Context, payload OrderPayload) (string, error) {
	path := fmt.Sprintf("/accounts/%s/orders", url.PathEscape(c.accountID))
	respData, err := c.doRequest(ctx, http.MethodPost, path, payload, domain.EndpointOrderPlace)
	if err != nil {
		return "", err
	}

	var result struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return "", fmt.Errorf("parse order response: %w", err)
	}
	return result.ID.String(), nil
}

func (c *Client) UpdateOrder(ctx context.Context, venueOrderID string, payload OrderPayload) error {
	path := fmt.Sprintf("/accounts/%s/orders/%s", url.PathEscape(c.accountID), url.PathEscape(venueOrderID))
	_, err := c.doRequest(ctx, http.MethodPut, path, payload, domain.EndpointOrderPlace)
	return err
}

func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	path := fmt.Sprintf("/accounts/%s/orders/%s", url.PathEscape(c.accountID), url.PathEscape(venueOrderID))
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, domain.EndpointOrderCancel)
	return err
}

func (c *Client) LiveOrders(ctx context.Context) ([]VenueOrder, error) {
	path := fmt.Sprintf("/accounts/%s/orders/live", url.PathEscape(c.accountID))
	respData, err := c.doRequest(ctx, http.MethodGet, path, nil, domain.EndpointAccount)
	if err != nil {
		return nil, err
	}

	var orders []VenueOrder
	if err := json.Unmarshal(respData, &orders); err != nil {
		return nil, fmt.Errorf("parse live orders: %w", err)
	}
	return orders, nil
}

type VenuePosition struct {
	InstrumentType   string `json:"instrument-type"`
	Symbol           string `json:"symbol"`
	Quantity         string `json:"quantity"`
	AverageOpenPrice string `json:"average-open-price"`
	MarkPrice        string `json:"mark-price"`
	Mark             string `json:"mark"`
	UnrealizedGain   string `json:"unrealized-day-gain"`
}

func (c *Client) Positions(ctx context.Context) ([]VenuePosition, error) {
	path := fmt.Sprintf("/accounts/%s/positions", url.PathEscape(c.accountID))
	respData, err := c.doRequest(ctx, http.MethodGet, path, nil, domain.EndpointAccount)
	if err != nil {
		return nil, err
	}

	var positions []VenuePosition
	if err := json.Unmarshal(respData, &positions); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}
	return positions, nil
}

func (c *Client) Balances(ctx context.Context) (domain.CashBalance, error) {
	path := fmt.Sprintf("/accounts/%s/balances", url.PathEscape(c.accountID))
	respData, err := c.doRequest(ctx, http.MethodGet, path, nil, domain.EndpointAccount)
	if err != nil {
		return domain.CashBalance{}, err
	}

	var result struct {
		CashBalance string `json:"cash-balance"`
		Currency    string `json:"currency"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.CashBalance{}, fmt.Errorf("parse balances: %w", err)
	}

	amount, err := domain.ParseDecimal(result.CashBalance)
	if err != nil {
		return domain.CashBalance{}, fmt.Errorf("parse cash balance %q: %w", result.CashBalance, err)
	}
	return domain.CashBalance{Amount: amount, Currency: result.Currency}, nil
}

type HistoryBar struct {
	Time     time.Time `json:"time"`
	Price    string    `json:"price"`
	Size     string    `json:"size"`
	Open     string    `json:"open"`
	High     string    `json:"high"`
	Low      string    `json:"low"`
	Close    string    `json:"close"`
	Volume   string    `json:"volume"`
	BidOpen  string    `json:"bid-open"`
	BidHigh  string    `json:"bid-high"`
	BidLow   string    `json:"bid-low"`
	BidClose string    `json:"bid-close"`
	AskOpen  string    `json:"ask-open"`
	AskHigh  string    `json:"ask-high"`
	AskLow   string    `json:"ask-low"`
	AskClose string    `json:"ask-close"`
}

// History queries the venue's historical data endpoint for a symbol.
// endpoint selects the asset-class path (equities, option-chains, crypto).
func (c *Client) History(ctx context.Context, endpoint, venueSymbol, resolution, timeframe string, start, end time.Time) ([]HistoryBar, error) {
	q := url.Values{}
	q.Set("symbol", venueSymbol)
	q.Set("resolution", resolution)
	q.Set("timeframe", timeframe)
	q.Set("start-time", start.UTC().Format(time.RFC3339Nano))
	q.Set("end-time", end.UTC().Format(time.RFC3339Nano))

	path := fmt.Sprintf("/%s/history?%s", endpoint, q.Encode())
	respData, err := c.doRequest(ctx, http.MethodGet, path, nil, domain.EndpointMarketData)
	if err != nil {
		return nil, err
	}

	var bars []HistoryBar
	if err := json.Unmarshal(respData, &bars); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return bars, nil
}

// LatestQuote fetches a REST snapshot of the current top of book.
func (c *Client) LatestQuote(ctx context.Context, venueSymbol string) (domain.Quote, error) {
	path := fmt.Sprintf("/quote-tokens/%s", url.PathEscape(venueSymbol))
	respData, err := c.doRequest(ctx, http.MethodGet, path, nil, domain.EndpointMarketData)
	if err != nil {
		return domain.Quote{}, err
	}

	var result struct {
		BidPrice json.Number `json:"bid-price"`
		BidSize  json.Number `json:"bid-size"`
		AskPrice json.Number `json:"ask-price"`
		AskSize  json.Number `json:"ask-size"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.Quote{}, fmt.Errorf("parse quote: %w", err)
	}

	quote := domain.Quote{Time: time.Now().UTC()}
	if quote.BidPrice, err = domain.ParseDecimal(result.BidPrice.String()); err != nil {
		return domain.Quote{}, fmt.Errorf("parse bid price: %w", err)
	}
	if quote.BidSize, err = domain.ParseDecimal(result.BidSize.String()); err != nil {
		return domain.Quote{}, fmt.Errorf("parse bid size: %w", err)
	}
	if quote.AskPrice, err = domain.ParseDecimal(result.AskPrice.String()); err != nil {
		return domain.Quote{}, fmt.Errorf("parse ask price: %w", err)
	}
	if quote.AskSize, err = domain.ParseDecimal(result.AskSize.String()); err != nil {
		return domain.Quote{}, fmt.Errorf("parse ask size: %w", err)
	}
	return quote, nil
}
