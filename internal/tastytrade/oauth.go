package tastytrade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/algo-trading/tastytrade/internal/domain"
)

const (
	productionAuthURL = "https://oauth.tastytrade.com"
	sandboxAuthURL    = "https://cert-auth.staging-tasty.works"
)

// OAuthHandler maintains an access token via the venue's OAuth2 flows:
// authorization-code exchange for first issue, refresh-token grant
// thereafter. The access token is cached until shortly before expiry.
type OAuthHandler struct {
	clientID     string
	clientSecret string
	redirectURI  string
	baseURL      string
	authURL      string
	httpClient   *http.Client
	logger       *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
	Environment  domain.Environment
	// BaseURL overrides the token endpoint host chosen by Environment.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewOAuthHandler(cfg OAuthConfig) *OAuthHandler {
	baseURL := productionBaseURL
	authURL := productionAuthURL
	if cfg.Environment == domain.EnvironmentSandbox {
		baseURL = sandboxBaseURL
		authURL = sandboxAuthURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OAuthHandler{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		baseURL:      baseURL,
		authURL:      authURL,
		httpClient:   httpClient,
		logger:       cfg.Logger,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}
}

// AuthorizationHeader returns "Bearer <token>", refreshing the access token
// first if it is missing or expired.
func (h *OAuthHandler) AuthorizationHeader(ctx context.Context) (string, error) {
	token, err := h.accessTokenLocked(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

func (h *OAuthHandler) accessTokenLocked(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.accessToken != "" && time.Now().Before(h.tokenExpiry) {
		return h.accessToken, nil
	}
	if h.refreshToken == "" {
		return "", fmt.Errorf("oauth: no valid access token or refresh token available")
	}
	return h.refresh(ctx)
}

// refresh exchanges the refresh token for a new access token. Caller holds
// h.mu.
func (h *OAuthHandler) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {h.refreshToken},
		"client_id":     {h.clientID},
		"client_secret": {h.clientSecret},
	}

	result, err := h.tokenRequest(ctx, form)
	if err != nil {
		return "", fmt.Errorf("oauth: refresh access token: %w", err)
	}

	h.accessToken = result.AccessToken
	h.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.RefreshToken != "" {
		h.refreshToken = result.RefreshToken
	}

	h.logger.Debug("access token refreshed", "expires_at", h.tokenExpiry)
	return h.accessToken, nil
}

// ExchangeCode trades an authorization code for the first token pair.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, code string) error {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {h.clientID},
		"client_secret": {h.clientSecret},
		"redirect_uri":  {h.redirectURI},
	}

	result, err := h.tokenRequest(ctx, form)
	if err != nil {
		return fmt.Errorf("oauth: exchange code for token: %w", err)
	}

	h.mu.Lock()
	h.accessToken = result.AccessToken
	h.refreshToken = result.RefreshToken
	h.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	h.mu.Unlock()

	h.logger.Info("authorization code exchanged for access token")
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (h *OAuthHandler) tokenRequest(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body [512]byte
		n, _ := resp.Body.Read(body[:])
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body[:n]))
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	return &result, nil
}

// AuthorizationURL builds the browser URL that starts the authorization
// code flow.
func (h *OAuthHandler) AuthorizationURL(state string) string {
	q := url.Values{
		"client_id":     {h.clientID},
		"redirect_uri":  {h.redirectURI},
		"response_type": {"code"},
		"scope":         {"trade"},
	}
	if state != "" {
		q.Set("state", state)
	}
	return h.authURL + "/authorize?" + q.Encode()
}
