// Package truelayer provides a read-only client for the TrueLayer Data API
// used to sync UK bank accounts.
package truelayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/service"
)

// TrueLayer API endpoints.
const (
	sandboxAuthURL = "https://auth.truelayer-sandbox.com"
	sandboxAPIURL  = "https://api.truelayer-sandbox.com"

	liveAuthURL = "https://auth.truelayer.com"
	liveAPIURL  = "https://api.truelayer.com"
)

// Config holds TrueLayer API configuration.
type Config struct {
	// HTTPClient is an optional base client, also used for token requests.
	HTTPClient *http.Client
	// Retry overrides the default retry policy.
	Retry *service.RetryOptions

	ClientID     string
	ClientSecret string
	Environment  string // sandbox or live
	RedirectURL  string
	// RefreshToken, when set, authorizes the client without a code exchange.
	RefreshToken string

	// AuthURL and APIURL override the environment endpoints.
	AuthURL string
	APIURL  string
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrNotConfigured
	}
	switch strings.ToLower(c.Environment) {
	case "", "sandbox", "live", "production":
	default:
		return fmt.Errorf("%w: invalid TrueLayer environment %q: must be sandbox or live", common.ErrInvalidConfig, c.Environment)
	}
	return nil
}

// Client talks to the TrueLayer Data API with an auto-refreshing OAuth2 token.
type Client struct {
	base      *http.Client
	oauth     *oauth2.Config
	logger    *slog.Logger
	retryOpts service.RetryOptions
	apiURL    string

	mu     sync.RWMutex
	source oauth2.TokenSource
}

// NewClient creates a client. When cfg carries a refresh token the client is
// ready to use; otherwise call Exchange with an authorization code first.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	authURL, apiURL := sandboxAuthURL, sandboxAPIURL
	switch strings.ToLower(cfg.Environment) {
	case "live", "production":
		authURL, apiURL = liveAuthURL, liveAPIURL
	}
	if cfg.AuthURL != "" {
		authURL = strings.TrimRight(cfg.AuthURL, "/")
	}
	if cfg.APIURL != "" {
		apiURL = strings.TrimRight(cfg.APIURL, "/")
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}

	retryOpts := service.DefaultRetryOptions()
	if cfg.Retry != nil {
		retryOpts = *cfg.Retry
	}

	c := &Client{
		base: base,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       DefaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL + "/",
				TokenURL:  authURL + "/connect/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:    apiURL,
		retryOpts: retryOpts,
		logger:    common.ComponentLogger("truelayer"),
	}

	if cfg.RefreshToken != "" {
		c.setToken(&oauth2.Token{RefreshToken: cfg.RefreshToken})
	}
	return c, nil
}

// AuthCodeURL returns the consent page URL for state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("providers", "uk-ob-all uk-oauth-all"))
}

// Exchange trades an authorization code for a token and starts using it.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.tokenContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	c.setToken(tok)
	return tok, nil
}

// Token returns the current token, refreshing it if it has expired. Persist
// its refresh token to resume later.
func (c *Client) Token() (*oauth2.Token, error) {
	src, err := c.tokenSource()
	if err != nil {
		return nil, err
	}
	return src.Token()
}

func (c *Client) setToken(tok *oauth2.Token) {
	// The token source outlives any single request, so it must not hold a
	// request context.
	src := c.oauth.TokenSource(c.tokenContext(context.Background()), tok)
	c.mu.Lock()
	c.source = oauth2.ReuseTokenSource(tok, src)
	c.mu.Unlock()
}

func (c *Client) tokenSource() (oauth2.TokenSource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.source == nil {
		return nil, ErrInvalidToken
	}
	return c.source, nil
}

func (c *Client) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.base)
}

// GetAccounts lists the accounts covered by the consent.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	resp, err := doGet[AccountsResponse](ctx, c, "/data/v1/accounts")
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetBalance fetches the balance of an account.
func (c *Client) GetBalance(ctx context.Context, accountID string) ([]Balance, error) {
	resp, err := doGet[BalanceResponse](ctx, c, "/data/v1/accounts/"+url.PathEscape(accountID)+"/balance")
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetTransactions fetches booked transactions of an account in [from, to].
func (c *Client) GetTransactions(ctx context.Context, accountID string, from, to time.Time) ([]Transaction, error) {
	path := "/data/v1/accounts/" + url.PathEscape(accountID) + "/transactions"

	// Add date range parameters
	params := url.Values{}
	if !from.IsZero() {
		params.Set("from", from.UTC().Format(time.RFC3339))
	}
	if !to.IsZero() {
		params.Set("to", to.UTC().Format(time.RFC3339))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := doGet[TransactionsResponse](ctx, c, path)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetPendingTransactions fetches transactions not yet booked.
func (c *Client) GetPendingTransactions(ctx context.Context, accountID string) ([]Transaction, error) {
	resp, err := doGet[TransactionsResponse](ctx, c, "/data/v1/accounts/"+url.PathEscape(accountID)+"/transactions/pending")
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// doGet performs an authorized GET with retry and decodes the response.
func doGet[T any](ctx context.Context, c *Client, path string) (*T, error) {
	src, err := c.tokenSource()
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Timeout:   c.base.Timeout,
		Transport: &oauth2.Transport{Source: src, Base: c.base.Transport},
	}

	var result T
	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			var retrieveErr *oauth2.RetrieveError
			if errors.As(err, &retrieveErr) {
				return fmt.Errorf("%w: %w", ErrInvalidToken, err)
			}
			return &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return c.parseError(resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// parseError turns a non-200 response into an error, marking rate limits and
// server errors retryable.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.ErrorType = errResp.Error
		apiErr.Message = errResp.ErrorDescription
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrInvalidToken, apiErr)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrConsentRequired, apiErr)
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("Rate limit hit, will retry", "request_id", apiErr.RequestID)
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrProviderRateLimit, apiErr), Retryable: true}
	case apiErr.IsRetryable():
		return &common.RetryableError{Err: apiErr, Retryable: true}
	}
	return apiErr
}
