package truelayer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/service"
)

var fastRetry = &service.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     2 * time.Millisecond,
	Multiplier:   2,
}

// newTestServer serves the token endpoint and hands API requests to api
// once the bearer token checks out.
func newTestServer(t *testing.T, api http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))

		switch r.PostForm.Get("grant_type") {
		case "refresh_token":
			if r.PostForm.Get("refresh_token") != "rt-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "authorization_code":
			assert.Equal(t, "code-1", r.PostForm.Get("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "rt-1",
		})
	})
	mux.HandleFunc("/data/v1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		api(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, refreshToken string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RefreshToken: refreshToken,
		RedirectURL:  "http://localhost:3000/callback",
		AuthURL:      srv.URL,
		APIURL:       srv.URL,
		HTTPClient:   srv.Client(),
		Retry:        fastRetry,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		config  Config
	}{
		{name: "valid sandbox", config: Config{ClientID: "id", ClientSecret: "s", Environment: "sandbox"}},
		{name: "default environment", config: Config{ClientID: "id", ClientSecret: "s"}},
		{name: "live", config: Config{ClientID: "id", ClientSecret: "s", Environment: "live"}},
		{name: "missing client ID", config: Config{ClientSecret: "s"}, wantErr: ErrNotConfigured},
		{name: "missing secret", config: Config{ClientID: "id"}, wantErr: ErrNotConfigured},
		{name: "invalid environment", config: Config{ClientID: "id", ClientSecret: "s", Environment: "staging"}, wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClient_AuthCodeURL(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantHost    string
	}{
		{name: "sandbox", environment: "sandbox", wantHost: "auth.truelayer-sandbox.com"},
		{name: "live", environment: "live", wantHost: "auth.truelayer.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(Config{ClientID: "id", ClientSecret: "s", Environment: tt.environment, RedirectURL: "http://localhost/cb"})
			require.NoError(t, err)

			u, err := url.Parse(c.AuthCodeURL("state-1"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, u.Host)
			q := u.Query()
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, "state-1", q.Get("state"))
			assert.Equal(t, "info accounts balance transactions offline_access", q.Get("scope"))
			assert.Equal(t, "uk-ob-all uk-oauth-all", q.Get("providers"))
		})
	}
}

func TestClient_RefreshTokenAuthorizesRequests(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/v1/accounts", r.URL.Path)
		writeJSON(w, AccountsResponse{Status: "Succeeded", Results: []Account{{AccountID: "acc-1", DisplayName: "Current"}}})
	})
	c := newTestClient(t, srv, "rt-1")

	accounts, err := c.GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].AccountID)

	tok, err := c.Token()
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
}

func TestClient_Exchange(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, AccountsResponse{})
	})
	c := newTestClient(t, srv, "")

	_, err := c.GetAccounts(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)

	tok, err := c.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)

	_, err = c.GetAccounts(context.Background())
	assert.NoError(t, err)
}

func TestClient_BadRefreshToken(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, AccountsResponse{})
	})
	c := newTestClient(t, srv, "revoked")

	_, err := c.GetAccounts(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, BalanceResponse{Results: []Balance{{Currency: "GBP", Current: 10}}})
	})
	c := newTestClient(t, srv, "rt-1")

	balances, err := c.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, srv, "rt-1")

	_, err := c.GetBalance(context.Background(), "acc-1")
	assert.ErrorIs(t, err, common.ErrMaxRetries)
	assert.ErrorIs(t, err, common.ErrProviderRateLimit)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-Request-Id", "req-9")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_date_range","error_description":"from is after to"}`))
	})
	c := newTestClient(t, srv, "rt-1")

	_, err := c.GetTransactions(context.Background(), "acc-1", time.Now(), time.Now().Add(-time.Hour))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_date_range", apiErr.ErrorType)
	assert.Equal(t, "from is after to", apiErr.Message)
	assert.Equal(t, "req-9", apiErr.RequestID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ForbiddenNeedsConsent(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	c := newTestClient(t, srv, "rt-1")

	_, err := c.GetPendingTransactions(context.Background(), "acc-1")
	assert.ErrorIs(t, err, ErrConsentRequired)
}
