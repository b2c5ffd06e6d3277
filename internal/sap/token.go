package sap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cpi-proxy/internal/circuitbreaker"
	"cpi-proxy/internal/common/errors"
	commonhttp "cpi-proxy/internal/common/http"
	"cpi-proxy/internal/common/logging"
	"cpi-proxy/internal/models"
)

// DefaultRefreshBuffer is how long before real expiry a token is treated as
// expired. A token is only handed out while now < expiry - buffer.
const DefaultRefreshBuffer = 5 * time.Minute

// AuthStyle selects how client credentials are submitted to the token endpoint.
type AuthStyle string

const (
	// AuthStyleForm sends client_id/client_secret as form fields (default)
	AuthStyleForm AuthStyle = "form"
	// AuthStyleBasic sends the credentials as an HTTP Basic Authorization header
	AuthStyleBasic AuthStyle = "basic"
)

// Credentials identifies one tenant. Immutable once constructed and owned
// exclusively by one client instance.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	BaseURL      string
}

// Token is an OAuth2 client-credentials token. It is replaced wholesale on
// refresh, never partially updated.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used, honoring the refresh
// buffer: now must be before ExpiresAt - buffer.
func (t *Token) Valid(buffer time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return time.Now().Before(t.ExpiresAt.Add(-buffer))
}

// AuthorizationHeader returns the value for the Authorization request header
func (t *Token) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return fmt.Sprintf("%s %s", tokenType, t.AccessToken)
}

// tokenResponse maps the token endpoint's JSON body (RFC 6749)
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenManager owns the single cached token for one tenant and serializes
// refreshes so concurrent callers trigger exactly one upstream request.
type TokenManager struct {
	creds     Credentials
	authStyle AuthStyle
	buffer    time.Duration

	httpClient *http.Client
	breaker    *circuitbreaker.GoBreakerAdapter
	logger     logging.Logger

	// mu guards token; the read path only takes the read lock
	mu    sync.RWMutex
	token *Token
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithTokenHTTPClient sets the HTTP client used for token requests
func WithTokenHTTPClient(client *http.Client) TokenManagerOption {
	return func(m *TokenManager) {
		m.httpClient = client
	}
}

// WithAuthStyle selects form-field or Basic-auth credential submission
func WithAuthStyle(style AuthStyle) TokenManagerOption {
	return func(m *TokenManager) {
		m.authStyle = style
	}
}

// WithRefreshBuffer overrides the expiry safety margin
func WithRefreshBuffer(buffer time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		m.buffer = buffer
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger logging.Logger) TokenManagerOption {
	return func(m *TokenManager) {
		m.logger = logger
	}
}

// NewTokenManager creates a token manager for one tenant's credentials
func NewTokenManager(creds Credentials, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		creds:     creds,
		authStyle: AuthStyleForm,
		buffer:    DefaultRefreshBuffer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.authStyle = AuthStyle(strings.ToLower(string(m.authStyle)))
	if m.authStyle != AuthStyleBasic {
		m.authStyle = AuthStyleForm
	}

	if m.httpClient == nil {
		m.httpClient = commonhttp.NewHTTPClientWithTimeout(30 * time.Second)
	}
	if m.logger == nil {
		m.logger = logging.GetGlobalLogger()
	}
	m.breaker = circuitbreaker.NewGoBreaker("sap-oauth", circuitbreaker.OAuthConfig, m.logger)

	return m
}

// GetValidToken returns a token that satisfies the validity invariant at the
// moment it is returned. The fast path returns the cached token under a read
// lock with no network call. The slow path takes the write lock, re-checks
// validity (another caller may have refreshed while we waited), and performs
// a single client_credentials POST. Failures are authentication errors and
// are never silently retried.
func (m *TokenManager) GetValidToken(ctx context.Context) (Token, error) {
	m.mu.RLock()
	if m.token.Valid(m.buffer) {
		token := *m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-checked: a concurrent caller may have refreshed already
	if m.token.Valid(m.buffer) {
		return *m.token, nil
	}

	token, err := m.requestToken(ctx)
	if err != nil {
		return Token{}, err
	}

	m.token = token
	return *token, nil
}

// Invalidate drops the cached token so the next caller refreshes. Used when
// the tenant answers 401 despite a token we believed valid.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
}

// ForceRefresh discards the cached token and acquires a new one
func (m *TokenManager) ForceRefresh(ctx context.Context) (Token, error) {
	m.Invalidate()
	return m.GetValidToken(ctx)
}

// Status reports the cached token's state without exposing the token itself
func (m *TokenManager) Status() models.TokenStatus {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == nil || token.AccessToken == "" {
		return models.TokenStatus{
			HasToken:    false,
			TokenStatus: "none",
		}
	}

	status := "expired"
	if token.Valid(m.buffer) {
		status = "valid"
	}

	ttl := int(time.Until(token.ExpiresAt).Seconds())
	if ttl < 0 {
		ttl = 0
	}

	return models.TokenStatus{
		HasToken:            true,
		TokenStatus:         status,
		TokenType:           token.TokenType,
		ExpiresAt:           token.ExpiresAt.Format(time.RFC3339),
		TimeToExpirySeconds: &ttl,
	}
}

// requestToken performs one client_credentials POST against the token
// endpoint. Caller holds the write lock.
func (m *TokenManager) requestToken(ctx context.Context) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	if m.authStyle == AuthStyleForm {
		data.Set("client_id", m.creds.ClientID)
		data.Set("client_secret", m.creds.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.AuthError("failed to create token request", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if m.authStyle == AuthStyleBasic {
		req.SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret)
	}

	m.logger.Info("Requesting new access token",
		logging.Field{Key: "token_url", Value: m.creds.TokenURL},
		logging.Field{Key: "auth_style", Value: string(m.authStyle)})

	var resp *http.Response
	err = m.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = m.httpClient.Do(req)
		return httpErr
	})
	if err != nil {
		return nil, errors.AuthError("token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.AuthError("failed to read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.AuthError("token endpoint returned non-OK status", nil).
			WithContext("status", resp.StatusCode).
			WithContext("body", truncate(string(body), 512))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, errors.AuthError("malformed token response", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.AuthError("token response missing access_token", nil)
	}

	tokenType := tokenResp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	token := &Token{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenType,
		ExpiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
	}

	m.logger.Info("Access token obtained",
		logging.Field{Key: "expires_at", Value: token.ExpiresAt})

	return token, nil
}

// truncate bounds upstream bodies carried inside error context
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
