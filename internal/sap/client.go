package sap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cpi-proxy/internal/circuitbreaker"
	"cpi-proxy/internal/common/cache"
	"cpi-proxy/internal/common/errors"
	commonhttp "cpi-proxy/internal/common/http"
	"cpi-proxy/internal/common/logging"
	"cpi-proxy/internal/common/ratelimit"
	"cpi-proxy/internal/common/utils"
	"cpi-proxy/internal/models"
)

const (
	packagesPath  = "/api/v1/IntegrationPackages"
	artifactsPath = "/api/v1/IntegrationDesigntimeArtifacts"
	deployPath    = "/api/v1/DeployIntegrationDesigntimeArtifact"

	cacheKeyPackages = "sap:packages"
	cacheKeyIFlows   = "sap:iflows"
)

// Client is the single gateway to one tenant's designtime API. It owns the
// token manager for its credentials and applies the shared upstream policy:
// rate limiting, circuit breaking, bounded retry with exponential backoff,
// one token refresh on 401, and envelope normalization of every list body.
type Client struct {
	creds      Credentials
	httpClient *http.Client
	tokens     *TokenManager
	breaker    *circuitbreaker.GoBreakerAdapter
	limiter    ratelimit.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	retryCfg   utils.RetryConfig
	logger     logging.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for API and token requests
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimiter throttles outgoing API requests
func WithRateLimiter(limiter ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithCache caches package and iFlow listings for the given TTL
func WithCache(store cache.Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// WithRetryConfig overrides the upstream retry profile
func WithRetryConfig(cfg utils.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retryCfg = cfg
	}
}

// WithMaxRetries bounds the attempts of the default retry profile
func WithMaxRetries(attempts int) ClientOption {
	return func(c *Client) {
		c.retryCfg = utils.UpstreamRetryConfig(attempts)
	}
}

// WithTokenManager replaces the token manager built from the credentials
func WithTokenManager(tokens *TokenManager) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for one tenant
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		creds:    creds,
		retryCfg: utils.UpstreamRetryConfig(3),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = commonhttp.NewHTTPClientWithTimeout(30 * time.Second)
	}
	if c.logger == nil {
		c.logger = logging.GetGlobalLogger()
	}
	if c.tokens == nil {
		c.tokens = NewTokenManager(creds,
			WithTokenHTTPClient(c.httpClient),
			WithTokenLogger(c.logger))
	}
	c.retryCfg.RetryableErrors = isRetryableUpstream
	c.breaker = circuitbreaker.NewGoBreaker("sap-upstream", circuitbreaker.UpstreamConfig, c.logger)

	return c
}

// isRetryableUpstream marks transient failures worth another attempt:
// connection resets, timeouts, and 5xx answers. Authentication failures and
// client-side statuses are terminal.
func isRetryableUpstream(err error) bool {
	switch errors.GetType(err) {
	case errors.ErrTypeConnection, errors.ErrTypeTimeout, errors.ErrTypeUpstream:
		return true
	}
	return false
}

// TokenStatus reports the state of the cached OAuth token
func (c *Client) TokenStatus() models.TokenStatus {
	return c.tokens.Status()
}

// RefreshToken forces a new token and reports its status
func (c *Client) RefreshToken(ctx context.Context) (models.TokenStatus, error) {
	if _, err := c.tokens.ForceRefresh(ctx); err != nil {
		return models.TokenStatus{}, err
	}
	return c.tokens.Status(), nil
}

// ClearCache drops cached listings, forcing the next call upstream
func (c *Client) ClearCache(ctx context.Context) {
	if c.cache == nil {
		return
	}
	c.cache.Delete(ctx, cacheKeyPackages)
	c.cache.Delete(ctx, cacheKeyIFlows)
}

// Ping performs a minimal authenticated request against the tenant
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.fetch(ctx, http.MethodGet, packagesPath+"?$top=1")
	return err
}

// GetIntegrationPackages lists all integration packages on the tenant
func (c *Client) GetIntegrationPackages(ctx context.Context) ([]models.IntegrationPackage, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKeyPackages); ok {
			if packages, ok := cached.([]models.IntegrationPackage); ok {
				return packages, nil
			}
		}
	}

	records, err := c.fetchCollection(ctx, packagesPath)
	if err != nil {
		return nil, err
	}

	packages := make([]models.IntegrationPackage, 0, len(records))
	for _, record := range records {
		if pkg, ok := mapIntegrationPackage(record); ok {
			packages = append(packages, pkg)
		}
	}

	if c.cache != nil {
		c.cache.Set(ctx, cacheKeyPackages, packages, c.cacheTTL)
	}

	c.logger.Info("Fetched integration packages",
		logging.Field{Key: "count", Value: len(packages)})
	return packages, nil
}

// GetIntegrationFlows lists all integration flow artifacts on the tenant
func (c *Client) GetIntegrationFlows(ctx context.Context) ([]models.IntegrationFlow, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKeyIFlows); ok {
			if flows, ok := cached.([]models.IntegrationFlow); ok {
				return flows, nil
			}
		}
	}

	path := artifactsPath + "?$filter=" + url.QueryEscape("Type eq 'IntegrationFlow'")
	records, err := c.fetchCollection(ctx, path)
	if err != nil {
		return nil, err
	}

	flows := make([]models.IntegrationFlow, 0, len(records))
	for _, record := range records {
		if flow, ok := mapIntegrationFlow(record); ok {
			flows = append(flows, flow)
		}
	}

	if c.cache != nil {
		c.cache.Set(ctx, cacheKeyIFlows, flows, c.cacheTTL)
	}

	c.logger.Info("Fetched integration flows",
		logging.Field{Key: "count", Value: len(flows)})
	return flows, nil
}

// GetPackageDetails fetches one package by id
func (c *Client) GetPackageDetails(ctx context.Context, packageID string) (*models.IntegrationPackage, error) {
	path := fmt.Sprintf("%s('%s')", packagesPath, url.PathEscape(packageID))
	record, err := c.fetchEntity(ctx, path, "integration package")
	if err != nil {
		return nil, err
	}

	pkg, ok := mapIntegrationPackage(record)
	if !ok {
		return nil, errors.UpstreamError("package response missing id", nil).
			WithContext("package_id", packageID)
	}
	return &pkg, nil
}

// GetIFlowDetails fetches one iFlow artifact by id
func (c *Client) GetIFlowDetails(ctx context.Context, iflowID string) (*models.IntegrationFlow, error) {
	path := fmt.Sprintf("%s(Id='%s',Version='active')", artifactsPath, url.PathEscape(iflowID))
	record, err := c.fetchEntity(ctx, path, "integration flow")
	if err != nil {
		return nil, err
	}

	flow, ok := mapIntegrationFlow(record)
	if !ok {
		return nil, errors.UpstreamError("iFlow response missing id", nil).
			WithContext("iflow_id", iflowID)
	}
	return &flow, nil
}

// GetIFlowConfigurations fetches the externalized parameters of one iFlow.
// All failures degrade to an empty parameter list so a single broken artifact
// does not sink a whole tenant sweep. Absence of configuration is a normal
// terminal state for this endpoint, not an error.
func (c *Client) GetIFlowConfigurations(ctx context.Context, iflowID string) ([]models.ConfigurationParameter, error) {
	path := fmt.Sprintf("%s(Id='%s',Version='active')/Configurations", artifactsPath, url.PathEscape(iflowID))
	records, err := c.fetchCollection(ctx, path)
	if err != nil {
		c.logger.Warn("Configuration fetch failed, returning empty parameter list",
			logging.Field{Key: "iflow_id", Value: iflowID},
			logging.Field{Key: "error", Value: err.Error()})
		return []models.ConfigurationParameter{}, nil
	}
	return mapConfigurationParameters(records), nil
}

// DeployIFlow triggers deployment of an iFlow's active version. Unlike the
// read paths this hard-fails: a deployment must never silently not happen.
func (c *Client) DeployIFlow(ctx context.Context, iflowID string) error {
	path := fmt.Sprintf("%s?Id='%s'&Version='active'", deployPath, url.QueryEscape(iflowID))
	body, status, err := c.fetch(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}

	switch {
	case status >= 200 && status < 300:
		c.logger.Info("Deployment triggered",
			logging.Field{Key: "iflow_id", Value: iflowID},
			logging.Field{Key: "status", Value: status})
		return nil
	case status == http.StatusNotFound:
		return errors.NotFoundError("integration flow")
	default:
		return errors.UpstreamError("deployment rejected by vendor API", nil).
			WithContext("iflow_id", iflowID).
			WithContext("status", status).
			WithContext("body", truncate(string(body), 512))
	}
}

// fetchCollection fetches a list resource and normalizes its envelope.
// 404 and malformed bodies both yield an empty collection.
func (c *Client) fetchCollection(ctx context.Context, path string) ([]map[string]interface{}, error) {
	body, status, err := c.fetch(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK:
		return normalizeEnvelope(body), nil
	case status == http.StatusNotFound:
		return nil, nil
	default:
		return nil, errors.UpstreamError("unexpected vendor API status", nil).
			WithContext("path", path).
			WithContext("status", status).
			WithContext("body", truncate(string(body), 512))
	}
}

// fetchEntity fetches a single resource. 404 maps to a not-found error,
// everything else follows the collection rules.
func (c *Client) fetchEntity(ctx context.Context, path, resource string) (map[string]interface{}, error) {
	body, status, err := c.fetch(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK:
		record := normalizeObject(body)
		if record == nil {
			return nil, errors.UpstreamError("malformed vendor API response", nil).
				WithContext("path", path)
		}
		return record, nil
	case status == http.StatusNotFound:
		return nil, errors.NotFoundError(resource)
	default:
		return nil, errors.UpstreamError("unexpected vendor API status", nil).
			WithContext("path", path).
			WithContext("status", status).
			WithContext("body", truncate(string(body), 512))
	}
}

// fetch runs the request under the full upstream policy. 5xx and transport
// failures are retried with exponential backoff; a 401 invalidates the token
// and earns exactly one fresh-token retry before becoming fatal. The returned
// status is never 401 or 5xx.
func (c *Client) fetch(ctx context.Context, method, path string) ([]byte, int, error) {
	body, status, err := c.attempt(ctx, method, path)
	if err != nil {
		return nil, 0, err
	}

	if status == http.StatusUnauthorized {
		c.logger.Warn("Unauthorized response, refreshing token",
			logging.Field{Key: "path", Value: path})
		c.tokens.Invalidate()

		body, status, err = c.attempt(ctx, method, path)
		if err != nil {
			return nil, 0, err
		}
		if status == http.StatusUnauthorized {
			return nil, 0, errors.AuthError("still unauthorized after token refresh", nil).
				WithContext("path", path)
		}
	}

	return body, status, nil
}

// attempt runs one request through rate limiter, breaker, and backoff.
// Terminal statuses (anything below 500) are returned to the caller without
// consuming retry attempts.
func (c *Client) attempt(ctx context.Context, method, path string) ([]byte, int, error) {
	var body []byte
	var status int

	err := utils.RetryWithBackoff(ctx, c.retryCfg, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errors.RateLimitError("vendor API").WithContext("cause", err.Error())
			}
		}

		token, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.creds.BaseURL+path, nil)
		if err != nil {
			return errors.InternalError("failed to create request", err)
		}
		req.Header.Set("Authorization", token.AuthorizationHeader())
		req.Header.Set("Accept", "application/json")

		var resp *http.Response
		brkErr := c.breaker.Execute(ctx, func() error {
			r, httpErr := c.httpClient.Do(req)
			if httpErr != nil {
				return errors.ConnectionError("request to vendor API failed", httpErr)
			}
			resp = r
			return nil
		})
		if brkErr != nil {
			return brkErr
		}
		defer resp.Body.Close()

		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return errors.ConnectionError("failed to read vendor API response", readErr)
		}

		if resp.StatusCode >= 500 {
			return errors.UpstreamError("vendor API server error", nil).
				WithContext("path", path).
				WithContext("status", resp.StatusCode).
				WithContext("body", truncate(string(b), 512))
		}

		body = b
		status = resp.StatusCode
		return nil
	})
	if err != nil {
		if errors.IsType(err, errors.ErrTypeAuth) {
			return nil, 0, err
		}
		return nil, 0, errors.UpstreamError("vendor API request failed", err).
			WithContext("path", path)
	}

	return body, status, nil
}
