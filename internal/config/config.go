// Package config provides configuration management for the proxy.
// It loads configuration from environment variables with sensible defaults
// and validates it so the application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8000)
//   - ENVIRONMENT: Deployment environment name used for CSV exports (default: development)
//   - LOG_LEVEL: Logging level (default: info)
//   - TLS_CERT_FILE / TLS_KEY_FILE: Optional TLS certificate pair
//
// SAP Integration Suite tenant:
//   - SAP_CLIENT_ID: OAuth2 client id (required)
//   - SAP_CLIENT_SECRET: OAuth2 client secret (required)
//   - SAP_TOKEN_URL: OAuth2 token endpoint (required, https)
//   - SAP_BASE_URL: Tenant API base URL (required, https)
//   - SAP_AUTH_STYLE: Token request credential submission, "form" or "basic" (default: form)
//
// Outbound HTTP behaviour:
//   - HTTP_TIMEOUT: Per-call timeout (default: 30s)
//   - MAX_RETRIES: Attempt budget for transient upstream failures (default: 3)
//   - TOKEN_REFRESH_BUFFER: Tokens are treated as expired this long before
//     their real expiry (default: 5m)
//   - CACHE_TTL: TTL for cached package/iflow list responses (default: 5m)
//   - RATE_LIMIT_ENABLED: Rate-limit outbound vendor calls (default: true)
//   - RATE_LIMIT_RPS: Sustained outbound requests per second (default: 10)
//   - RATE_LIMIT_BURST: Outbound burst size (default: 20)
//
// Persistence:
//   - CSV_EXPORT_DIR: Directory for configuration CSV exports (default: ./exports)
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the proxy. All fields correspond
// to environment variables that can be set to override the defaults.
// Call Validate() before use.
type Config struct {
	// Application settings
	Port        string // Server port number
	Environment string // Deployment environment name, keys CSV export files
	LogLevel    string // Logging level (debug, info, warn, error)
	TLSCertFile string // TLS certificate path, empty to serve plain HTTP
	TLSKeyFile  string // TLS key path

	// SAP tenant credentials
	SAPClientID     string // OAuth2 client id
	SAPClientSecret string // OAuth2 client secret
	SAPTokenURL     string // OAuth2 token endpoint
	SAPBaseURL      string // Tenant API base URL
	SAPAuthStyle    string // "form" (credentials as form fields) or "basic"

	// Outbound HTTP behaviour
	HTTPTimeout        time.Duration // Per-call timeout on every outbound request
	MaxRetries         int           // Attempt budget for transient failures
	TokenRefreshBuffer time.Duration // Expiry safety margin for cached tokens
	CacheTTL           time.Duration // Response cache TTL for list endpoints

	// Outbound rate limiting
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Persistence
	CSVExportDir string // Directory for CSV exports
}

// Load creates a new Config instance with values loaded from environment
// variables. It does not validate; call Validate() on the result.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		TLSCertFile: getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getEnv("TLS_KEY_FILE", ""),

		SAPClientID:     getEnv("SAP_CLIENT_ID", ""),
		SAPClientSecret: getEnv("SAP_CLIENT_SECRET", ""),
		SAPTokenURL:     getEnv("SAP_TOKEN_URL", ""),
		SAPBaseURL:      getEnv("SAP_BASE_URL", ""),
		SAPAuthStyle:    getEnv("SAP_AUTH_STYLE", "form"),

		HTTPTimeout:        getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:         getIntEnv("MAX_RETRIES", 3),
		TokenRefreshBuffer: getDurationEnv("TOKEN_REFRESH_BUFFER", 5*time.Minute),
		CacheTTL:           getDurationEnv("CACHE_TTL", 5*time.Minute),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getIntEnv("RATE_LIMIT_BURST", 20),

		CSVExportDir: getEnv("CSV_EXPORT_DIR", "./exports"),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getFloatEnv retrieves a float environment variable value or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable value or returns a
// default value. Bare integers are interpreted as seconds for compatibility
// with deployments configured before duration strings were accepted.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all required
// fields are present and all values are valid. The application should call
// this after Load() and before starting.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.SAPClientID == "" {
		return fmt.Errorf("SAP_CLIENT_ID environment variable is required")
	}
	if c.SAPClientSecret == "" {
		return fmt.Errorf("SAP_CLIENT_SECRET environment variable is required")
	}

	if err := requireHTTPSURL("SAP_TOKEN_URL", c.SAPTokenURL); err != nil {
		return err
	}
	if err := requireHTTPSURL("SAP_BASE_URL", c.SAPBaseURL); err != nil {
		return err
	}

	switch strings.ToLower(c.SAPAuthStyle) {
	case "form", "basic":
		// Valid auth styles
	default:
		return fmt.Errorf("SAP_AUTH_STYLE must be 'form' or 'basic'")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.TokenRefreshBuffer < 0 {
		return fmt.Errorf("TOKEN_REFRESH_BUFFER must not be negative")
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPS <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPS must be positive")
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
		}
	}

	if c.CSVExportDir == "" {
		return fmt.Errorf("CSV_EXPORT_DIR must not be empty")
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	return nil
}

// requireHTTPSURL validates that value is an absolute https URL
func requireHTTPSURL(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s environment variable is required", name)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%s must be a valid URL", name)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%s must use https", name)
	}
	return nil
}
