package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"SAP_CLIENT_ID", "SAP_CLIENT_SECRET", "SAP_TOKEN_URL", "SAP_BASE_URL",
	"SAP_AUTH_STYLE", "HTTP_TIMEOUT", "MAX_RETRIES", "TOKEN_REFRESH_BUFFER",
	"CACHE_TTL", "RATE_LIMIT_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"CSV_EXPORT_DIR",
}

func clearTestEnvVars() {
	for _, key := range configEnvVars {
		os.Unsetenv(key)
	}
}

func validTestConfig() *Config {
	cfg := Load()
	cfg.SAPClientID = "sb-client"
	cfg.SAPClientSecret = "secret"
	cfg.SAPTokenURL = "https://tenant.authentication.example.com/oauth/token"
	cfg.SAPBaseURL = "https://tenant.it-cpi.example.com"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	clearTestEnvVars()

	config := Load()

	if config.Port != "8000" {
		t.Errorf("Load() Port = %v, want %v", config.Port, "8000")
	}

	if config.Environment != "development" {
		t.Errorf("Load() Environment = %v, want %v", config.Environment, "development")
	}

	if config.LogLevel != "info" {
		t.Errorf("Load() LogLevel = %v, want %v", config.LogLevel, "info")
	}

	if config.SAPAuthStyle != "form" {
		t.Errorf("Load() SAPAuthStyle = %v, want %v", config.SAPAuthStyle, "form")
	}

	if config.HTTPTimeout != 30*time.Second {
		t.Errorf("Load() HTTPTimeout = %v, want %v", config.HTTPTimeout, 30*time.Second)
	}

	if config.MaxRetries != 3 {
		t.Errorf("Load() MaxRetries = %v, want %v", config.MaxRetries, 3)
	}

	if config.TokenRefreshBuffer != 5*time.Minute {
		t.Errorf("Load() TokenRefreshBuffer = %v, want %v", config.TokenRefreshBuffer, 5*time.Minute)
	}

	if !config.RateLimitEnabled {
		t.Errorf("Load() RateLimitEnabled = %v, want true", config.RateLimitEnabled)
	}

	if config.CSVExportDir != "./exports" {
		t.Errorf("Load() CSVExportDir = %v, want %v", config.CSVExportDir, "./exports")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearTestEnvVars()
	defer clearTestEnvVars()

	os.Setenv("PORT", "9090")
	os.Setenv("SAP_AUTH_STYLE", "basic")
	os.Setenv("HTTP_TIMEOUT", "10s")
	os.Setenv("MAX_RETRIES", "5")
	os.Setenv("TOKEN_REFRESH_BUFFER", "300")

	config := Load()

	if config.Port != "9090" {
		t.Errorf("Load() Port = %v, want %v", config.Port, "9090")
	}

	if config.SAPAuthStyle != "basic" {
		t.Errorf("Load() SAPAuthStyle = %v, want %v", config.SAPAuthStyle, "basic")
	}

	if config.HTTPTimeout != 10*time.Second {
		t.Errorf("Load() HTTPTimeout = %v, want %v", config.HTTPTimeout, 10*time.Second)
	}

	if config.MaxRetries != 5 {
		t.Errorf("Load() MaxRetries = %v, want %v", config.MaxRetries, 5)
	}

	// Bare integers are interpreted as seconds
	if config.TokenRefreshBuffer != 300*time.Second {
		t.Errorf("Load() TokenRefreshBuffer = %v, want %v", config.TokenRefreshBuffer, 300*time.Second)
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	clearTestEnvVars()

	if err := validTestConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	clearTestEnvVars()

	cfg := validTestConfig()
	cfg.SAPClientID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for missing SAP_CLIENT_ID")
	}

	cfg = validTestConfig()
	cfg.SAPClientSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for missing SAP_CLIENT_SECRET")
	}
}

func TestValidateRejectsNonHTTPSURLs(t *testing.T) {
	clearTestEnvVars()

	cfg := validTestConfig()
	cfg.SAPTokenURL = "http://tenant.example.com/oauth/token"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for http token URL")
	}

	cfg = validTestConfig()
	cfg.SAPBaseURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for invalid base URL")
	}
}

func TestValidateRejectsBadAuthStyle(t *testing.T) {
	clearTestEnvVars()

	cfg := validTestConfig()
	cfg.SAPAuthStyle = "digest"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for unsupported auth style")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	clearTestEnvVars()

	cfg := validTestConfig()
	cfg.Port = "not-a-port"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for invalid port")
	}

	cfg.Port = "70000"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for out-of-range port")
	}
}

func TestValidateRejectsHalfTLSPair(t *testing.T) {
	clearTestEnvVars()

	cfg := validTestConfig()
	cfg.TLSCertFile = "/etc/tls/cert.pem"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for cert without key")
	}
}

func TestValidateRejectsBadRateLimit(t *testing.T) {
	clearTestEnvVars()

	cfg := validTestConfig()
	cfg.RateLimitRPS = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for zero RPS with limiting enabled")
	}

	cfg = validTestConfig()
	cfg.RateLimitEnabled = false
	cfg.RateLimitRPS = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error with limiting disabled: %v", err)
	}
}
