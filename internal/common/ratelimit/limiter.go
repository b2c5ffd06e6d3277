// Package ratelimit bounds the rate of outbound calls toward the vendor API.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	// Enabled toggles rate limiting; when false all operations pass through
	Enabled bool
	// RequestsPerSecond is the sustained request rate
	RequestsPerSecond float64
	// BurstSize is the maximum burst above the sustained rate
	BurstSize int
}

// DefaultConfig returns a limiter configuration suitable for a single tenant
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerSecond: 10,
		BurstSize:         20,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("RequestsPerSecond must be positive, got %v", c.RequestsPerSecond)
	}
	if c.BurstSize < 1 {
		return fmt.Errorf("BurstSize must be at least 1, got %d", c.BurstSize)
	}
	return nil
}

// Limiter is the interface consumed by outbound callers
type Limiter interface {
	// Wait blocks until a request may be made or the context is cancelled
	Wait(ctx context.Context) error
	// TryAcquire attempts to acquire a slot without blocking
	TryAcquire() bool
}

// localLimiter implements Limiter using golang.org/x/time/rate
type localLimiter struct {
	config  Config
	limiter *rate.Limiter
}

// NewLocalLimiter creates a new in-process token bucket limiter
func NewLocalLimiter(config Config) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &localLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
	}, nil
}

// Wait blocks until a request can be made according to the rate limit
func (rl *localLimiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}
	return rl.limiter.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking
func (rl *localLimiter) TryAcquire() bool {
	if !rl.config.Enabled {
		return true
	}
	return rl.limiter.Allow()
}
