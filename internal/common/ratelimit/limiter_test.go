package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{Enabled: false}.Validate())
	assert.Error(t, Config{Enabled: true, RequestsPerSecond: 0, BurstSize: 1}.Validate())
	assert.Error(t, Config{Enabled: true, RequestsPerSecond: 5, BurstSize: 0}.Validate())
}

func TestDisabledLimiterPassesThrough(t *testing.T) {
	limiter, err := NewLocalLimiter(Config{Enabled: false})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.TryAcquire())
	}
	assert.NoError(t, limiter.Wait(context.Background()))
}

func TestTryAcquireExhaustsBurst(t *testing.T) {
	limiter, err := NewLocalLimiter(Config{Enabled: true, RequestsPerSecond: 1, BurstSize: 2})
	require.NoError(t, err)

	assert.True(t, limiter.TryAcquire())
	assert.True(t, limiter.TryAcquire())
	assert.False(t, limiter.TryAcquire())
}

func TestWaitRespectsContext(t *testing.T) {
	limiter, err := NewLocalLimiter(Config{Enabled: true, RequestsPerSecond: 0.1, BurstSize: 1})
	require.NoError(t, err)

	// Drain the burst
	require.True(t, limiter.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}
