package circuitbreaker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpi-proxy/internal/common/errors"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, UpstreamConfig.Validate())
	assert.NoError(t, OAuthConfig.Validate())

	bad := Config{MaxFailures: 0, Timeout: time.Second, MaxConcurrentRequests: 1}
	assert.Error(t, bad.Validate())

	bad = Config{MaxFailures: 3, Timeout: 0, MaxConcurrentRequests: 1}
	assert.Error(t, bad.Validate())
}

func TestExecuteSuccess(t *testing.T) {
	cb := NewGoBreaker("test", DefaultConfig(), nil)

	err := cb.Execute(context.Background(), func() error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecutePassesThroughError(t *testing.T) {
	cb := NewGoBreaker("test", DefaultConfig(), nil)

	boom := fmt.Errorf("boom")
	err := cb.Execute(context.Background(), func() error {
		return boom
	})

	assert.Equal(t, boom, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	config := Config{MaxFailures: 3, Timeout: time.Minute, MaxConcurrentRequests: 1}
	cb := NewGoBreaker("test", config, nil)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return fmt.Errorf("upstream down")
		})
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error {
		t.Fatal("function should not run while circuit is open")
		return nil
	})

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
}

func TestClientErrorsDoNotTrip(t *testing.T) {
	config := Config{MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1}
	cb := NewGoBreaker("test", config, nil)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.NotFoundError("artifact")
		})
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestStats(t *testing.T) {
	cb := NewGoBreaker("stats", DefaultConfig(), nil)

	_ = cb.Execute(context.Background(), func() error { return nil })

	stats := cb.Stats()
	assert.Equal(t, "stats", stats.Name)
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, 1, stats.Successes)
}
