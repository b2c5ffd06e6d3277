package sap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpi-proxy/internal/common/cache"
	"cpi-proxy/internal/common/errors"
	"cpi-proxy/internal/common/utils"
)

// fastRetry keeps the exponential backoff shape but at millisecond scale
func fastRetry() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// tenant is a fake vendor API plus token endpoint behind one listener
type tenant struct {
	srv       *httptest.Server
	tokenHits int32
	apiHits   int32
}

func newTenant(t *testing.T, api http.HandlerFunc) *tenant {
	t.Helper()
	tn := &tenant{}
	tn.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			n := atomic.AddInt32(&tn.tokenHits, 1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
			return
		}
		atomic.AddInt32(&tn.apiHits, 1)
		api(w, r)
	}))
	t.Cleanup(tn.srv.Close)
	return tn
}

func (tn *tenant) client(opts ...ClientOption) *Client {
	creds := Credentials{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tn.srv.URL + "/oauth/token",
		BaseURL:      tn.srv.URL,
	}
	opts = append([]ClientOption{WithRetryConfig(fastRetry())}, opts...)
	return NewClient(creds, opts...)
}

func TestGetIntegrationPackages(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, packagesPath, r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"d":{"results":[{"Id":"pkg-1","Name":"Billing"},{"Id":"pkg-2"}]}}`)
	})

	packages, err := tn.client().GetIntegrationPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, packages, 2)
	assert.Equal(t, "pkg-1", packages[0].ID)
	assert.Equal(t, "Billing", packages[0].Name)
}

func TestGetIntegrationFlowsFilter(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, artifactsPath, r.URL.Path)
		assert.Equal(t, "Type eq 'IntegrationFlow'", r.URL.Query().Get("$filter"))
		fmt.Fprint(w, `{"d":{"results":[{"Id":"flow-1","Name":"Invoice Sync"}]}}`)
	})

	flows, err := tn.client().GetIntegrationFlows(context.Background())
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "flow-1", flows[0].ID)
}

func TestNotFoundYieldsEmptyCollection(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	packages, err := tn.client().GetIntegrationPackages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, packages)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tn.apiHits))
}

func TestMalformedBodyYieldsEmptyCollection(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"d": [truncated`)
	})

	packages, err := tn.client().GetIntegrationPackages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, packages)
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := tn.client().GetIntegrationPackages(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Equal(t, int32(3), atomic.LoadInt32(&tn.apiHits))
}

func TestServerErrorThenSuccess(t *testing.T) {
	var calls int32
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"d":{"results":[{"Id":"pkg-1"}]}}`)
	})

	packages, err := tn.client().GetIntegrationPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&tn.apiHits))
}

func TestUnauthorizedTriggersSingleRefresh(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		// Only the second token is accepted
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"d":{"results":[{"Id":"pkg-1"}]}}`)
	})

	packages, err := tn.client().GetIntegrationPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tn.tokenHits))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tn.apiHits))
}

func TestUnauthorizedAfterRefreshIsFatal(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := tn.client().GetIntegrationPackages(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
	// One original attempt plus exactly one fresh-token retry
	assert.Equal(t, int32(2), atomic.LoadInt32(&tn.apiHits))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tn.tokenHits))
}

func TestUnexpectedStatusFailsFast(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := tn.client().GetIntegrationPackages(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tn.apiHits))
}

func TestGetPackageDetails(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"d":{"Id":"pkg-1","Name":"Billing","Version":"1.0.4"}}`)
	})

	pkg, err := tn.client().GetPackageDetails(context.Background(), "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, "pkg-1", pkg.ID)
	assert.Equal(t, "1.0.4", pkg.Version)
}

func TestGetPackageDetailsNotFound(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := tn.client().GetPackageDetails(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestGetIFlowConfigurationsSoftFailure(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	params, err := tn.client().GetIFlowConfigurations(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestGetIFlowConfigurationsSoftAuthFailure(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	params, err := tn.client().GetIFlowConfigurations(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.Empty(t, params)
	// One original attempt plus exactly one fresh-token retry
	assert.Equal(t, int32(2), atomic.LoadInt32(&tn.apiHits))
}

func TestGetIFlowConfigurations(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/Configurations")
		fmt.Fprint(w, `{"d":{"results":[
			{"ParameterKey":"host","ParameterValue":"example.com","Mandatory":"true"},
			{"ParameterKey":"","ParameterValue":"dropped"}
		]}}`)
	})

	params, err := tn.client().GetIFlowConfigurations(context.Background(), "flow-1")
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "host", params[0].Key)
	assert.True(t, params[0].Mandatory)
}

func TestDeployIFlow(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, deployPath, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	})

	err := tn.client().DeployIFlow(context.Background(), "flow-1")
	require.NoError(t, err)
}

func TestDeployIFlowHardFailure(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := tn.client().DeployIFlow(context.Background(), "flow-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
}

func TestListingsAreCached(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"d":{"results":[{"Id":"pkg-1"}]}}`)
	})

	store := cache.NewLocalCache(time.Minute, time.Minute)
	client := tn.client(WithCache(store, time.Minute))

	ctx := context.Background()
	_, err := client.GetIntegrationPackages(ctx)
	require.NoError(t, err)
	_, err = client.GetIntegrationPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tn.apiHits))

	client.ClearCache(ctx)
	_, err = client.GetIntegrationPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tn.apiHits))
}

func TestTokenStatusAndRefresh(t *testing.T) {
	tn := newTenant(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"d":{"results":[]}}`)
	})

	client := tn.client()
	assert.False(t, client.TokenStatus().HasToken)

	status, err := client.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.True(t, status.HasToken)
	assert.Equal(t, "valid", status.TokenStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tn.tokenHits))
}
