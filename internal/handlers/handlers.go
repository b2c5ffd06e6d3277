package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"cpi-proxy/internal/common/errors"
	"cpi-proxy/internal/common/logging"
	"cpi-proxy/internal/config"
	"cpi-proxy/internal/csvstore"
	"cpi-proxy/internal/models"
	"cpi-proxy/internal/sap"
)

// SAPClient is the slice of the tenant client the handlers need
type SAPClient interface {
	Ping(ctx context.Context) error
	GetIntegrationPackages(ctx context.Context) ([]models.IntegrationPackage, error)
	GetIntegrationFlows(ctx context.Context) ([]models.IntegrationFlow, error)
	GetPackageDetails(ctx context.Context, packageID string) (*models.IntegrationPackage, error)
	GetIFlowDetails(ctx context.Context, iflowID string) (*models.IntegrationFlow, error)
	GetIFlowConfigurations(ctx context.Context, iflowID string) ([]models.ConfigurationParameter, error)
	DeployIFlow(ctx context.Context, iflowID string) error
	TokenStatus() models.TokenStatus
	RefreshToken(ctx context.Context) (models.TokenStatus, error)
}

// Handlers carries the dependencies of every endpoint
type Handlers struct {
	client   SAPClient
	store    *csvstore.Store
	config   *config.Config
	validate *validator.Validate
	logger   logging.Logger
	started  time.Time
}

// New creates the handler set
func New(client SAPClient, store *csvstore.Store, cfg *config.Config) *Handlers {
	return &Handlers{
		client:   client,
		store:    store,
		config:   cfg,
		validate: validator.New(),
		logger:   logging.GetGlobalLogger(),
		started:  time.Now(),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func respondError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.APIError{
		Success:    false,
		Error:      err.Error(),
		StatusCode: status,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// statusForError maps the error taxonomy onto HTTP statuses: authentication
// and upstream failures are the proxy's upstream's fault, so they surface as
// 502 rather than 500.
func statusForError(err error) int {
	switch errors.GetType(err) {
	case errors.ErrTypeValidation:
		return http.StatusBadRequest
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeAuth, errors.ErrTypeUpstream, errors.ErrTypeConnection:
		return http.StatusBadGateway
	case errors.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// HealthCheck reports liveness plus a bounded probe of the tenant link. A
// failed probe degrades the sap_connection field, not the endpoint: the proxy
// itself is still alive.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sapConnection := "healthy"
	if err := h.client.Ping(ctx); err != nil {
		sapConnection = "degraded"
		h.logger.Warn("Health probe failed",
			logging.Field{Key: "error", Value: err.Error()})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"environment":    h.config.Environment,
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"sap_connection": sapConnection,
		"sap_token":      h.client.TokenStatus().TokenStatus,
	})
}

// GetPackages lists all integration packages
func (h *Handlers) GetPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.client.GetIntegrationPackages(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, packages)
}

// GetPackage fetches one package by id
func (h *Handlers) GetPackage(w http.ResponseWriter, r *http.Request) {
	packageID := mux.Vars(r)["id"]
	pkg, err := h.client.GetPackageDetails(r.Context(), packageID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pkg)
}

// GetIFlows lists all integration flow artifacts
func (h *Handlers) GetIFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.client.GetIntegrationFlows(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flows)
}

// GetIFlow fetches one iFlow by id
func (h *Handlers) GetIFlow(w http.ResponseWriter, r *http.Request) {
	iflowID := mux.Vars(r)["id"]
	flow, err := h.client.GetIFlowDetails(r.Context(), iflowID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, flow)
}

// GetIFlowConfigurations fetches the externalized parameters of one iFlow
func (h *Handlers) GetIFlowConfigurations(w http.ResponseWriter, r *http.Request) {
	iflowID := mux.Vars(r)["id"]
	params, err := h.client.GetIFlowConfigurations(r.Context(), iflowID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"iflow_id":   iflowID,
		"parameters": params,
		"count":      len(params),
	})
}

// GetBaseTenantData sweeps the tenant's designtime inventory in one response.
// The two listings are independent and fetched in parallel.
func (h *Handlers) GetBaseTenantData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		wg       sync.WaitGroup
		packages []models.IntegrationPackage
		flows    []models.IntegrationFlow
		pkgErr   error
		flowErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		packages, pkgErr = h.client.GetIntegrationPackages(ctx)
	}()
	go func() {
		defer wg.Done()
		flows, flowErr = h.client.GetIntegrationFlows(ctx)
	}()
	wg.Wait()

	if pkgErr != nil {
		respondError(w, pkgErr)
		return
	}
	if flowErr != nil {
		respondError(w, flowErr)
		return
	}

	respondJSON(w, http.StatusOK, models.BaseTenantData{
		TenantID:         h.config.SAPBaseURL,
		TenantName:       h.config.Environment,
		Packages:         packages,
		IFlows:           flows,
		LastSynced:       time.Now(),
		ConnectionStatus: "connected",
	})
}

// DeployIFlow triggers deployment of one iFlow
func (h *Handlers) DeployIFlow(w http.ResponseWriter, r *http.Request) {
	iflowID := mux.Vars(r)["id"]
	if err := h.client.DeployIFlow(r.Context(), iflowID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"iflow_id": iflowID,
		"deployed": true,
	})
}

// GetTokenStatus reports the cached OAuth token's state
func (h *Handlers) GetTokenStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.client.TokenStatus())
}

// RefreshToken forces acquisition of a fresh OAuth token
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	status, err := h.client.RefreshToken(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// TestConnection probes a tenant with caller-supplied credentials. The probe
// outcome is reported in the body, not the HTTP status: a failed probe is a
// successful test.
func (h *Handlers) TestConnection(w http.ResponseWriter, r *http.Request) {
	var tenantCfg models.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&tenantCfg); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(tenantCfg); err != nil {
		respondError(w, errors.ValidationError(err.Error()))
		return
	}

	client := sap.NewClient(sap.Credentials{
		ClientID:     tenantCfg.ClientID,
		ClientSecret: tenantCfg.ClientSecret,
		TokenURL:     tenantCfg.TokenURL,
		BaseURL:      tenantCfg.BaseURL,
	},
		sap.WithMaxRetries(1),
		sap.WithLogger(h.logger))

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Ping(ctx)
	elapsed := int(time.Since(start).Milliseconds())

	result := models.ConnectionTestResult{
		Success:      err == nil,
		Message:      "Connection successful",
		ResponseTime: elapsed,
	}
	if err != nil {
		result.Message = "Connection failed"
		result.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, http.StatusOK, result)
}

// SaveConfigurations persists a configuration snapshot as CSV
func (h *Handlers) SaveConfigurations(w http.ResponseWriter, r *http.Request) {
	var req models.ConfigurationSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.ValidationError("invalid JSON body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, errors.ValidationError(err.Error()))
		return
	}

	result, err := h.store.Save(req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// ListExports lists the CSV exports on disk, optionally filtered by the
// environment query parameter
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := h.store.ListExports(r.URL.Query().Get("environment"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exports)
}

// GetConfig exposes the non-sensitive application configuration
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"environment":          h.config.Environment,
		"sap_base_url":         h.config.SAPBaseURL,
		"sap_token_url":        h.config.SAPTokenURL,
		"sap_client_id":        maskSecret(h.config.SAPClientID),
		"sap_auth_style":       h.config.SAPAuthStyle,
		"cache_ttl_seconds":    int(h.config.CacheTTL.Seconds()),
		"max_retries":          h.config.MaxRetries,
		"token_refresh_buffer": h.config.TokenRefreshBuffer.String(),
		"csv_export_dir":       h.config.CSVExportDir,
	})
}

// maskSecret keeps the first four characters for recognizability
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
