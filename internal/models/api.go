// Package models defines the API and domain types exchanged with the
// frontend and the SAP Integration Suite tenant.
package models

import "time"

// APIResponse is the uniform JSON envelope returned by every endpoint
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// APIError is the uniform JSON error body
type APIError struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Timestamp  string `json:"timestamp"`
}

// IntegrationPackage represents an integration package in the vendor tenant
type IntegrationPackage struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Version      string `json:"version,omitempty"`
	ModifiedDate string `json:"modifiedDate,omitempty"`
	ModifiedBy   string `json:"modifiedBy,omitempty"`
	CreatedDate  string `json:"createdDate,omitempty"`
	CreatedBy    string `json:"createdBy,omitempty"`
}

// IntegrationFlow represents an integration flow artifact (iFlow): a named,
// versioned pipeline definition in the vendor platform
type IntegrationFlow struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PackageID    string `json:"packageId,omitempty"`
	Description  string `json:"description,omitempty"`
	Version      string `json:"version,omitempty"`
	ModifiedDate string `json:"modifiedDate,omitempty"`
	ModifiedBy   string `json:"modifiedBy,omitempty"`
	Status       string `json:"status,omitempty"`
}

// ConfigurationParameter is a single externalized parameter of an iFlow,
// normalized from whichever envelope and key spelling the tenant returned
type ConfigurationParameter struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	DataType    string `json:"data_type,omitempty"`
	Description string `json:"description,omitempty"`
	Mandatory   bool   `json:"mandatory"`
}

// BaseTenantData bundles the full designtime inventory of a tenant
type BaseTenantData struct {
	TenantID         string               `json:"tenant_id"`
	TenantName       string               `json:"tenant_name"`
	Packages         []IntegrationPackage `json:"packages"`
	IFlows           []IntegrationFlow    `json:"iflows"`
	LastSynced       time.Time            `json:"last_synced"`
	ConnectionStatus string               `json:"connection_status"`
}

// TokenStatus reports the state of the cached OAuth token without exposing it
type TokenStatus struct {
	HasToken            bool   `json:"has_token"`
	TokenStatus         string `json:"token_status"`
	TokenType           string `json:"token_type,omitempty"`
	ExpiresAt           string `json:"expires_at,omitempty"`
	TimeToExpirySeconds *int   `json:"time_to_expiry_seconds,omitempty"`
}

// TenantConfig carries caller-supplied credentials for connection testing
type TenantConfig struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description,omitempty"`
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	TokenURL     string `json:"token_url" validate:"required,url"`
	BaseURL      string `json:"base_url" validate:"required,url"`
}

// ConnectionTestResult is the outcome of probing a tenant with supplied credentials
type ConnectionTestResult struct {
	Success      bool                   `json:"success"`
	Message      string                 `json:"message"`
	ResponseTime int                    `json:"response_time"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// ConfigurationSaveRequest is the payload persisted to CSV by the export endpoint
type ConfigurationSaveRequest struct {
	Environment string                   `json:"environment" validate:"required"`
	IFlowID     string                   `json:"iflow_id" validate:"required"`
	IFlowName   string                   `json:"iflow_name" validate:"required"`
	Version     string                   `json:"iflow_version,omitempty"`
	Parameters  []ConfigurationParameter `json:"parameters" validate:"required,min=1,dive"`
}
