package handlers

import (
	"github.com/gorilla/mux"
)

// Register wires every endpoint onto the router
func Register(router *mux.Router, h *Handlers) {
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	// Tenant designtime inventory
	api.HandleFunc("/sap/packages", h.GetPackages).Methods("GET")
	api.HandleFunc("/sap/packages/{id}", h.GetPackage).Methods("GET")
	api.HandleFunc("/sap/iflows", h.GetIFlows).Methods("GET")
	api.HandleFunc("/sap/iflows/{id}", h.GetIFlow).Methods("GET")
	api.HandleFunc("/sap/iflows/{id}/configurations", h.GetIFlowConfigurations).Methods("GET")
	api.HandleFunc("/sap/iflows/{id}/deploy", h.DeployIFlow).Methods("POST")
	api.HandleFunc("/sap/base-tenant-data", h.GetBaseTenantData).Methods("GET")

	// Token lifecycle
	api.HandleFunc("/sap/token-status", h.GetTokenStatus).Methods("GET")
	api.HandleFunc("/sap/refresh-token", h.RefreshToken).Methods("POST")

	// Tenant probing
	api.HandleFunc("/tenants/test-connection", h.TestConnection).Methods("POST")

	// Configuration persistence
	api.HandleFunc("/configurations/save", h.SaveConfigurations).Methods("POST")
	api.HandleFunc("/configurations/exports", h.ListExports).Methods("GET")

	// Application configuration
	api.HandleFunc("/config", h.GetConfig).Methods("GET")
}
