package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"cpi-proxy/internal/common/cache"
	commonhttp "cpi-proxy/internal/common/http"
	"cpi-proxy/internal/common/logging"
	"cpi-proxy/internal/common/ratelimit"
	"cpi-proxy/internal/config"
	"cpi-proxy/internal/csvstore"
	"cpi-proxy/internal/handlers"
	"cpi-proxy/internal/middleware"
	"cpi-proxy/internal/sap"
	"cpi-proxy/internal/server"
)

func main() {
	// .env is optional, real deployments use the environment directly
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", err)
		os.Exit(1)
	}

	httpClient := commonhttp.NewHTTPClientWithTimeout(cfg.HTTPTimeout)

	clientOpts := []sap.ClientOption{
		sap.WithHTTPClient(httpClient),
		sap.WithMaxRetries(cfg.MaxRetries),
		sap.WithCache(cache.NewLocalCache(cfg.CacheTTL, 10*time.Minute), cfg.CacheTTL),
		sap.WithLogger(logger),
	}

	if cfg.RateLimitEnabled {
		limiter, err := ratelimit.NewLocalLimiter(ratelimit.Config{
			Enabled:           true,
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		})
		if err != nil {
			logger.Error("Invalid rate limit configuration", err)
			os.Exit(1)
		}
		clientOpts = append(clientOpts, sap.WithRateLimiter(limiter))
	}

	creds := sap.Credentials{
		ClientID:     cfg.SAPClientID,
		ClientSecret: cfg.SAPClientSecret,
		TokenURL:     cfg.SAPTokenURL,
		BaseURL:      cfg.SAPBaseURL,
	}
	tokens := sap.NewTokenManager(creds,
		sap.WithTokenHTTPClient(httpClient),
		sap.WithAuthStyle(sap.AuthStyle(cfg.SAPAuthStyle)),
		sap.WithRefreshBuffer(cfg.TokenRefreshBuffer),
		sap.WithTokenLogger(logger))
	clientOpts = append(clientOpts, sap.WithTokenManager(tokens))

	client := sap.NewClient(creds, clientOpts...)

	store, err := csvstore.NewStore(cfg.CSVExportDir, csvstore.WithStoreLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize CSV store", err)
		os.Exit(1)
	}

	h := handlers.New(client, store, cfg)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	handlers.Register(router, h)

	srv := server.New(router, cfg.Port, cfg.TLSCertFile, cfg.TLSKeyFile)
	errCh := srv.Start()

	logger.Info("Server started",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "environment", Value: cfg.Environment},
		logging.Field{Key: "tls", Value: cfg.TLSCertFile != ""})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server failed", err)
		os.Exit(1)
	case sig := <-quit:
		logger.Info("Shutting down", logging.Field{Key: "signal", Value: sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
