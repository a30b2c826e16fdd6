// Package main is the entry point for the parkcore API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"parkcore/internal/domain/auth"
	"parkcore/internal/domain/parking"
	v1 "parkcore/internal/infrastructure/http/v1"
	"parkcore/internal/infrastructure/storage/postgres"
	"parkcore/internal/infrastructure/storage/postgres/parking_repo"
	"parkcore/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting parkcore server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 25); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	// --- Transaction manager and repositories ---
	txManager := postgres.NewTxManager(pool)

	spotRepo := parking_repo.NewSpotRepo(txManager)
	vehicleRepo := parking_repo.NewVehicleRepo(txManager)
	sessionRepo := parking_repo.NewSessionRepo(txManager)

	parkingService := parking.NewService(spotRepo, vehicleRepo, sessionRepo, txManager, nil)

	// --- Auth ---
	// OPERATOR_CREDENTIALS is "name:bcrypt-hash,name:bcrypt-hash".
	// Empty disables auth (local development only).
	var authService *auth.Service
	var jwtService *auth.JWTService
	if raw := getEnv("OPERATOR_CREDENTIALS", ""); raw != "" {
		credentials, err := parseCredentials(raw)
		if err != nil {
			log.Fatalw("invalid OPERATOR_CREDENTIALS", "error", err)
		}
		jwtService = auth.NewJWTService(auth.DefaultJWTConfig(mustEnv("JWT_SECRET")))
		authService = auth.NewService(credentials, jwtService)
		log.Infow("operator auth enabled", "operators", len(credentials))
	} else {
		log.Warn("operator auth disabled: OPERATOR_CREDENTIALS not set")
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:           pool,
		TxManager:      txManager,
		ParkingService: parkingService,
		AuthService:    authService,
		JWTValidator:   jwtService,
		Logger:         log,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func parseCredentials(raw string) (map[string]string, error) {
	credentials := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, hash, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("malformed credential entry %q", pair)
		}
		credentials[name] = hash
	}
	return credentials, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
