package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appchat "chat-secure-circle/application/chat"
	"chat-secure-circle/application/history"
	"chat-secure-circle/domain/chat"
	"chat-secure-circle/infrastructure/gemini"
	infrapersistence "chat-secure-circle/infrastructure/persistence"
	"chat-secure-circle/infrastructure/storage"
	httpiface "chat-secure-circle/interfaces/http"
	"chat-secure-circle/internal/config"
	"chat-secure-circle/internal/metrics"
	"chat-secure-circle/internal/ratelimit"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Configure logging level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Logging.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetReportCaller(cfg.Logging.ReportCaller)

	logrus.WithFields(logrus.Fields{
		"port":               cfg.Server.Port,
		"host":               cfg.Server.Host,
		"model":              cfg.Gemini.Model,
		"bucket":             cfg.Storage.Bucket,
		"enable_persistence": cfg.Database.EnablePersistence,
	}).Info("Starting Gemini chat proxy")

	m := metrics.New()

	baseProvider := gemini.NewProvider(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model, cfg.Gemini.RequestTimeout, m)

	circuitBreakerConfig := gemini.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	provider := gemini.NewCircuitBreakerProvider(baseProvider, baseProvider.Model(), circuitBreakerConfig)

	logrus.WithFields(logrus.Fields{
		"enabled":           circuitBreakerConfig.Enabled,
		"failure_threshold": circuitBreakerConfig.FailureThreshold,
		"timeout":           circuitBreakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	store := storage.NewSupabaseStore(cfg.Storage.URL, cfg.Storage.APIKey, cfg.Storage.RequestTimeout, m)

	service := appchat.NewService(provider, store, appchat.Config{
		APIKey: cfg.Gemini.APIKey,
		Bucket: cfg.Storage.Bucket,
	})

	var router *httpiface.Router
	var dbManager *infrapersistence.DatabaseManager

	if cfg.Database.EnablePersistence {
		dbManager = infrapersistence.NewDatabaseManager(cfg.Database.Driver)

		if err := dbManager.Connect(ctx, cfg.GetDatabaseDSN()); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}

		if err := dbManager.Migrate(); err != nil {
			logrus.WithError(err).Fatal("Failed to run database migrations")
		}

		historyService := history.NewService(dbManager.Messages(), dbManager)
		router = httpiface.NewRouterWithPersistence(service, cfg.Server.CorsOrigins, m, historyService, dbManager.Health)

		logrus.Info("Persistence layer initialized successfully")
	} else {
		router = httpiface.NewRouter(service, cfg.Server.CorsOrigins, m)

		logrus.Info("Running without persistence layer")
	}

	router.AddCheck("gemini", func(context.Context) error {
		if cfg.Gemini.APIKey == "" {
			return chat.ErrMissingAPIKey
		}
		return nil
	})

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Run(ctx, time.Minute, 10*time.Minute)
		router.SetRateLimiter(limiter)

		logrus.WithFields(logrus.Fields{
			"requests_per_second": cfg.RateLimit.RequestsPerSecond,
			"burst":               cfg.RateLimit.Burst,
		}).Info("Rate limiting enabled")
	}

	ginRouter := router.SetupRoutes()

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           ginRouter,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to listen for interrupt signal to trigger shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if dbManager != nil {
		if err := dbManager.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}
}
