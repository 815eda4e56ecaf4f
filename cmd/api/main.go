package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/streamhaven/mediasync/internal/cache"
	"github.com/streamhaven/mediasync/internal/config"
	"github.com/streamhaven/mediasync/internal/database"
	"github.com/streamhaven/mediasync/internal/events"
	"github.com/streamhaven/mediasync/internal/logging"
	"github.com/streamhaven/mediasync/internal/metrics"
	"github.com/streamhaven/mediasync/internal/provider"
	"github.com/streamhaven/mediasync/internal/storage"
	"github.com/streamhaven/mediasync/internal/tracing"
	"github.com/streamhaven/mediasync/internal/webhook"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize tracing
	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			logger.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewAssetRepository(db, logger)

	// Initialize the broadcast hub
	hub := events.NewHub(cfg.Broadcast.ClientBuffer, logger)

	// Optional cross-process relay
	var relay *events.Relay
	if cfg.Relay.Enabled {
		relay, err = events.NewRelay(cfg.Relay, hub, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to relay broker: %v", err)
		}
		defer relay.Close()
		hub.AttachRelay(relay)

		relayCtx, relayCancel := context.WithCancel(context.Background())
		defer relayCancel()
		go func() {
			if err := relay.Start(relayCtx); err != nil {
				logger.WithError(err).Error("Broadcast relay consumer stopped")
			}
		}()
	}

	// Provider API client and webhook signature verifier
	providerClient := provider.NewClient(cfg.Provider)
	verifier := provider.NewVerifier(cfg.Provider)

	// Webhook processor with optional cache and thumbnail mirror
	processor := webhook.NewProcessor(repo, hub, cfg.Provider.AckUnknownAssets, logger)
	processor.SetImageBaseURL(cfg.Provider.ImageBaseURL)

	assetCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without asset cache")
		assetCache = nil
	} else {
		defer assetCache.Close()
		processor.SetCache(assetCache, cfg.Redis.TTL)
	}

	api := &API{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		cache:     assetCache,
		hub:       hub,
		processor: processor,
		verifier:  verifier,
		provider:  providerClient,
	}

	if cfg.Storage.Enabled {
		stor, err := storage.New(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to initialize object storage: %v", err)
		}
		mirror := storage.NewThumbnailMirror(stor, logger)
		processor.SetThumbnailMirror(mirror)
		api.mirror = mirror
	}

	router := setupRouter(api)

	// Metrics server on a side port
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsSrv.Start(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Metrics server failed: %v", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays at the configured value, zero by default,
		// so event stream connections are not severed mid-stream.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Closing the hub ends every event stream so Shutdown can drain
	hub.Shutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}

	logger.Info("Server stopped")
}
