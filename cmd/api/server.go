package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/streamhaven/mediasync/internal/cache"
	"github.com/streamhaven/mediasync/internal/config"
	"github.com/streamhaven/mediasync/internal/database"
	"github.com/streamhaven/mediasync/internal/events"
	"github.com/streamhaven/mediasync/internal/logging"
	"github.com/streamhaven/mediasync/internal/middleware"
	"github.com/streamhaven/mediasync/internal/provider"
	"github.com/streamhaven/mediasync/internal/webhook"
	"github.com/streamhaven/mediasync/pkg/models"
)

// assetStore is the repository surface the HTTP handlers need.
type assetStore interface {
	Health(ctx context.Context) error
	Create(ctx context.Context, asset *models.VideoAsset) error
	Get(ctx context.Context, id string) (*models.VideoAsset, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.VideoAsset, error)
	Stats(ctx context.Context) (*database.AssetStats, error)
}

// providerAPI is the provider REST surface the HTTP handlers need.
type providerAPI interface {
	CreateDirectUpload(ctx context.Context, corsOrigin, playbackPolicy string) (*provider.DirectUpload, error)
	DeleteAsset(ctx context.Context, assetID string) error
}

// thumbnailstore cleans up mirrored thumbnails when assets are deleted.
type thumbnailStore interface {
	Remove(assetID string)
}

type API struct {
	cfg       *config.Config
	logger    *logging.Logger
	repo      assetStore
	cache     *cache.Cache
	hub       *events.Hub
	processor *webhook.Processor
	verifier  *provider.Verifier
	provider  providerAPI
	mirror    thumbnailStore
}

func setupRouter(api *API) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(api.logger))

	// Health check
	router.GET("/health", api.healthCheck)

	// Provider webhook ingress
	webhookLimiter := middleware.NewRateLimiter(api.cfg.Server.WebhookRPS, api.cfg.Server.WebhookBurst)
	router.POST("/webhook", middleware.RateLimit(webhookLimiter), api.handleWebhook)

	// Admin event stream
	router.GET("/events", api.streamEvents)

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/uploads", api.createUpload)
		v1.GET("/assets", api.listAssets)
		v1.GET("/assets/:id", api.getAsset)
		v1.POST("/assets", api.createAsset)
		v1.DELETE("/assets/:id", api.deleteAsset)
		v1.GET("/stats", api.assetStats)
	}

	// Operator debug routes
	debug := router.Group("/debug")
	debug.Use(middleware.JWTAuth(api.cfg.Auth.JWTSecret))
	{
		debug.POST("/emit", api.debugEmit)
	}

	return router
}
