package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamhaven/mediasync/internal/database"
	"github.com/streamhaven/mediasync/internal/metrics"
	"github.com/streamhaven/mediasync/internal/tracing"
	"github.com/streamhaven/mediasync/internal/webhook"
	"github.com/streamhaven/mediasync/pkg/models"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// handleWebhook is the provider webhook ingress. The raw body is read
// once and shared by the signature check and the parser, since the
// signature covers the exact bytes sent.
func (api *API) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	bypass := api.verifier.BypassAllowed() && c.GetHeader(api.cfg.Provider.BypassHeader) != ""
	if !bypass {
		signature := c.GetHeader(api.cfg.Provider.SignatureHeader)
		if !api.verifier.Verify(signature, body) {
			metrics.RecordWebhookRejected("invalid_signature")
			api.logger.WithField("client_ip", c.ClientIP()).Warn("Rejected webhook with invalid signature")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	event, err := webhook.Parse(body)
	if err != nil {
		metrics.RecordWebhookRejected("malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event"})
		return
	}
	metrics.RecordWebhookReceived(event.Type)

	span, ctx := tracing.StartSpan(c.Request.Context(), "webhook.process")
	tracing.SetTag(span, "event.type", event.Type)
	defer tracing.FinishSpan(span)

	outcome, err := api.processor.Process(ctx, event)
	if err != nil {
		tracing.LogError(span, err)
		if errors.Is(err, webhook.ErrMalformedEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}

type createUploadRequest struct {
	Title      string `json:"title" binding:"required"`
	CORSOrigin string `json:"cors_origin"`
}

// createUpload asks the provider for a direct upload URL and creates the
// local shell record the webhook pipeline will enrich.
func (api *API) createUpload(c *gin.Context) {
	var req createUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upload, err := api.provider.CreateDirectUpload(c.Request.Context(), req.CORSOrigin, api.cfg.Provider.PlaybackPolicy)
	if err != nil {
		api.logger.WithError(err).Error("Failed to create direct upload")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upload provider unavailable"})
		return
	}

	asset := &models.VideoAsset{
		ID:         uuid.New().String(),
		Title:      req.Title,
		SourceType: models.SourceTypeProvider,
		Status:     models.AssetStatusUploading,
		UploadID:   upload.ID,
	}
	if err := api.repo.Create(c.Request.Context(), asset); err != nil {
		api.logger.WithError(err).Error("Failed to create asset record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create asset"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"asset":      asset,
		"upload_url": upload.URL,
	})
}

type createAssetRequest struct {
	Title      string `json:"title" binding:"required"`
	SourceType string `json:"source_type"`
}

// createAsset records an asset that is not provider-backed, such as an
// embedded external video. Provider-backed assets go through createUpload.
func (api *API) createAsset(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = models.SourceTypeEmbedded
	}
	if sourceType == models.SourceTypeProvider {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provider assets are created via /uploads"})
		return
	}

	asset := &models.VideoAsset{
		ID:         uuid.New().String(),
		Title:      req.Title,
		SourceType: sourceType,
		Status:     models.AssetStatusReady,
	}
	if err := api.repo.Create(c.Request.Context(), asset); err != nil {
		api.logger.WithError(err).Error("Failed to create asset record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create asset"})
		return
	}

	c.JSON(http.StatusCreated, asset)
}

func (api *API) getAsset(c *gin.Context) {
	asset, err := api.repo.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch asset"})
		return
	}

	c.JSON(http.StatusOK, asset)
}

func (api *API) listAssets(c *gin.Context) {
	limit := 20
	offset := 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && v >= 0 {
		offset = v
	}

	assets, err := api.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list assets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assets": assets,
		"limit":  limit,
		"offset": offset,
	})
}

func (api *API) assetStats(c *gin.Context) {
	stats, err := api.repo.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// deleteAsset removes the local record and cascades to the provider.
// The provider-side delete is best effort: its deleted webhook is a
// no-op here, so a failure leaves at worst an orphaned remote asset.
func (api *API) deleteAsset(c *gin.Context) {
	id := c.Param("id")

	asset, err := api.repo.Get(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch asset"})
		return
	}

	if asset.SourceType == models.SourceTypeProvider && asset.AssetID != "" {
		if err := api.provider.DeleteAsset(c.Request.Context(), asset.AssetID); err != nil {
			api.logger.WithError(err).WithAssetID(asset.AssetID).
				Warn("Failed to delete provider asset, continuing with local delete")
		}
	}

	deleted, err := api.repo.Delete(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete asset"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
		return
	}

	if api.cache != nil {
		if err := api.cache.InvalidateAsset(c.Request.Context(), asset); err != nil {
			api.logger.WithError(err).Warn("Failed to invalidate asset cache")
		}
	}
	if api.mirror != nil && asset.ThumbnailURL != "" {
		api.mirror.Remove(asset.ID)
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type debugEmitRequest struct {
	Name string                 `json:"name" binding:"required"`
	Data map[string]interface{} `json:"data"`
}

// debugEmit pushes a synthetic event onto the bus so operators can
// verify fan-out without waiting for a real provider event.
func (api *API) debugEmit(c *gin.Context) {
	var req debugEmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	api.hub.Broadcast(req.Name, req.Data)
	c.JSON(http.StatusAccepted, gin.H{"emitted": req.Name, "clients": api.hub.ClientCount()})
}
