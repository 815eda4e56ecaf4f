package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/streamhaven/mediasync/internal/database"
	"github.com/streamhaven/mediasync/internal/logging"
	"github.com/streamhaven/mediasync/internal/metrics"
	"github.com/streamhaven/mediasync/internal/provider"
	"github.com/streamhaven/mediasync/pkg/models"
)

// Outcome classifies what a processed event did
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeUnknownAsset Outcome = "unknown_asset"
	OutcomeNoop         Outcome = "noop"
	OutcomeIgnored      Outcome = "ignored"
)

// AssetStore is the repository surface the processor needs
type AssetStore interface {
	FindByExternalID(ctx context.Context, field database.ExternalIDField, value string) (*models.VideoAsset, error)
	Update(ctx context.Context, id string, patch *models.AssetPatch) (*models.VideoAsset, error)
}

// AssetCache is the optional read-through cache in front of external-id
// lookups
type AssetCache interface {
	GetByExternalID(ctx context.Context, field, value string) (*models.VideoAsset, error)
	SetAsset(ctx context.Context, asset *models.VideoAsset, ttl time.Duration) error
	InvalidateAsset(ctx context.Context, asset *models.VideoAsset) error
}

// Broadcaster fans processed state changes out to connected admin clients
type Broadcaster interface {
	Broadcast(name string, data interface{})
}

// ThumbnailMirror copies a ready asset's poster frame into object storage
type ThumbnailMirror interface {
	Mirror(assetID, thumbnailURL string)
}

// Processor drives the asset state machine from provider webhook events.
// Every invocation is safe to repeat: updates are field-level overwrites,
// so replayed or duplicated deliveries converge to the same state.
type Processor struct {
	store        AssetStore
	hub          Broadcaster
	cache        AssetCache
	mirror       ThumbnailMirror
	cacheTTL     time.Duration
	ackUnknown   bool
	imageBaseURL string
	logger       *logging.Logger
}

// NewProcessor creates a webhook event processor
func NewProcessor(store AssetStore, hub Broadcaster, ackUnknown bool, logger *logging.Logger) *Processor {
	return &Processor{
		store:      store,
		hub:        hub,
		ackUnknown: ackUnknown,
		logger:     logger,
	}
}

// SetCache attaches a read-through lookup cache
func (p *Processor) SetCache(cache AssetCache, ttl time.Duration) {
	p.cache = cache
	p.cacheTTL = ttl
}

// SetThumbnailMirror attaches a thumbnail mirror for ready assets
func (p *Processor) SetThumbnailMirror(mirror ThumbnailMirror) {
	p.mirror = mirror
}

// SetImageBaseURL overrides the provider image host used to derive
// thumbnail URLs
func (p *Processor) SetImageBaseURL(baseURL string) {
	p.imageBaseURL = baseURL
}

// Process applies one parsed event to the local store and broadcasts the
// resulting state change. Returns an error only for persistence failures
// the provider should retry; lookup anomalies are recovered locally.
func (p *Processor) Process(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	start := time.Now()
	outcome, err := p.process(ctx, event)
	if err == nil {
		metrics.RecordWebhookOutcome(event.Type, string(outcome), time.Since(start).Seconds())
	}
	return outcome, err
}

func (p *Processor) process(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	switch event.Type {
	case models.EventUploadAssetCreated, models.EventAssetCreated:
		return p.handleAssetCreated(ctx, event)
	case models.EventAssetReady:
		return p.handleAssetReady(ctx, event)
	case models.EventAssetErrored:
		return p.handleAssetErrored(ctx, event)
	case models.EventAssetNonStandardInput:
		return p.handleNonStandardInput(ctx, event)
	case models.EventAssetDeleted:
		return p.handleAssetDeleted(ctx, event)
	default:
		// Providers add event types over time, unhandled ones are benign
		p.logger.WithEventType(event.Type).Debug("Ignoring unhandled event type")
		return OutcomeIgnored, nil
	}
}

// handleAssetCreated associates the provider's asset id with the local
// record as early as possible. The create-video endpoint is expected to
// have created the shell record before the provider can emit this event;
// an unmatched event is anomalous and dropped, the next event for the same
// asset id still resolves once the record exists.
func (p *Processor) handleAssetCreated(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	var data models.AssetCreatedData
	if err := decodeData(event, &data); err != nil {
		return OutcomeIgnored, err
	}

	asset, err := p.lookup(ctx, database.ByUploadID, data.UploadID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if asset == nil && event.Type == models.EventAssetCreated {
		// Fallback: the record may already carry the asset id
		asset, err = p.lookup(ctx, database.ByAssetID, data.ID)
		if err != nil {
			return OutcomeIgnored, err
		}
	}
	if asset == nil {
		p.logger.LogWebhookEvent(event.Type, data.ID, string(OutcomeUnknownAsset), map[string]interface{}{
			"upload_id": data.UploadID,
		})
		return OutcomeUnknownAsset, nil
	}

	patch := &models.AssetPatch{AssetID: models.Ptr(data.ID)}
	if asset.Status == models.AssetStatusUploading {
		// Upload finished on the provider side, encoding is underway
		patch.Status = models.Ptr(models.AssetStatusProcessing)
	}

	return p.apply(ctx, event.Type, asset, patch)
}

// handleAssetReady marks the asset playable and captures the enrichment
// fields the provider reports. Re-applying identical data is a no-op diff
// but still safe to write.
func (p *Processor) handleAssetReady(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	var data models.AssetReadyData
	if err := decodeData(event, &data); err != nil {
		return OutcomeIgnored, err
	}

	asset, err := p.lookup(ctx, database.ByAssetID, data.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if asset == nil {
		p.logger.LogWebhookEvent(event.Type, data.ID, string(OutcomeUnknownAsset), nil)
		return OutcomeUnknownAsset, nil
	}

	patch := &models.AssetPatch{
		Status:      models.Ptr(models.AssetStatusReady),
		Duration:    models.Ptr(data.Duration),
		AspectRatio: models.Ptr(data.AspectRatio),
	}
	if asset.ReadyAt == nil {
		patch.ReadyAt = models.Ptr(time.Now().UTC())
	}
	if len(data.PlaybackIDs) > 0 {
		playbackID := data.PlaybackIDs[0].ID
		patch.PlaybackID = models.Ptr(playbackID)
		patch.ThumbnailURL = models.Ptr(provider.ThumbnailURL(p.imageBaseURL, playbackID))
	}

	outcome, err := p.apply(ctx, event.Type, asset, patch)
	if err != nil || outcome != OutcomeApplied {
		return outcome, err
	}

	if p.mirror != nil && patch.ThumbnailURL != nil {
		p.mirror.Mirror(asset.ID, *patch.ThumbnailURL)
	}

	p.hub.Broadcast(models.BroadcastAssetReady, models.AssetUpdatedPayload{
		ID:       asset.ID,
		AssetID:  data.ID,
		UploadID: asset.UploadID,
		Status:   models.AssetStatusReady,
	})

	return outcome, nil
}

// handleAssetErrored captures the provider's failure report
func (p *Processor) handleAssetErrored(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	var data models.AssetErroredData
	if err := decodeData(event, &data); err != nil {
		return OutcomeIgnored, err
	}

	asset, err := p.lookup(ctx, database.ByAssetID, data.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if asset == nil {
		p.logger.LogWebhookEvent(event.Type, data.ID, string(OutcomeUnknownAsset), nil)
		return OutcomeUnknownAsset, nil
	}

	message := data.Errors.Type
	if len(data.Errors.Messages) > 0 {
		message = strings.Join(data.Errors.Messages, "; ")
	}

	patch := &models.AssetPatch{
		Status:       models.Ptr(models.AssetStatusErrored),
		ErrorMessage: models.Ptr(message),
	}

	outcome, err := p.apply(ctx, event.Type, asset, patch)
	if err != nil || outcome != OutcomeApplied {
		return outcome, err
	}

	p.hub.Broadcast(models.BroadcastAssetErrored, models.AssetUpdatedPayload{
		ID:       asset.ID,
		AssetID:  data.ID,
		UploadID: asset.UploadID,
		Status:   models.AssetStatusErrored,
	})

	return outcome, nil
}

// handleNonStandardInput flags the asset for review without changing its
// lifecycle state
func (p *Processor) handleNonStandardInput(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	var data models.AssetFlaggedData
	if err := decodeData(event, &data); err != nil {
		return OutcomeIgnored, err
	}

	asset, err := p.lookup(ctx, database.ByAssetID, data.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if asset == nil {
		p.logger.LogWebhookEvent(event.Type, data.ID, string(OutcomeUnknownAsset), nil)
		return OutcomeUnknownAsset, nil
	}

	return p.apply(ctx, event.Type, asset, &models.AssetPatch{
		NonStandardInput: models.Ptr(true),
	})
}

// handleAssetDeleted only records that the provider-side asset is gone.
// A provider deletion never cascades to local CMS content; the asymmetry
// is deliberate, local deletes cascade outward instead.
func (p *Processor) handleAssetDeleted(ctx context.Context, event *models.ProviderEvent) (Outcome, error) {
	var data models.AssetDeletedData
	if err := decodeData(event, &data); err != nil {
		return OutcomeIgnored, err
	}

	asset, err := p.lookup(ctx, database.ByAssetID, data.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if asset == nil {
		// Deletion was initiated locally, nothing left to report
		p.logger.WithEventType(event.Type).WithField("provider_asset_id", data.ID).
			Debug("Provider deleted an asset with no local record")
		return OutcomeNoop, nil
	}

	p.logger.LogWebhookEvent(event.Type, data.ID, string(OutcomeNoop), map[string]interface{}{
		"local_id": asset.ID,
		"note":     "provider-side deletion, local record kept",
	})

	return OutcomeNoop, nil
}

// lookup resolves an external id, consulting the cache first when attached
func (p *Processor) lookup(ctx context.Context, field database.ExternalIDField, value string) (*models.VideoAsset, error) {
	if value == "" {
		return nil, nil
	}

	if p.cache != nil {
		cached, err := p.cache.GetByExternalID(ctx, string(field), value)
		if err != nil {
			p.logger.WithError(err).Warn("Asset cache lookup failed")
		} else if cached != nil {
			metrics.RecordCacheAccess(string(field), true)
			return cached, nil
		} else {
			metrics.RecordCacheAccess(string(field), false)
		}
	}

	asset, err := p.store.FindByExternalID(ctx, field, value)
	if err != nil {
		return nil, err
	}

	if asset != nil && p.cache != nil {
		if err := p.cache.SetAsset(ctx, asset, p.cacheTTL); err != nil {
			p.logger.WithError(err).Warn("Failed to populate asset cache")
		}
	}

	return asset, nil
}

// apply persists a patch and broadcasts asset:updated. The persisted write
// is the source of truth; notification is best effort and never rolls the
// write back.
func (p *Processor) apply(ctx context.Context, eventType string, asset *models.VideoAsset, patch *models.AssetPatch) (Outcome, error) {
	updated, err := p.store.Update(ctx, asset.ID, patch)
	if errors.Is(err, database.ErrNotFound) {
		// Deleted between lookup and update. Retrying would not help, so
		// acknowledge unless configured otherwise.
		p.logger.WithAssetID(asset.ID).WithEventType(eventType).
			Warn("Asset vanished between lookup and update")
		if p.ackUnknown {
			return OutcomeUnknownAsset, nil
		}
		return OutcomeUnknownAsset, err
	}
	if err != nil {
		return OutcomeIgnored, err
	}

	if p.cache != nil {
		// Invalidate under both the pre- and post-update external ids
		if err := p.cache.InvalidateAsset(ctx, asset); err != nil {
			p.logger.WithError(err).Warn("Failed to invalidate asset cache")
		}
		if err := p.cache.InvalidateAsset(ctx, updated); err != nil {
			p.logger.WithError(err).Warn("Failed to invalidate asset cache")
		}
	}

	if patch.Status != nil && *patch.Status != asset.Status {
		metrics.RecordStatusTransition(*patch.Status)
	}

	p.logger.LogWebhookEvent(eventType, updated.AssetID, string(OutcomeApplied), map[string]interface{}{
		"local_id": updated.ID,
		"status":   updated.Status,
	})

	p.hub.Broadcast(models.BroadcastAssetUpdated, models.AssetUpdatedPayload{
		ID:       updated.ID,
		AssetID:  updated.AssetID,
		UploadID: updated.UploadID,
		Status:   updated.Status,
	})

	return OutcomeApplied, nil
}
