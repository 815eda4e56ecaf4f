package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/streamhaven/mediasync/internal/logging"
)

// ThumbnailMirror copies provider-hosted poster frames into our own bucket
// when an asset becomes ready, so admin screens do not depend on the
// provider's image CDN. Mirroring is best effort and runs off the webhook
// request path; a failed mirror leaves the provider URL in place.
type ThumbnailMirror struct {
	storage    *Storage
	httpClient *http.Client
	logger     *logging.Logger
}

// NewThumbnailMirror creates a thumbnail mirror backed by the given storage
func NewThumbnailMirror(storage *Storage, logger *logging.Logger) *ThumbnailMirror {
	return &ThumbnailMirror{
		storage: storage,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Mirror fetches thumbnailURL and stores it under the asset's id.
// Fire-and-forget: errors are logged, never surfaced to the caller.
func (m *ThumbnailMirror) Mirror(assetID, thumbnailURL string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := m.mirror(ctx, assetID, thumbnailURL); err != nil {
			m.logger.WithError(err).WithAssetID(assetID).Warn("Failed to mirror thumbnail")
		}
	}()
}

// Remove deletes the mirrored thumbnail for an asset. Best effort like
// Mirror; a leftover object for a deleted asset is harmless.
func (m *ThumbnailMirror) Remove(assetID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := m.storage.Delete(ctx, thumbnailObject(assetID)); err != nil {
			m.logger.WithError(err).WithAssetID(assetID).Warn("Failed to remove mirrored thumbnail")
		}
	}()
}

func thumbnailObject(assetID string) string {
	return fmt.Sprintf("assets/%s/thumbnail.png", assetID)
}

func (m *ThumbnailMirror) mirror(ctx context.Context, assetID, thumbnailURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thumbnail fetch returned %d", resp.StatusCode)
	}

	objectName := thumbnailObject(assetID)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	if err := m.storage.Upload(ctx, objectName, resp.Body, resp.ContentLength, contentType); err != nil {
		return err
	}

	m.logger.WithAssetID(assetID).Debugf("Mirrored thumbnail to %s", objectName)
	return nil
}
