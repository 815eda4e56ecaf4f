package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streamhaven/mediasync/internal/config"
)

// Client is a minimal REST client for the video provider's API. It covers
// the two calls the sync pipeline needs: creating direct uploads and
// deleting remote assets when a local delete cascades outward.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	tokenID     string
	tokenSecret string
}

// NewClient creates a new provider API client
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:     cfg.BaseURL,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
	}
}

// DirectUpload is the provider's handle for a browser-direct upload
type DirectUpload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type directUploadRequest struct {
	CORSOrigin       string `json:"cors_origin,omitempty"`
	NewAssetSettings struct {
		PlaybackPolicy []string `json:"playback_policy"`
	} `json:"new_asset_settings"`
}

type directUploadResponse struct {
	Data DirectUpload `json:"data"`
}

// CreateDirectUpload asks the provider for a new direct-upload URL
func (c *Client) CreateDirectUpload(ctx context.Context, corsOrigin, playbackPolicy string) (*DirectUpload, error) {
	reqBody := directUploadRequest{CORSOrigin: corsOrigin}
	reqBody.NewAssetSettings.PlaybackPolicy = []string{playbackPolicy}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/video/v1/uploads", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.tokenID, c.tokenSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create direct upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("provider returned %d creating direct upload: %s", resp.StatusCode, msg)
	}

	var out directUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}

	return &out.Data, nil
}

// DeleteAsset removes an asset on the provider side. A 404 is treated as
// success since the remote asset is already gone.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/video/v1/assets/"+assetID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("provider returned %d deleting asset %s: %s", resp.StatusCode, assetID, msg)
	}

	return nil
}

const defaultImageBaseURL = "https://image.mux.com"

// ThumbnailURL derives the poster frame URL for a playback id. An empty
// imageBaseURL falls back to the provider's public image host.
func ThumbnailURL(imageBaseURL, playbackID string) string {
	if imageBaseURL == "" {
		imageBaseURL = defaultImageBaseURL
	}
	return fmt.Sprintf("%s/%s/thumbnail.png", strings.TrimSuffix(imageBaseURL, "/"), playbackID)
}
