package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhaven/mediasync/internal/provider"
	"github.com/streamhaven/mediasync/pkg/models"
)

// postWebhook sends a signed webhook body through the router.
func (ta *testAPI) postWebhook(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		sig := provider.Sign(testWebhookSecret, time.Now(), []byte(body))
		req.Header.Set("Provider-Signature", sig)
	}
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)
	return w
}

func assetReadyBody(assetID, uploadID string) string {
	return fmt.Sprintf(`{
		"type": "video.asset.ready",
		"data": {
			"id": %q,
			"upload_id": %q,
			"playback_ids": [{"id": "pb-1", "policy": "public"}],
			"duration": 93.5,
			"aspect_ratio": "16:9"
		}
	}`, assetID, uploadID)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.repo.Create(context.Background(), &models.VideoAsset{
		ID:         "a1",
		SourceType: models.SourceTypeProvider,
		UploadID:   "up-1",
		Status:     models.AssetStatusProcessing,
	}))

	w := ta.postWebhook(t, assetReadyBody("mux-1", "up-1"), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Nothing may change when the signature check fails
	stored := ta.repo.get("a1")
	assert.Equal(t, models.AssetStatusProcessing, stored.Status)
	assert.Empty(t, stored.AssetID)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	ta := newTestAPI(t)

	body := assetReadyBody("mux-1", "up-1")
	sig := provider.Sign(testWebhookSecret, time.Now(), []byte(body))

	tampered := assetReadyBody("mux-evil", "up-1")
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(tampered))
	req.Header.Set("Provider-Signature", sig)
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsStaleSignature(t *testing.T) {
	ta := newTestAPI(t)

	body := assetReadyBody("mux-1", "up-1")
	sig := provider.Sign(testWebhookSecret, time.Now().Add(-time.Hour), []byte(body))

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Provider-Signature", sig)
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.postWebhook(t, `{"not": "an event"`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.postWebhook(t, `{"data": {"id": "x"}}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing type field")
}

func TestWebhookAppliesSignedEvent(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.repo.Create(context.Background(), &models.VideoAsset{
		ID:         "a1",
		SourceType: models.SourceTypeProvider,
		UploadID:   "up-1",
		AssetID:    "mux-1",
		Status:     models.AssetStatusProcessing,
	}))

	w := ta.postWebhook(t, assetReadyBody("mux-1", "up-1"), true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "applied")

	stored := ta.repo.get("a1")
	assert.Equal(t, models.AssetStatusReady, stored.Status)
	assert.Equal(t, "pb-1", stored.PlaybackID)
	assert.InDelta(t, 93.5, stored.Duration, 0.001)
}

func TestWebhookReadyBeforeCreatedDropped(t *testing.T) {
	ta := newTestAPI(t)
	// Shell record knows only its upload id; the asset id arrives with
	// the created event, which has not been delivered yet.
	require.NoError(t, ta.repo.Create(context.Background(), &models.VideoAsset{
		ID:         "a1",
		SourceType: models.SourceTypeProvider,
		UploadID:   "up-1",
		Status:     models.AssetStatusUploading,
	}))

	w := ta.postWebhook(t, assetReadyBody("mux-1", "up-1"), true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_asset")

	stored := ta.repo.get("a1")
	assert.Equal(t, models.AssetStatusUploading, stored.Status)
	assert.Empty(t, stored.AssetID)
	assert.Empty(t, stored.PlaybackID)
}

func TestWebhookUnknownAssetAcknowledged(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.postWebhook(t, assetReadyBody("mux-ghost", "up-ghost"), true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_asset")
}

func TestWebhookUnhandledTypeAcknowledged(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.postWebhook(t, `{"type": "video.asset.track.created", "data": {"id": "x"}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookBypassDisabledByDefault(t *testing.T) {
	ta := newTestAPI(t)

	body := `{"type": "video.asset.deleted", "data": {"id": "x"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("X-Webhook-Bypass", "1")
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookBypassWhenAllowed(t *testing.T) {
	ta := newTestAPI(t)
	ta.api.cfg.Provider.AllowBypass = true
	ta.api.verifier = provider.NewVerifier(ta.api.cfg.Provider)

	body := `{"type": "video.asset.deleted", "data": {"id": "x"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("X-Webhook-Bypass", "1")
	w := httptest.NewRecorder()
	ta.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookDeleteNeverCascades(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.repo.Create(context.Background(), &models.VideoAsset{
		ID:         "a1",
		SourceType: models.SourceTypeProvider,
		AssetID:    "mux-1",
		Status:     models.AssetStatusReady,
	}))

	body := `{"type": "video.asset.deleted", "data": {"id": "mux-1"}}`
	w := ta.postWebhook(t, body, true)
	require.Equal(t, http.StatusOK, w.Code)

	// The local record stays, only a provider-side deletion happened
	assert.Equal(t, 1, ta.repo.count())
}
