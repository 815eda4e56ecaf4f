package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhaven/mediasync/internal/provider"
	"github.com/streamhaven/mediasync/pkg/eventbridge"
	"github.com/streamhaven/mediasync/pkg/models"
)

func TestStreamEventsHeaders(t *testing.T) {
	ta := newTestAPI(t)
	srv := httptest.NewServer(ta.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	// The first frame confirms the subscription
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected", strings.TrimSpace(line))
}

func TestStreamEventsReceivesBroadcast(t *testing.T) {
	ta := newTestAPI(t)
	srv := httptest.NewServer(ta.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	waitForClients(t, ta, 1)

	ta.hub.Broadcast(models.BroadcastAssetUpdated, models.AssetUpdatedPayload{
		ID:     "a1",
		Status: models.AssetStatusReady,
	})

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: "+models.BroadcastAssetUpdated {
			sawEvent = true
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var payload models.AssetUpdatedPayload
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
			assert.Equal(t, "a1", payload.ID)
			sawData = true
			break
		}
	}
	assert.True(t, sawEvent, "asset:updated frame not seen")
	assert.True(t, sawData, "asset:updated payload not seen")
}

func TestStreamEventsDisconnectDeregisters(t *testing.T) {
	ta := newTestAPI(t)
	srv := httptest.NewServer(ta.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	waitForClients(t, ta, 1)

	cancel()
	resp.Body.Close()

	waitForClients(t, ta, 0)
}

func waitForClients(t *testing.T, ta *testAPI, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ta.hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d connected clients, have %d", want, ta.hub.ClientCount())
}

// TestUploadLifecycleEndToEnd walks the full flow: initiate an upload,
// replay the provider's webhook sequence, and observe the resulting
// broadcasts over a live event stream connection.
func TestUploadLifecycleEndToEnd(t *testing.T) {
	ta := newTestAPI(t)
	srv := httptest.NewServer(ta.router)
	defer srv.Close()

	// Subscribe before any webhook arrives
	bridge := eventbridge.New(srv.URL+"/events", eventbridge.Options{})
	var connected atomic.Bool
	var updates atomic.Int32
	var lastStatus atomic.Value
	bridge.On(models.BroadcastConnected, func(json.RawMessage) { connected.Store(true) })
	bridge.On(models.BroadcastAssetUpdated, func(data json.RawMessage) {
		var payload models.AssetUpdatedPayload
		if err := json.Unmarshal(data, &payload); err == nil {
			updates.Add(1)
			lastStatus.Store(payload.Status)
		}
	})
	var ready atomic.Bool
	bridge.On(models.BroadcastAssetReady, func(json.RawMessage) { ready.Store(true) })

	require.NoError(t, bridge.Start(context.Background()))
	defer bridge.Close()

	waitCond(t, connected.Load, "stream should connect")

	// 1. Initiate the upload, creating the local shell record
	w := ta.do(http.MethodPost, "/api/v1/uploads", map[string]string{"title": "Launch video"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Asset models.VideoAsset `json:"asset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	uploadID := created.Asset.UploadID
	require.NotEmpty(t, uploadID)

	// 2. Provider reports the upload produced an asset
	body := fmt.Sprintf(`{"type": "video.upload.asset_created", "data": {"id": "mux-e2e", "upload_id": %q}}`, uploadID)
	resp := postSigned(t, srv.URL, body)
	require.Equal(t, http.StatusOK, resp)

	// 3. Provider reports the asset is playable
	resp = postSigned(t, srv.URL, assetReadyBody("mux-e2e", uploadID))
	require.Equal(t, http.StatusOK, resp)

	waitCond(t, func() bool { return updates.Load() >= 2 }, "both webhook events should broadcast")
	waitCond(t, ready.Load, "ready status event should broadcast")

	assert.Equal(t, models.AssetStatusReady, lastStatus.Load())

	stored := ta.repo.get(created.Asset.ID)
	require.NotNil(t, stored)
	assert.Equal(t, models.AssetStatusReady, stored.Status)
	assert.Equal(t, "mux-e2e", stored.AssetID)
	assert.Equal(t, "pb-1", stored.PlaybackID)
	assert.Equal(t, provider.ThumbnailURL("", "pb-1"), stored.ThumbnailURL)
	require.NotNil(t, stored.ReadyAt)
}

func postSigned(t *testing.T, baseURL, body string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhook", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Provider-Signature", provider.Sign(testWebhookSecret, time.Now(), []byte(body)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func waitCond(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
