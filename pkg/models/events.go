package models

import (
	"encoding/json"
	"time"
)

// ProviderEvent is the envelope the video provider posts to the webhook
// endpoint. Data stays raw until the per-type payload is decoded.
type ProviderEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Provider event types
const (
	EventUploadAssetCreated    = "video.upload.asset_created"
	EventAssetCreated          = "video.asset.created"
	EventAssetReady            = "video.asset.ready"
	EventAssetErrored          = "video.asset.errored"
	EventAssetDeleted          = "video.asset.deleted"
	EventAssetNonStandardInput = "video.asset.non_standard_input_detected"
)

// PlaybackID is one entry of the provider's playback id list
type PlaybackID struct {
	ID     string `json:"id"`
	Policy string `json:"policy,omitempty"`
}

// AssetCreatedData is the payload of video.upload.asset_created and
// video.asset.created events
type AssetCreatedData struct {
	ID       string `json:"id"`
	UploadID string `json:"upload_id,omitempty"`
	Status   string `json:"status,omitempty"`
}

// AssetReadyData is the payload of video.asset.ready events
type AssetReadyData struct {
	ID          string       `json:"id"`
	UploadID    string       `json:"upload_id,omitempty"`
	PlaybackIDs []PlaybackID `json:"playback_ids"`
	Duration    float64      `json:"duration"`
	AspectRatio string       `json:"aspect_ratio"`
}

// AssetErroredData is the payload of video.asset.errored events
type AssetErroredData struct {
	ID     string `json:"id"`
	Errors struct {
		Type     string   `json:"type"`
		Messages []string `json:"messages"`
	} `json:"errors"`
}

// AssetDeletedData is the payload of video.asset.deleted events
type AssetDeletedData struct {
	ID string `json:"id"`
}

// AssetFlaggedData is the payload of non_standard_input_detected events
type AssetFlaggedData struct {
	ID string `json:"id"`
}

// BroadcastEvent is one frame fanned out to connected admin clients
type BroadcastEvent struct {
	Name      string      `json:"name"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Broadcast event names consumed by admin clients
const (
	BroadcastConnected    = "connected"
	BroadcastAssetUpdated = "asset:updated"
	BroadcastAssetReady   = "asset:status:ready"
	BroadcastAssetErrored = "asset:status:errored"
)

// AssetUpdatedPayload is the data carried by asset:* broadcast events
type AssetUpdatedPayload struct {
	ID       string `json:"id"`
	AssetID  string `json:"asset_id,omitempty"`
	UploadID string `json:"upload_id,omitempty"`
	Status   string `json:"status"`
}
