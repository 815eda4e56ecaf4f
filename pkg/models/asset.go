package models

import (
	"time"
)

// VideoAsset represents a provider-backed video in the catalog
type VideoAsset struct {
	ID               string     `json:"id" db:"id"`
	Title            string     `json:"title" db:"title"`
	SourceType       string     `json:"source_type" db:"source_type"`
	Status           string     `json:"status" db:"status"`
	UploadID         string     `json:"upload_id,omitempty" db:"upload_id"`
	AssetID          string     `json:"asset_id,omitempty" db:"asset_id"`
	PlaybackID       string     `json:"playback_id,omitempty" db:"playback_id"`
	Duration         float64    `json:"duration" db:"duration"`
	AspectRatio      string     `json:"aspect_ratio,omitempty" db:"aspect_ratio"`
	ThumbnailURL     string     `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	NonStandardInput bool       `json:"non_standard_input" db:"non_standard_input"`
	ErrorMessage     string     `json:"error_message,omitempty" db:"error_message"`
	ReadyAt          *time.Time `json:"ready_at,omitempty" db:"ready_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// AssetStatus constants
const (
	AssetStatusUploading  = "uploading"
	AssetStatusProcessing = "processing"
	AssetStatusReady      = "ready"
	AssetStatusErrored    = "errored"
)

// SourceType constants
const (
	SourceTypeProvider = "provider"
	SourceTypeEmbedded = "embedded"
)

// AssetPatch describes a partial update to a video asset. Nil fields are
// left untouched by the repository.
type AssetPatch struct {
	Title            *string    `json:"title,omitempty"`
	Status           *string    `json:"status,omitempty"`
	UploadID         *string    `json:"upload_id,omitempty"`
	AssetID          *string    `json:"asset_id,omitempty"`
	PlaybackID       *string    `json:"playback_id,omitempty"`
	Duration         *float64   `json:"duration,omitempty"`
	AspectRatio      *string    `json:"aspect_ratio,omitempty"`
	ThumbnailURL     *string    `json:"thumbnail_url,omitempty"`
	NonStandardInput *bool      `json:"non_standard_input,omitempty"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	ReadyAt          *time.Time `json:"ready_at,omitempty"`
}

// IsEmpty reports whether the patch carries no changes
func (p *AssetPatch) IsEmpty() bool {
	return p.Title == nil && p.Status == nil && p.UploadID == nil &&
		p.AssetID == nil && p.PlaybackID == nil && p.Duration == nil &&
		p.AspectRatio == nil && p.ThumbnailURL == nil &&
		p.NonStandardInput == nil && p.ErrorMessage == nil && p.ReadyAt == nil
}

// Ptr returns a pointer to v, for building patches inline
func Ptr[T any](v T) *T {
	return &v
}
