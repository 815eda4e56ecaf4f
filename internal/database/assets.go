package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/streamhaven/mediasync/internal/logging"
	"github.com/streamhaven/mediasync/pkg/models"
)

// ErrNotFound is returned when a lookup or update targets a row that does
// not exist (anymore).
var ErrNotFound = errors.New("asset not found")

// ExternalIDField selects which provider identifier a lookup matches on
type ExternalIDField string

const (
	ByUploadID ExternalIDField = "upload_id"
	ByAssetID  ExternalIDField = "asset_id"
)

const assetColumns = `id, title, source_type, status, upload_id, asset_id, playback_id,
	       duration, aspect_ratio, thumbnail_url, non_standard_input, error_message,
	       ready_at, created_at, updated_at`

// AssetRepository provides database operations for video assets
type AssetRepository struct {
	db     *DB
	logger *logging.Logger
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *DB, logger *logging.Logger) *AssetRepository {
	return &AssetRepository{db: db, logger: logger}
}

// Health checks the underlying database connection
func (r *AssetRepository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

func scanAsset(row pgx.Row) (*models.VideoAsset, error) {
	var asset models.VideoAsset
	err := row.Scan(
		&asset.ID, &asset.Title, &asset.SourceType, &asset.Status,
		&asset.UploadID, &asset.AssetID, &asset.PlaybackID,
		&asset.Duration, &asset.AspectRatio, &asset.ThumbnailURL,
		&asset.NonStandardInput, &asset.ErrorMessage,
		&asset.ReadyAt, &asset.CreatedAt, &asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// Create creates a new video asset record
func (r *AssetRepository) Create(ctx context.Context, asset *models.VideoAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}
	if asset.SourceType == "" {
		asset.SourceType = models.SourceTypeProvider
	}
	if asset.Status == "" {
		asset.Status = models.AssetStatusUploading
	}

	query := `
		INSERT INTO video_assets (id, title, source_type, status, upload_id, asset_id,
		                          playback_id, duration, aspect_ratio, thumbnail_url,
		                          non_standard_input, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		asset.ID, asset.Title, asset.SourceType, asset.Status, asset.UploadID,
		asset.AssetID, asset.PlaybackID, asset.Duration, asset.AspectRatio,
		asset.ThumbnailURL, asset.NonStandardInput, asset.ErrorMessage,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// Get retrieves an asset by its internal ID
func (r *AssetRepository) Get(ctx context.Context, id string) (*models.VideoAsset, error) {
	query := fmt.Sprintf(`SELECT %s FROM video_assets WHERE id = $1`, assetColumns)

	asset, err := scanAsset(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return asset, nil
}

// FindByExternalID retrieves the asset matching a provider identifier.
// Returns (nil, nil) when no record matches. If the store holds duplicates
// the lowest internal id wins and a warning is logged; duplicates indicate
// a data-integrity anomaly, not a hard error.
func (r *AssetRepository) FindByExternalID(ctx context.Context, field ExternalIDField, value string) (*models.VideoAsset, error) {
	if value == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM video_assets
		WHERE %s = $1 AND source_type = $2
		ORDER BY id ASC
		LIMIT 2
	`, assetColumns, field)

	rows, err := r.db.Pool.Query(ctx, query, value, models.SourceTypeProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to find asset by %s: %w", field, err)
	}
	defer rows.Close()

	var assets []*models.VideoAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}

	if len(assets) == 0 {
		return nil, nil
	}
	if len(assets) > 1 {
		r.logger.WithFields(map[string]interface{}{
			"field": string(field),
			"value": value,
		}).Warn("Multiple assets share one external id, using lowest internal id")
	}

	return assets[0], nil
}

// Update applies a partial merge to an asset and returns the updated row.
// Returns ErrNotFound if the asset was deleted between lookup and update.
func (r *AssetRepository) Update(ctx context.Context, id string, patch *models.AssetPatch) (*models.VideoAsset, error) {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.UploadID != nil {
		add("upload_id", *patch.UploadID)
	}
	if patch.AssetID != nil {
		add("asset_id", *patch.AssetID)
	}
	if patch.PlaybackID != nil {
		add("playback_id", *patch.PlaybackID)
	}
	if patch.Duration != nil {
		add("duration", *patch.Duration)
	}
	if patch.AspectRatio != nil {
		add("aspect_ratio", *patch.AspectRatio)
	}
	if patch.ThumbnailURL != nil {
		add("thumbnail_url", *patch.ThumbnailURL)
	}
	if patch.NonStandardInput != nil {
		add("non_standard_input", *patch.NonStandardInput)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}
	if patch.ReadyAt != nil {
		add("ready_at", *patch.ReadyAt)
	}

	query := fmt.Sprintf(`
		UPDATE video_assets
		SET %s
		WHERE id = $1
		RETURNING %s
	`, strings.Join(sets, ", "), assetColumns)

	asset, err := scanAsset(r.db.Pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update asset: %w", err)
	}

	return asset, nil
}

// Delete removes an asset record, reporting whether a row existed
func (r *AssetRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM video_assets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete asset: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// List retrieves assets with pagination, newest first
func (r *AssetRepository) List(ctx context.Context, limit, offset int) ([]*models.VideoAsset, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM video_assets
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, assetColumns)

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.VideoAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}

	return assets, nil
}
