package database

import (
	"context"
	"fmt"
)

// AssetStats summarizes the catalog for the operator stats endpoint.
type AssetStats struct {
	Total            int64            `json:"total"`
	ByStatus         map[string]int64 `json:"by_status"`
	NonStandardInput int64            `json:"non_standard_input"`
	// AverageReadySeconds is the mean time from record creation to the
	// provider reporting the asset playable, over the last 24 hours.
	AverageReadySeconds float64 `json:"average_ready_seconds"`
}

// Stats returns aggregate counts over the asset catalog.
func (r *AssetRepository) Stats(ctx context.Context) (*AssetStats, error) {
	stats := &AssetStats{ByStatus: make(map[string]int64)}

	query := `
		SELECT status, COUNT(*)
		FROM video_assets
		GROUP BY status
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stats rows: %w", err)
	}

	query = `
		SELECT COUNT(*) FILTER (WHERE non_standard_input),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (ready_at - created_at)))
		                FILTER (WHERE ready_at IS NOT NULL
		                        AND created_at > NOW() - INTERVAL '24 hours'), 0)
		FROM video_assets
	`
	err = r.db.Pool.QueryRow(ctx, query).Scan(&stats.NonStandardInput, &stats.AverageReadySeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset aggregates: %w", err)
	}

	return stats, nil
}
