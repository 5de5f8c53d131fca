package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// wastewaterRepository persists wastewater snapshots with PostgreSQL
type wastewaterRepository struct {
	db *database.PostgresDB
}

// NewWastewaterRepository creates a new wastewater repository
func NewWastewaterRepository(db *database.PostgresDB) WastewaterRepository {
	return &wastewaterRepository{db: db}
}

// ReplaceAll swaps the stored snapshot inside one transaction. The snapshot
// level aggregates (average, alert level, pathogens) are denormalized onto
// every row, matching the read model.
func (r *wastewaterRepository) ReplaceAll(ctx context.Context, data *domain.WastewaterData) error {
	pathogens, err := json.Marshal(data.Pathogens)
	if err != nil {
		return fmt.Errorf("failed to marshal pathogen list: %w", err)
	}

	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM wastewater_data`); err != nil {
			return fmt.Errorf("failed to clear wastewater data: %w", err)
		}

		query := `
			INSERT INTO wastewater_data (
				sample_date, location, concentration, trend, pathogen,
				average_concentration, alert_level, last_updated, pathogens
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

		for _, sample := range data.Samples {
			if _, err := tx.Exec(ctx, query,
				sample.Date,
				sample.Location,
				sample.Concentration,
				sample.Trend,
				sample.Pathogen,
				data.AverageConcentration,
				data.AlertLevel,
				data.LastUpdated,
				string(pathogens),
			); err != nil {
				return fmt.Errorf("failed to insert wastewater sample: %w", err)
			}
		}

		return nil
	})
}

// Get reads the current wastewater snapshot. An empty table yields an empty
// default snapshot, not an error.
func (r *wastewaterRepository) Get(ctx context.Context) (*domain.WastewaterData, error) {
	query := `
		SELECT sample_date, location, concentration, trend, COALESCE(pathogen, ''),
		       average_concentration, alert_level, last_updated, COALESCE(pathogens, '[]')
		FROM wastewater_data
		ORDER BY sample_date DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query wastewater data: %w", err)
	}
	defer rows.Close()

	data := &domain.WastewaterData{
		Trend:       "stable",
		AlertLevel:  domain.AlertLevelLow,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Samples:     []domain.WastewaterSample{},
		Pathogens:   []string{},
	}

	first := true
	for rows.Next() {
		var sample domain.WastewaterSample
		var pathogens string
		if err := rows.Scan(
			&sample.Date,
			&sample.Location,
			&sample.Concentration,
			&sample.Trend,
			&sample.Pathogen,
			&data.AverageConcentration,
			&data.AlertLevel,
			&data.LastUpdated,
			&pathogens,
		); err != nil {
			return nil, fmt.Errorf("failed to scan wastewater row: %w", err)
		}

		if first {
			if err := json.Unmarshal([]byte(pathogens), &data.Pathogens); err != nil {
				data.Pathogens = []string{}
			}
			first = false
		}

		data.Samples = append(data.Samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for charting.
	for i, j := 0, len(data.Samples)-1; i < j; i, j = i+1, j-1 {
		data.Samples[i], data.Samples[j] = data.Samples[j], data.Samples[i]
	}

	return data, nil
}
