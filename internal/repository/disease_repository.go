package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// diseaseRepository persists disease-surveillance snapshots with PostgreSQL
type diseaseRepository struct {
	db *database.PostgresDB
}

// NewDiseaseRepository creates a new disease repository
func NewDiseaseRepository(db *database.PostgresDB) DiseaseRepository {
	return &diseaseRepository{db: db}
}

// ReplaceAll swaps the stored snapshot inside one transaction so a mid-write
// failure never leaves the table empty when it previously had data.
func (r *diseaseRepository) ReplaceAll(ctx context.Context, stats []domain.DiseaseStat) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM disease_stats`); err != nil {
			return fmt.Errorf("failed to clear disease stats: %w", err)
		}

		query := `
			INSERT INTO disease_stats (
				name, current_count, week_ago_count, month_ago_count,
				two_months_ago_count, year_ago_count, unit, last_updated,
				data_source, source_url, region
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`

		for _, stat := range stats {
			region := stat.Region
			if region == "" {
				region = "nyc"
			}
			if _, err := tx.Exec(ctx, query,
				stat.Name,
				stat.CurrentCount,
				stat.WeekAgo.Count,
				stat.MonthAgo.Count,
				stat.TwoMonthsAgo.Count,
				stat.YearAgo.Count,
				stat.Unit,
				stat.LastUpdated,
				stat.DataSource,
				stat.SourceURL,
				region,
			); err != nil {
				return fmt.Errorf("failed to insert disease stat %q: %w", stat.Name, err)
			}
		}

		return nil
	})
}

// ListByRegion reads the current snapshot for one region.
func (r *diseaseRepository) ListByRegion(ctx context.Context, region string) ([]domain.DiseaseStat, error) {
	query := `
		SELECT name, current_count, week_ago_count, month_ago_count,
		       two_months_ago_count, year_ago_count, COALESCE(unit, ''),
		       COALESCE(last_updated, ''), COALESCE(data_source, ''),
		       COALESCE(source_url, ''), region
		FROM disease_stats
		WHERE region = $1
		ORDER BY name
	`

	rows, err := r.db.Pool.Query(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query disease stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.DiseaseStat
	for rows.Next() {
		var stat domain.DiseaseStat
		var weekAgo, monthAgo, twoMonthsAgo, yearAgo int
		if err := rows.Scan(
			&stat.Name,
			&stat.CurrentCount,
			&weekAgo,
			&monthAgo,
			&twoMonthsAgo,
			&yearAgo,
			&stat.Unit,
			&stat.LastUpdated,
			&stat.DataSource,
			&stat.SourceURL,
			&stat.Region,
		); err != nil {
			return nil, fmt.Errorf("failed to scan disease stat row: %w", err)
		}
		stat.WeekAgo = domain.StableTrend(weekAgo)
		stat.MonthAgo = domain.StableTrend(monthAgo)
		stat.TwoMonthsAgo = domain.StableTrend(twoMonthsAgo)
		stat.YearAgo = domain.StableTrend(yearAgo)
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}
