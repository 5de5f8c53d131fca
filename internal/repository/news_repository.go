package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// newsRepository persists news alert snapshots with PostgreSQL
type newsRepository struct {
	db *database.PostgresDB
}

// NewNewsRepository creates a new news repository
func NewNewsRepository(db *database.PostgresDB) NewsRepository {
	return &newsRepository{db: db}
}

// ReplaceAll swaps the stored snapshot inside one transaction.
func (r *newsRepository) ReplaceAll(ctx context.Context, alerts []domain.NewsAlert) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM news_data`); err != nil {
			return fmt.Errorf("failed to clear news data: %w", err)
		}

		query := `
			INSERT INTO news_data (alert_id, title, summary, date, severity, source, url, region)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (alert_id) DO NOTHING
		`

		for _, alert := range alerts {
			if _, err := tx.Exec(ctx, query,
				alert.ID,
				alert.Title,
				alert.Summary,
				alert.Date,
				alert.Severity,
				alert.Source,
				alert.URL,
				alert.Region,
			); err != nil {
				return fmt.Errorf("failed to insert news alert %q: %w", alert.ID, err)
			}
		}

		return nil
	})
}

// GetData reads the current snapshot grouped into regional buckets.
func (r *newsRepository) GetData(ctx context.Context) (*domain.NewsData, error) {
	query := `
		SELECT alert_id, title, COALESCE(summary, ''), COALESCE(date, ''),
		       COALESCE(severity, 'info'), COALESCE(source, ''),
		       COALESCE(url, ''), COALESCE(region, '')
		FROM news_data
		ORDER BY date DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query news data: %w", err)
	}
	defer rows.Close()

	data := &domain.NewsData{
		NYC:         []domain.NewsAlert{},
		NYS:         []domain.NewsAlert{},
		USA:         []domain.NewsAlert{},
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}

	for rows.Next() {
		var alert domain.NewsAlert
		if err := rows.Scan(
			&alert.ID,
			&alert.Title,
			&alert.Summary,
			&alert.Date,
			&alert.Severity,
			&alert.Source,
			&alert.URL,
			&alert.Region,
		); err != nil {
			return nil, fmt.Errorf("failed to scan news row: %w", err)
		}

		switch alert.Region {
		case "nyc":
			data.NYC = append(data.NYC, alert)
		case "nys":
			data.NYS = append(data.NYS, alert)
		case "usa":
			data.USA = append(data.USA, alert)
		}
	}

	return data, rows.Err()
}
