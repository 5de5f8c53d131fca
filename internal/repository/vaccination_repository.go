package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// vaccinationRepository persists vaccination coverage with PostgreSQL
type vaccinationRepository struct {
	db *database.PostgresDB
}

// NewVaccinationRepository creates a new vaccination repository
func NewVaccinationRepository(db *database.PostgresDB) VaccinationRepository {
	return &vaccinationRepository{db: db}
}

// ReplaceRegion swaps the stored records for one region inside one
// transaction, leaving other regions untouched.
func (r *vaccinationRepository) ReplaceRegion(ctx context.Context, region string, records []domain.VaccinationRecord) error {
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM vaccination_data WHERE region = $1`, region); err != nil {
			return fmt.Errorf("failed to clear vaccination data for region %s: %w", region, err)
		}

		query := `
			INSERT INTO vaccination_data (
				region, vaccine_name, current_year, five_years_ago, ten_years_ago,
				last_available_rate, last_available_date, collection_method,
				source_url, calculation_details
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`

		for _, record := range records {
			var details *string
			if record.CalculationDetails != nil {
				encoded, err := json.Marshal(record.CalculationDetails)
				if err != nil {
					return fmt.Errorf("failed to marshal calculation details: %w", err)
				}
				s := string(encoded)
				details = &s
			}

			if _, err := tx.Exec(ctx, query,
				region,
				record.Name,
				record.CurrentYear,
				record.FiveYearsAgo,
				record.TenYearsAgo,
				record.LastAvailableRate,
				record.LastAvailableDate,
				record.CollectionMethod,
				record.SourceURL,
				details,
			); err != nil {
				return fmt.Errorf("failed to insert vaccination record %q: %w", record.Name, err)
			}
		}

		return nil
	})
}

// GetData reads the current snapshot grouped by region. Statewide flu and
// COVID doses are mirrored into the NYC bucket so the city view shows the
// respiratory season numbers, matching the dashboard contract.
func (r *vaccinationRepository) GetData(ctx context.Context) (*domain.VaccinationData, error) {
	query := `
		SELECT region, vaccine_name, current_year, five_years_ago, ten_years_ago,
		       last_available_rate, COALESCE(last_available_date, ''),
		       COALESCE(collection_method, ''), COALESCE(source_url, ''),
		       calculation_details
		FROM vaccination_data
		ORDER BY vaccine_name
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaccination data: %w", err)
	}
	defer rows.Close()

	data := &domain.VaccinationData{
		NYC: []domain.VaccinationRecord{},
		NYS: []domain.VaccinationRecord{},
	}

	for rows.Next() {
		var region string
		var record domain.VaccinationRecord
		var details *string
		if err := rows.Scan(
			&region,
			&record.Name,
			&record.CurrentYear,
			&record.FiveYearsAgo,
			&record.TenYearsAgo,
			&record.LastAvailableRate,
			&record.LastAvailableDate,
			&record.CollectionMethod,
			&record.SourceURL,
			&details,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vaccination row: %w", err)
		}

		if details != nil && *details != "" {
			var decoded domain.CalculationDetails
			if err := json.Unmarshal([]byte(*details), &decoded); err == nil {
				record.CalculationDetails = &decoded
			}
		}

		if region == "nyc" {
			data.NYC = append(data.NYC, record)
		} else {
			data.NYS = append(data.NYS, record)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, record := range data.NYS {
		if strings.Contains(record.Name, "COVID") || strings.Contains(record.Name, "Influenza") {
			data.NYC = append(data.NYC, record)
		}
	}

	return data, nil
}
