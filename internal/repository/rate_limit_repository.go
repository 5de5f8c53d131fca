package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"healthboard/pkg/database"
)

// rateLimitRepository tracks per-IP request counts with PostgreSQL
type rateLimitRepository struct {
	db *database.PostgresDB
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(db *database.PostgresDB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

// RequestCount returns the count recorded for the window/IP pair.
func (r *rateLimitRepository) RequestCount(ctx context.Context, window time.Time, sourceIP string) (int, error) {
	query := `
		SELECT request_count FROM rate_limit_tracking
		WHERE hour_window = $1 AND source_ip = $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, window, sourceIP).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	return count, nil
}

// TrackRequest upserts the window/IP row, incrementing its count. The
// (hour_window, source_ip) uniqueness makes the increment idempotent per row.
func (r *rateLimitRepository) TrackRequest(ctx context.Context, window time.Time, sourceIP string) error {
	query := `
		INSERT INTO rate_limit_tracking (hour_window, source_ip, request_count, last_request_time)
		VALUES ($1, $2, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (hour_window, source_ip)
		DO UPDATE SET request_count = rate_limit_tracking.request_count + 1,
		              last_request_time = CURRENT_TIMESTAMP
	`

	if _, err := r.db.Pool.Exec(ctx, query, window, sourceIP); err != nil {
		return fmt.Errorf("failed to track rate limit request: %w", err)
	}

	return nil
}
