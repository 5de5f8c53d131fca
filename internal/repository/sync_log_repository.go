package repository

import (
	"context"
	"fmt"
	"time"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// syncLogRepository records sync lifecycle rows with PostgreSQL
type syncLogRepository struct {
	db *database.PostgresDB
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db *database.PostgresDB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

// StartRun inserts a running sync_log row and returns its id so the terminal
// update targets exactly the row this run created.
func (r *syncLogRepository) StartRun(ctx context.Context, syncType, triggeredBy string) (int64, error) {
	query := `
		INSERT INTO sync_log (sync_type, status, triggered_by, started_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id
	`

	var id int64
	err := r.db.Pool.QueryRow(ctx, query, syncType, domain.SyncStatusRunning, triggeredBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sync log row: %w", err)
	}

	return id, nil
}

// CompleteRun mutates the run to a terminal status exactly once.
func (r *syncLogRepository) CompleteRun(ctx context.Context, id int64, success bool, errorMessage string, recordsProcessed int, duration time.Duration) error {
	status := domain.SyncStatusSuccess
	if !success {
		status = domain.SyncStatusFailed
	}

	query := `
		UPDATE sync_log
		SET status = $1, error_message = $2, records_processed = $3,
		    duration_ms = $4, completed_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND status = $6
	`

	_, err := r.db.Pool.Exec(ctx, query, status, errorMessage, recordsProcessed,
		duration.Milliseconds(), id, domain.SyncStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete sync log row: %w", err)
	}

	return nil
}

// RecentRuns returns the latest sync runs, newest first.
func (r *syncLogRepository) RecentRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	query := `
		SELECT id, sync_type, status, COALESCE(triggered_by, ''),
		       records_processed, COALESCE(error_message, ''),
		       COALESCE(duration_ms, 0), started_at, completed_at
		FROM sync_log
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		if err := rows.Scan(
			&run.ID,
			&run.SyncType,
			&run.Status,
			&run.TriggeredBy,
			&run.RecordsProcessed,
			&run.ErrorMessage,
			&run.DurationMs,
			&run.StartedAt,
			&run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync log row: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
