package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// refreshRequestRepository stores buffered manual refresh requests with PostgreSQL
type refreshRequestRepository struct {
	db *database.PostgresDB
}

// NewRefreshRequestRepository creates a new refresh request repository
func NewRefreshRequestRepository(db *database.PostgresDB) RefreshRequestRepository {
	return &refreshRequestRepository{db: db}
}

// PendingByIP returns the un-executed request for an IP, nil when none exists.
func (r *refreshRequestRepository) PendingByIP(ctx context.Context, sourceIP string) (*domain.ManualRefreshRequest, error) {
	query := `
		SELECT id, request_id, source_ip, COALESCE(user_id, ''),
		       request_time, scheduled_for, executed, notification_sent
		FROM manual_refresh_requests
		WHERE source_ip = $1 AND executed = FALSE
		LIMIT 1
	`

	req := &domain.ManualRefreshRequest{}
	err := r.db.Pool.QueryRow(ctx, query, sourceIP).Scan(
		&req.ID,
		&req.RequestID,
		&req.SourceIP,
		&req.UserID,
		&req.RequestTime,
		&req.ScheduledFor,
		&req.Executed,
		&req.NotificationSent,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending refresh request: %w", err)
	}

	return req, nil
}

// Create inserts a new buffered request.
func (r *refreshRequestRepository) Create(ctx context.Context, req *domain.ManualRefreshRequest) error {
	query := `
		INSERT INTO manual_refresh_requests (request_id, source_ip, user_id, scheduled_for, executed)
		VALUES ($1, $2, NULLIF($3, ''), $4, FALSE)
		RETURNING id, request_time
	`

	err := r.db.Pool.QueryRow(ctx, query,
		req.RequestID,
		req.SourceIP,
		req.UserID,
		req.ScheduledFor,
	).Scan(&req.ID, &req.RequestTime)
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}

	return nil
}

// Due returns un-executed requests whose scheduled time has passed.
func (r *refreshRequestRepository) Due(ctx context.Context, now time.Time) ([]domain.ManualRefreshRequest, error) {
	query := `
		SELECT id, request_id, source_ip, COALESCE(user_id, ''),
		       request_time, scheduled_for, executed, notification_sent
		FROM manual_refresh_requests
		WHERE executed = FALSE AND scheduled_for <= $1
		ORDER BY scheduled_for
	`

	rows, err := r.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due refresh requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.ManualRefreshRequest
	for rows.Next() {
		var req domain.ManualRefreshRequest
		if err := rows.Scan(
			&req.ID,
			&req.RequestID,
			&req.SourceIP,
			&req.UserID,
			&req.RequestTime,
			&req.ScheduledFor,
			&req.Executed,
			&req.NotificationSent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan refresh request row: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// MarkExecuted flags the given requests as executed and notified.
func (r *refreshRequestRepository) MarkExecuted(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE manual_refresh_requests
		SET executed = TRUE, notification_sent = TRUE
		WHERE id = ANY($1)
	`

	if _, err := r.db.Pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to mark refresh requests executed: %w", err)
	}

	return nil
}
