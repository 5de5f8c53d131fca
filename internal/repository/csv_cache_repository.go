package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"healthboard/internal/domain"
	"healthboard/pkg/database"
)

// csvCacheRepository stores CSV cache metadata with PostgreSQL
type csvCacheRepository struct {
	db *database.PostgresDB
}

// NewCSVCacheRepository creates a new CSV cache repository
func NewCSVCacheRepository(db *database.PostgresDB) CSVCacheRepository {
	return &csvCacheRepository{db: db}
}

// GetByURL returns the cache entry for a URL, nil when none exists.
func (r *csvCacheRepository) GetByURL(ctx context.Context, url string) (*domain.CSVCacheEntry, error) {
	query := `
		SELECT url, filename, local_path, COALESCE(remote_last_modified, ''),
		       COALESCE(remote_etag, ''), COALESCE(local_file_hash, ''),
		       download_count, last_checked
		FROM csv_cache
		WHERE url = $1
	`

	entry := &domain.CSVCacheEntry{}
	err := r.db.Pool.QueryRow(ctx, query, url).Scan(
		&entry.URL,
		&entry.Filename,
		&entry.LocalPath,
		&entry.RemoteLastModified,
		&entry.RemoteETag,
		&entry.LocalFileHash,
		&entry.DownloadCount,
		&entry.LastChecked,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read csv cache entry: %w", err)
	}

	return entry, nil
}

// Upsert writes a cache entry. One row per URL: a new remote generation
// replaces the previous one instead of appending a duplicate.
func (r *csvCacheRepository) Upsert(ctx context.Context, entry *domain.CSVCacheEntry) error {
	query := `
		INSERT INTO csv_cache
			(url, filename, local_path, remote_last_modified, remote_etag,
			 local_file_hash, download_count, last_checked)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (url) DO UPDATE SET
			filename = EXCLUDED.filename,
			local_path = EXCLUDED.local_path,
			remote_last_modified = EXCLUDED.remote_last_modified,
			remote_etag = EXCLUDED.remote_etag,
			local_file_hash = EXCLUDED.local_file_hash,
			download_count = EXCLUDED.download_count,
			last_checked = CURRENT_TIMESTAMP
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.URL,
		entry.Filename,
		entry.LocalPath,
		entry.RemoteLastModified,
		entry.RemoteETag,
		entry.LocalFileHash,
		entry.DownloadCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert csv cache entry: %w", err)
	}

	return nil
}

// TouchLastChecked bumps last_checked after a 304 revalidation.
func (r *csvCacheRepository) TouchLastChecked(ctx context.Context, url string, checkedAt time.Time) error {
	query := `UPDATE csv_cache SET last_checked = $1 WHERE url = $2`

	if _, err := r.db.Pool.Exec(ctx, query, checkedAt, url); err != nil {
		return fmt.Errorf("failed to touch csv cache entry: %w", err)
	}

	return nil
}

// Stats reports the entry count and the oldest/newest creation times.
func (r *csvCacheRepository) Stats(ctx context.Context) (int, *time.Time, *time.Time, error) {
	query := `SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM csv_cache`

	var count int
	var oldest, newest *time.Time
	if err := r.db.Pool.QueryRow(ctx, query).Scan(&count, &oldest, &newest); err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read csv cache stats: %w", err)
	}

	return count, oldest, newest, nil
}

// DeleteAll removes every cache entry.
func (r *csvCacheRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM csv_cache`); err != nil {
		return fmt.Errorf("failed to clear csv cache table: %w", err)
	}
	return nil
}
