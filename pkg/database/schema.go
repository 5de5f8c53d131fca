package database

import (
	"context"
	"fmt"
)

// schemaStatements creates every table the dashboard relies on. Statements are
// idempotent so the server can self-provision at boot and the migrate command
// can be re-run safely.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dashboard_cache (
		id SERIAL PRIMARY KEY,
		data_json TEXT NOT NULL,
		last_updated TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMPTZ,
		is_stale BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS csv_cache (
		id SERIAL PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		filename TEXT NOT NULL,
		local_path TEXT NOT NULL,
		remote_last_modified TEXT,
		remote_etag TEXT,
		local_file_hash TEXT,
		download_count INTEGER DEFAULT 1,
		last_checked TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(url, remote_last_modified, remote_etag)
	)`,

	`CREATE TABLE IF NOT EXISTS sync_log (
		id SERIAL PRIMARY KEY,
		sync_type TEXT NOT NULL,
		data_source TEXT,
		status TEXT NOT NULL,
		records_processed INTEGER DEFAULT 0,
		error_message TEXT,
		duration_ms BIGINT,
		triggered_by TEXT,
		source_ip TEXT,
		user_id TEXT,
		was_rate_limited BOOLEAN DEFAULT FALSE,
		scheduled_at TIMESTAMPTZ,
		started_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS manual_refresh_requests (
		id SERIAL PRIMARY KEY,
		request_id TEXT UNIQUE NOT NULL,
		source_ip TEXT NOT NULL,
		user_id TEXT,
		request_time TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		scheduled_for TIMESTAMPTZ,
		executed BOOLEAN DEFAULT FALSE,
		notification_sent BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS rate_limit_tracking (
		id SERIAL PRIMARY KEY,
		hour_window TIMESTAMPTZ NOT NULL,
		request_count INTEGER DEFAULT 1,
		source_ip TEXT NOT NULL,
		last_request_time TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(hour_window, source_ip)
	)`,

	`CREATE TABLE IF NOT EXISTS vaccination_data (
		id SERIAL PRIMARY KEY,
		region TEXT NOT NULL,
		vaccine_name TEXT NOT NULL,
		current_year REAL,
		five_years_ago REAL,
		ten_years_ago REAL,
		last_available_rate REAL,
		last_available_date TEXT,
		collection_method TEXT,
		source_url TEXT,
		calculation_details TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS disease_stats (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		current_count INTEGER,
		week_ago_count INTEGER,
		month_ago_count INTEGER,
		two_months_ago_count INTEGER,
		year_ago_count INTEGER,
		unit TEXT,
		last_updated TEXT,
		data_source TEXT,
		source_url TEXT,
		region TEXT DEFAULT 'nyc',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS wastewater_data (
		id SERIAL PRIMARY KEY,
		sample_date TEXT,
		location TEXT,
		concentration REAL,
		trend TEXT,
		pathogen TEXT,
		average_concentration REAL,
		alert_level TEXT,
		last_updated TEXT,
		pathogens TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS news_data (
		id SERIAL PRIMARY KEY,
		alert_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		date TEXT,
		severity TEXT,
		source TEXT,
		url TEXT,
		region TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_csv_cache_url ON csv_cache(url)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_log_started_at ON sync_log(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_manual_refresh_request_time ON manual_refresh_requests(request_time)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_hour_window ON rate_limit_tracking(hour_window, source_ip)`,
	`CREATE INDEX IF NOT EXISTS idx_vaccination_data_region ON vaccination_data(region)`,
	`CREATE INDEX IF NOT EXISTS idx_disease_stats_region ON disease_stats(region)`,
	`CREATE INDEX IF NOT EXISTS idx_news_data_region ON news_data(region)`,
}

// InitSchema creates all tables and indexes if they do not exist yet.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
