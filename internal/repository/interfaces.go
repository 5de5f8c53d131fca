package repository

import (
	"context"
	"time"

	"healthboard/internal/domain"
)

// SyncLogRepository records sync run lifecycle rows (append-only).
type SyncLogRepository interface {
	// StartRun inserts a running sync_log row and returns its id.
	StartRun(ctx context.Context, syncType, triggeredBy string) (int64, error)

	// CompleteRun mutates a run to its terminal status.
	CompleteRun(ctx context.Context, id int64, success bool, errorMessage string, recordsProcessed int, duration time.Duration) error

	// RecentRuns returns the latest sync runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// RateLimitRepository tracks manual refresh requests per source IP per window.
type RateLimitRepository interface {
	// RequestCount returns the count recorded for the window/IP pair,
	// zero when no row exists.
	RequestCount(ctx context.Context, window time.Time, sourceIP string) (int, error)

	// TrackRequest upserts the window/IP row, incrementing its count.
	TrackRequest(ctx context.Context, window time.Time, sourceIP string) error
}

// RefreshRequestRepository stores buffered manual refresh requests.
type RefreshRequestRepository interface {
	// PendingByIP returns the un-executed request for an IP, nil when none.
	PendingByIP(ctx context.Context, sourceIP string) (*domain.ManualRefreshRequest, error)

	// Create inserts a new buffered request.
	Create(ctx context.Context, req *domain.ManualRefreshRequest) error

	// Due returns un-executed requests whose scheduled time has passed.
	Due(ctx context.Context, now time.Time) ([]domain.ManualRefreshRequest, error)

	// MarkExecuted flags the given requests as executed and notified.
	MarkExecuted(ctx context.Context, ids []int64) error
}

// CSVCacheRepository stores metadata for the CSV download cache.
type CSVCacheRepository interface {
	// GetByURL returns the cache entry for a URL, nil when none exists.
	GetByURL(ctx context.Context, url string) (*domain.CSVCacheEntry, error)

	// Upsert writes a cache entry, replacing any previous generation
	// for the same URL.
	Upsert(ctx context.Context, entry *domain.CSVCacheEntry) error

	// TouchLastChecked bumps the last_checked timestamp after a
	// not-modified revalidation.
	TouchLastChecked(ctx context.Context, url string, checkedAt time.Time) error

	// Stats reports the entry count and the oldest/newest creation times.
	Stats(ctx context.Context) (count int, oldest, newest *time.Time, err error)

	// DeleteAll removes every cache entry.
	DeleteAll(ctx context.Context) error
}

// DiseaseRepository persists the disease-surveillance snapshot.
type DiseaseRepository interface {
	// ReplaceAll swaps the stored snapshot for the given records.
	ReplaceAll(ctx context.Context, stats []domain.DiseaseStat) error

	// ListByRegion reads the current snapshot for one region.
	ListByRegion(ctx context.Context, region string) ([]domain.DiseaseStat, error)
}

// WastewaterRepository persists the wastewater snapshot.
type WastewaterRepository interface {
	ReplaceAll(ctx context.Context, data *domain.WastewaterData) error
	Get(ctx context.Context) (*domain.WastewaterData, error)
}

// VaccinationRepository persists vaccination coverage per region.
type VaccinationRepository interface {
	// ReplaceRegion swaps the stored records for one region only.
	ReplaceRegion(ctx context.Context, region string, records []domain.VaccinationRecord) error

	// GetData reads the current snapshot grouped by region.
	GetData(ctx context.Context) (*domain.VaccinationData, error)
}

// NewsRepository persists the news alert snapshot.
type NewsRepository interface {
	ReplaceAll(ctx context.Context, alerts []domain.NewsAlert) error
	GetData(ctx context.Context) (*domain.NewsData, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	SyncLog        SyncLogRepository
	RateLimit      RateLimitRepository
	RefreshRequest RefreshRequestRepository
	CSVCache       CSVCacheRepository
	Disease        DiseaseRepository
	Wastewater     WastewaterRepository
	Vaccination    VaccinationRepository
	News           NewsRepository
}
