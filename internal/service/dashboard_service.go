package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"healthboard/internal/config"
	"healthboard/internal/domain"
	"healthboard/pkg/logger"
	"healthboard/pkg/redis"
)

const dashboardCacheKey = "dashboard:snapshot"

// CacheStatsProvider exposes the CSV cache statistics attached to dashboard
// responses.
type CacheStatsProvider interface {
	GetCacheStats(ctx context.Context) (*domain.CSVCacheStats, error)
}

// DashboardService aggregates the four datasets into the snapshot served to
// the client, with a Redis read-through cache in front of the store. The
// cache is optional: without Redis every read hits the store directly.
type DashboardService struct {
	vaccination *VaccinationService
	disease     *DiseaseService
	wastewater  *WastewaterService
	news        *NewsService
	cacheStats  CacheStatsProvider
	cache       *redis.Client
	ttl         time.Duration
	logger      *logger.Logger
}

// NewDashboardService creates a new dashboard aggregation service. cache may
// be nil when Redis is not configured.
func NewDashboardService(
	vaccination *VaccinationService,
	disease *DiseaseService,
	wastewater *WastewaterService,
	news *NewsService,
	cacheStats CacheStatsProvider,
	cache *redis.Client,
	cfg *config.Config,
	log *logger.Logger,
) *DashboardService {
	return &DashboardService{
		vaccination: vaccination,
		disease:     disease,
		wastewater:  wastewater,
		news:        news,
		cacheStats:  cacheStats,
		cache:       cache,
		ttl:         cfg.CacheTTL(),
		logger:      log,
	}
}

// GetSnapshot returns the aggregated dashboard snapshot, served from the
// cache when a fresh copy exists.
func (s *DashboardService) GetSnapshot(ctx context.Context) (*domain.DashboardSnapshot, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, dashboardCacheKey)
		if err == nil {
			var snapshot domain.DashboardSnapshot
			if decodeErr := json.Unmarshal([]byte(cached), &snapshot); decodeErr == nil {
				return &snapshot, nil
			} else {
				s.logger.WithError(decodeErr).Warn("Discarding unreadable cached dashboard snapshot")
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.WithError(err).Warn("Dashboard cache read failed, falling back to store")
		}
	}

	snapshot, err := s.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, string(encoded), s.ttl); err != nil {
				s.logger.WithError(err).Warn("Failed to cache dashboard snapshot")
			}
		}
	}

	return snapshot, nil
}

// buildSnapshot reads all four datasets and the cache stats concurrently.
func (s *DashboardService) buildSnapshot(ctx context.Context) (*domain.DashboardSnapshot, error) {
	var (
		wg          sync.WaitGroup
		vaccination *domain.VaccinationData
		disease     []domain.DiseaseStat
		wastewater  *domain.WastewaterData
		news        *domain.NewsData
		csvStats    *domain.CSVCacheStats

		mu   sync.Mutex
		errs []error
	)

	collect := func(name string, fn func() error) {
		defer wg.Done()
		if err := fn(); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			mu.Unlock()
		}
	}

	wg.Add(5)
	go collect("vaccination", func() (err error) {
		vaccination, err = s.vaccination.GetData(ctx)
		return
	})
	go collect("disease", func() (err error) {
		disease, err = s.disease.GetData(ctx, "nyc")
		return
	})
	go collect("wastewater", func() (err error) {
		wastewater, err = s.wastewater.GetData(ctx)
		return
	})
	go collect("news", func() (err error) {
		news, err = s.news.GetData(ctx)
		return
	})
	go collect("cache stats", func() (err error) {
		csvStats, err = s.cacheStats.GetCacheStats(ctx)
		return
	})
	wg.Wait()

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to build dashboard snapshot: %w", errors.Join(errs...))
	}

	return &domain.DashboardSnapshot{
		VaccinationData: *vaccination,
		DiseaseStats:    map[string][]domain.DiseaseStat{"nyc": disease},
		WastewaterData:  *wastewater,
		NewsData:        *news,
		CacheMetadata: domain.CacheMetadata{
			LastFetched: time.Now().UTC().Format(time.RFC3339),
			CSVCache:    *csvStats,
		},
	}, nil
}

// Invalidate drops the cached snapshot so the next read reflects freshly
// synced data.
func (s *DashboardService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, dashboardCacheKey)
}
