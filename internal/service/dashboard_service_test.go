package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthboard/internal/domain"
	"healthboard/pkg/logger"
	"healthboard/pkg/redis"
)

type fakeVaccinationRepo struct {
	data domain.VaccinationData
}

func (r *fakeVaccinationRepo) ReplaceRegion(_ context.Context, region string, records []domain.VaccinationRecord) error {
	if region == "nyc" {
		r.data.NYC = records
	} else {
		r.data.NYS = records
	}
	return nil
}

func (r *fakeVaccinationRepo) GetData(_ context.Context) (*domain.VaccinationData, error) {
	copied := r.data
	return &copied, nil
}

type fakeDiseaseRepo struct {
	stats []domain.DiseaseStat
}

func (r *fakeDiseaseRepo) ReplaceAll(_ context.Context, stats []domain.DiseaseStat) error {
	r.stats = stats
	return nil
}

func (r *fakeDiseaseRepo) ListByRegion(_ context.Context, region string) ([]domain.DiseaseStat, error) {
	return r.stats, nil
}

type fakeWastewaterRepo struct {
	data domain.WastewaterData
}

func (r *fakeWastewaterRepo) ReplaceAll(_ context.Context, data *domain.WastewaterData) error {
	r.data = *data
	return nil
}

func (r *fakeWastewaterRepo) Get(_ context.Context) (*domain.WastewaterData, error) {
	copied := r.data
	return &copied, nil
}

type fakeNewsRepo struct {
	data domain.NewsData
}

func (r *fakeNewsRepo) ReplaceAll(_ context.Context, alerts []domain.NewsAlert) error {
	r.data.NYC = nil
	for _, alert := range alerts {
		if alert.Region == "nyc" {
			r.data.NYC = append(r.data.NYC, alert)
		}
	}
	return nil
}

func (r *fakeNewsRepo) GetData(_ context.Context) (*domain.NewsData, error) {
	copied := r.data
	return &copied, nil
}

type fakeStatsProvider struct{}

func (p *fakeStatsProvider) GetCacheStats(_ context.Context) (*domain.CSVCacheStats, error) {
	return &domain.CSVCacheStats{TotalEntries: 2, TotalSize: 1024}, nil
}

type dashboardFixture struct {
	svc        *DashboardService
	disease    *fakeDiseaseRepo
	wastewater *fakeWastewaterRepo
}

func newDashboardFixture(t *testing.T, cache *redis.Client) *dashboardFixture {
	t.Helper()
	log, err := logger.New("error", "test")
	require.NoError(t, err)

	diseaseRepo := &fakeDiseaseRepo{stats: []domain.DiseaseStat{{Name: "Measles", CurrentCount: 3}}}
	wastewaterRepo := &fakeWastewaterRepo{data: domain.WastewaterData{AlertLevel: domain.AlertLevelLow}}

	cfg := testSyncConfig()
	cfg.CacheTTLHours = 24

	svc := NewDashboardService(
		NewVaccinationService(&fakeVaccinationRepo{}, nil, nil, log),
		NewDiseaseService(diseaseRepo, nil, log),
		NewWastewaterService(wastewaterRepo, nil, log),
		NewNewsService(&fakeNewsRepo{}, nil, log),
		&fakeStatsProvider{},
		cache,
		cfg,
		log,
	)

	return &dashboardFixture{svc: svc, disease: diseaseRepo, wastewater: wastewaterRepo}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)

	log, err := logger.New("error", "test")
	require.NoError(t, err)

	client, err := redis.NewClient("redis://"+mr.Addr(), log.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGetSnapshot_WithoutCache(t *testing.T) {
	f := newDashboardFixture(t, nil)

	snapshot, err := f.svc.GetSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.DiseaseStats["nyc"], 1)
	assert.Equal(t, "Measles", snapshot.DiseaseStats["nyc"][0].Name)
	assert.Equal(t, 2, snapshot.CacheMetadata.CSVCache.TotalEntries)
	assert.NotEmpty(t, snapshot.CacheMetadata.LastFetched)
}

func TestGetSnapshot_ReadThroughCache(t *testing.T) {
	f := newDashboardFixture(t, newTestRedis(t))
	ctx := context.Background()

	first, err := f.svc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.DiseaseStats["nyc"][0].CurrentCount)

	// Store changes do not show through while the cached copy is fresh.
	f.disease.stats = []domain.DiseaseStat{{Name: "Measles", CurrentCount: 99}}

	second, err := f.svc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second.DiseaseStats["nyc"][0].CurrentCount)

	// Invalidation exposes the new store state.
	require.NoError(t, f.svc.Invalidate(ctx))

	third, err := f.svc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99, third.DiseaseStats["nyc"][0].CurrentCount)
}

func TestInvalidate_NoCacheConfigured(t *testing.T) {
	f := newDashboardFixture(t, nil)
	assert.NoError(t, f.svc.Invalidate(context.Background()))
}

func TestDashboardCacheTTL(t *testing.T) {
	cfg := testSyncConfig()
	cfg.CacheTTLHours = 6
	assert.Equal(t, 6*time.Hour, cfg.CacheTTL())
}
