package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthboard/internal/config"
	"healthboard/internal/domain"
	"healthboard/internal/repository"
	"healthboard/pkg/logger"
)

type fakeSyncLogRepo struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]*domain.SyncRun
}

func newFakeSyncLogRepo() *fakeSyncLogRepo {
	return &fakeSyncLogRepo{runs: make(map[int64]*domain.SyncRun)}
}

func (r *fakeSyncLogRepo) StartRun(_ context.Context, syncType, triggeredBy string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.runs[r.nextID] = &domain.SyncRun{
		ID:          r.nextID,
		SyncType:    syncType,
		Status:      domain.SyncStatusRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now(),
	}
	return r.nextID, nil
}

func (r *fakeSyncLogRepo) CompleteRun(_ context.Context, id int64, success bool, errorMessage string, recordsProcessed int, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != domain.SyncStatusRunning {
		return errors.New("no running run with that id")
	}
	if success {
		run.Status = domain.SyncStatusSuccess
	} else {
		run.Status = domain.SyncStatusFailed
	}
	run.ErrorMessage = errorMessage
	run.RecordsProcessed = recordsProcessed
	run.DurationMs = duration.Milliseconds()
	now := time.Now()
	run.CompletedAt = &now
	return nil
}

func (r *fakeSyncLogRepo) RecentRuns(_ context.Context, limit int) ([]domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := make([]domain.SyncRun, 0, len(r.runs))
	for id := r.nextID; id > 0 && len(runs) < limit; id-- {
		if run, ok := r.runs[id]; ok {
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

func (r *fakeSyncLogRepo) run(id int64) domain.SyncRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.runs[id]
}

type fakeRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{counts: make(map[string]int)}
}

func rateLimitKey(window time.Time, ip string) string {
	return window.Format(time.RFC3339) + "|" + ip
}

func (r *fakeRateLimitRepo) RequestCount(_ context.Context, window time.Time, ip string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[rateLimitKey(window, ip)], nil
}

func (r *fakeRateLimitRepo) TrackRequest(_ context.Context, window time.Time, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[rateLimitKey(window, ip)]++
	return nil
}

type fakeRefreshRequestRepo struct {
	mu       sync.Mutex
	nextID   int64
	requests []*domain.ManualRefreshRequest
}

func (r *fakeRefreshRequestRepo) PendingByIP(_ context.Context, ip string) (*domain.ManualRefreshRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.SourceIP == ip && !req.Executed {
			copied := *req
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeRefreshRequestRepo) Create(_ context.Context, req *domain.ManualRefreshRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	stored := *req
	stored.ID = r.nextID
	stored.RequestTime = time.Now()
	r.requests = append(r.requests, &stored)
	return nil
}

func (r *fakeRefreshRequestRepo) Due(_ context.Context, now time.Time) ([]domain.ManualRefreshRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.ManualRefreshRequest
	for _, req := range r.requests {
		if !req.Executed && !req.ScheduledFor.After(now) {
			due = append(due, *req)
		}
	}
	return due, nil
}

func (r *fakeRefreshRequestRepo) MarkExecuted(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		for _, id := range ids {
			if req.ID == id {
				req.Executed = true
				req.NotificationSent = true
			}
		}
	}
	return nil
}

type fakeAdapter struct {
	name  string
	err   error
	panic bool
	calls atomic.Int32
	block chan struct{}
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) SyncData(ctx context.Context) error {
	a.calls.Add(1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if a.panic {
		panic("adapter exploded")
	}
	return a.err
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []bool
}

func (n *fakeNotifier) NotifySyncStatus(status, message string) {}

func (n *fakeNotifier) NotifySyncCompleted(success bool, durationMs int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, success)
}

type fakeInvalidator struct {
	calls atomic.Int32
}

func (i *fakeInvalidator) Invalidate(ctx context.Context) error {
	i.calls.Add(1)
	return nil
}

type syncFixture struct {
	svc         *SyncService
	syncLog     *fakeSyncLogRepo
	rateLimit   *fakeRateLimitRepo
	refreshes   *fakeRefreshRequestRepo
	notifier    *fakeNotifier
	invalidator *fakeInvalidator
	adapters    []*fakeAdapter
}

func testSyncConfig() *config.Config {
	return &config.Config{
		Environment:                 "test",
		Timezone:                    "America/New_York",
		SyncScheduleTime:            "10:00",
		SyncTimeout:                 30 * time.Second,
		ManualRefreshMaxPerHour:     3,
		RateLimitWindowMinutes:      60,
		AdminBypassRateLimit:        true,
		BufferImmediateFirstRequest: true,
	}
}

func newSyncFixture(t *testing.T, cfg *config.Config, adapters ...*fakeAdapter) *syncFixture {
	t.Helper()
	if cfg == nil {
		cfg = testSyncConfig()
	}
	if len(adapters) == 0 {
		adapters = []*fakeAdapter{{name: "disease"}, {name: "wastewater"}, {name: "vaccination"}, {name: "news"}}
	}

	log, err := logger.New("error", "test")
	require.NoError(t, err)

	f := &syncFixture{
		syncLog:     newFakeSyncLogRepo(),
		rateLimit:   newFakeRateLimitRepo(),
		refreshes:   &fakeRefreshRequestRepo{},
		notifier:    &fakeNotifier{},
		invalidator: &fakeInvalidator{},
		adapters:    adapters,
	}

	dataAdapters := make([]DataAdapter, len(adapters))
	for i, a := range adapters {
		dataAdapters[i] = a
	}

	f.svc = NewSyncService(cfg, dataAdapters, &repository.Repositories{
		SyncLog:        f.syncLog,
		RateLimit:      f.rateLimit,
		RefreshRequest: f.refreshes,
	}, f.notifier, f.invalidator, log)

	return f
}

func TestRunFullSync_AllAdaptersSucceed(t *testing.T) {
	f := newSyncFixture(t, nil)

	result := f.svc.RunFullSync(context.Background(), domain.TriggerScheduled, "system:scheduler")

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	for _, a := range f.adapters {
		assert.Equal(t, int32(1), a.calls.Load(), "adapter %s", a.name)
	}

	run := f.syncLog.run(1)
	assert.Equal(t, domain.SyncStatusSuccess, run.Status)
	assert.Equal(t, "system:scheduler", run.TriggeredBy)
	assert.Equal(t, 4, run.RecordsProcessed)
	assert.NotNil(t, run.CompletedAt)

	assert.Equal(t, int32(1), f.invalidator.calls.Load())
	assert.Equal(t, []bool{true}, f.notifier.completed)
}

func TestRunFullSync_PartialFailureIsolated(t *testing.T) {
	failing := &fakeAdapter{name: "wastewater", err: errors.New("upstream unavailable")}
	healthy := []*fakeAdapter{{name: "disease"}, {name: "vaccination"}, {name: "news"}}
	f := newSyncFixture(t, nil, append(healthy, failing)...)

	result := f.svc.RunFullSync(context.Background(), domain.TriggerScheduled, "system:scheduler")

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "wastewater:")
	assert.Contains(t, result.Errors[0], "upstream unavailable")

	// The other adapters still ran.
	for _, a := range healthy {
		assert.Equal(t, int32(1), a.calls.Load(), "adapter %s", a.name)
	}

	run := f.syncLog.run(1)
	assert.Equal(t, domain.SyncStatusFailed, run.Status)
	assert.Equal(t, 3, run.RecordsProcessed)
	assert.Contains(t, run.ErrorMessage, "wastewater:")
}

func TestRunFullSync_PanicContained(t *testing.T) {
	f := newSyncFixture(t, nil, &fakeAdapter{name: "news", panic: true}, &fakeAdapter{name: "disease"})

	result := f.svc.RunFullSync(context.Background(), domain.TriggerManual, "user:1.2.3.4")

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "news: panic:")
}

func TestRunFullSync_MutualExclusion(t *testing.T) {
	blocking := &fakeAdapter{name: "disease", block: make(chan struct{})}
	f := newSyncFixture(t, nil, blocking)

	firstDone := make(chan *domain.SyncResult)
	go func() {
		firstDone <- f.svc.RunFullSync(context.Background(), domain.TriggerScheduled, "system:scheduler")
	}()

	// Wait for the first pass to be visibly in flight.
	require.Eventually(t, f.svc.IsSyncing, time.Second, 5*time.Millisecond)

	second := f.svc.RunFullSync(context.Background(), domain.TriggerManual, "user:1.2.3.4")
	assert.False(t, second.Success)
	assert.Equal(t, []string{"Sync in progress"}, second.Errors)

	close(blocking.block)
	first := <-firstDone
	assert.True(t, first.Success)

	// Only the first pass touched the adapter and the log.
	assert.Equal(t, int32(1), blocking.calls.Load())
	assert.Equal(t, int64(1), f.syncLog.nextID)
}

func TestRequestManualRefresh_AdminBypassesRateLimit(t *testing.T) {
	f := newSyncFixture(t, nil)

	decision, err := f.svc.RequestManualRefresh(context.Background(), "9.9.9.9", true)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshScheduled, decision.Status)

	// Admin requests bypass tracking entirely.
	count, _ := f.rateLimit.RequestCount(context.Background(), f.svc.windowStart(), "9.9.9.9")
	assert.Zero(t, count)

	require.Eventually(t, func() bool {
		return f.adapters[0].calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRequestManualRefresh_DecisionLadder(t *testing.T) {
	f := newSyncFixture(t, nil)
	ctx := context.Background()
	ip := "1.2.3.4"

	// Under the quota: every request is scheduled.
	for i := 0; i < 3; i++ {
		decision, err := f.svc.RequestManualRefresh(ctx, ip, false)
		require.NoError(t, err)
		assert.Equal(t, domain.RefreshScheduled, decision.Status, "request %d", i+1)
	}

	// Quota exhausted: the next request is buffered for the next window.
	decision, err := f.svc.RequestManualRefresh(ctx, ip, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshBuffered, decision.Status)
	require.NotNil(t, decision.ScheduledTime)
	assert.True(t, decision.ScheduledTime.After(time.Now()))

	// One pending request per IP: further attempts are rejected.
	decision, err = f.svc.RequestManualRefresh(ctx, ip, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshRejected, decision.Status)

	// A different IP still has its own quota.
	decision, err = f.svc.RequestManualRefresh(ctx, "5.6.7.8", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshScheduled, decision.Status)
}

func TestRequestManualRefresh_ZeroQuotaFirstRequestRuns(t *testing.T) {
	cfg := testSyncConfig()
	cfg.ManualRefreshMaxPerHour = 0
	f := newSyncFixture(t, cfg)
	ctx := context.Background()

	// With a zero quota the first request of the window still runs.
	decision, err := f.svc.RequestManualRefresh(ctx, "1.2.3.4", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshScheduled, decision.Status)

	decision, err = f.svc.RequestManualRefresh(ctx, "1.2.3.4", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshBuffered, decision.Status)
}

func TestRequestManualRefresh_ZeroQuotaNoFirstRequest(t *testing.T) {
	cfg := testSyncConfig()
	cfg.ManualRefreshMaxPerHour = 0
	cfg.BufferImmediateFirstRequest = false
	f := newSyncFixture(t, cfg)

	decision, err := f.svc.RequestManualRefresh(context.Background(), "1.2.3.4", false)
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshBuffered, decision.Status)
}

func TestProcessBufferedRequests_OneSyncForAllDue(t *testing.T) {
	f := newSyncFixture(t, nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	for i, ip := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		require.NoError(t, f.refreshes.Create(ctx, &domain.ManualRefreshRequest{
			RequestID:    fmt.Sprintf("req_%d", i),
			SourceIP:     ip,
			ScheduledFor: past,
		}))
	}

	require.NoError(t, f.svc.ProcessBufferedRequests(ctx))

	// One sync pass covered all three requests.
	assert.Equal(t, int32(1), f.adapters[0].calls.Load())

	due, err := f.refreshes.Due(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	run := f.syncLog.run(1)
	assert.Equal(t, "system:buffer_processor", run.TriggeredBy)
}

func TestProcessBufferedRequests_NoDueRequestsNoSync(t *testing.T) {
	f := newSyncFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.refreshes.Create(ctx, &domain.ManualRefreshRequest{
		RequestID:    "req_future",
		SourceIP:     "1.1.1.1",
		ScheduledFor: time.Now().Add(time.Hour),
	}))

	require.NoError(t, f.svc.ProcessBufferedRequests(ctx))
	assert.Zero(t, f.adapters[0].calls.Load())
	assert.Equal(t, int64(0), f.syncLog.nextID)
}

func TestWindowStart_AlignedToWindow(t *testing.T) {
	f := newSyncFixture(t, nil)
	f.svc.now = func() time.Time {
		return time.Date(2025, 6, 15, 14, 37, 22, 0, time.UTC)
	}

	assert.Equal(t, time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC), f.svc.windowStart())
}
