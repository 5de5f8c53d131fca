package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"healthboard/internal/config"
	"healthboard/internal/domain"
	"healthboard/internal/repository"
	"healthboard/pkg/logger"
)

// SyncService coordinates periodic and on-demand refresh of all datasets.
// At most one full sync pass runs at a time; concurrent attempts are turned
// away without queueing. Manual refreshes pass through a per-IP admission
// ladder: run now, buffer for the next window, or reject.
type SyncService struct {
	cfg             *config.Config
	adapters        []DataAdapter
	syncLog         repository.SyncLogRepository
	rateLimit       repository.RateLimitRepository
	refreshRequests repository.RefreshRequestRepository
	notifier        SyncNotifier
	invalidator     SnapshotInvalidator
	logger          *logger.Logger

	syncing atomic.Bool
	cron    *cron.Cron

	// now is swappable for tests.
	now func() time.Time
}

// NewSyncService creates a new sync orchestrator.
func NewSyncService(
	cfg *config.Config,
	adapters []DataAdapter,
	repos *repository.Repositories,
	notifier SyncNotifier,
	invalidator SnapshotInvalidator,
	log *logger.Logger,
) *SyncService {
	return &SyncService{
		cfg:             cfg,
		adapters:        adapters,
		syncLog:         repos.SyncLog,
		rateLimit:       repos.RateLimit,
		refreshRequests: repos.RefreshRequest,
		notifier:        notifier,
		invalidator:     invalidator,
		logger:          log,
		now:             time.Now,
	}
}

// Start schedules the daily sync and the hourly buffered-request sweep, and
// drains any requests that came due while the process was down.
func (s *SyncService) Start(ctx context.Context) error {
	loc, err := s.cfg.Location()
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}
	hour, minute, err := s.cfg.ScheduleHourMinute()
	if err != nil {
		return err
	}

	s.cron = cron.New(cron.WithLocation(loc))

	dailySpec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.cron.AddFunc(dailySpec, func() {
		s.logger.Info("Starting scheduled daily sync")
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
		defer cancel()
		s.RunFullSync(ctx, domain.TriggerScheduled, "system:scheduler")
	}); err != nil {
		return fmt.Errorf("failed to schedule daily sync: %w", err)
	}

	if _, err := s.cron.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
		defer cancel()
		if err := s.ProcessBufferedRequests(ctx); err != nil {
			s.logger.WithError(err).Error("Buffered request sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule buffer sweep: %w", err)
	}

	s.cron.Start()
	s.logger.WithFields(map[string]interface{}{
		"schedule": dailySpec,
		"timezone": s.cfg.Timezone,
	}).Info("Sync scheduler started")

	// Requests that came due during downtime get one catch-up sweep.
	if err := s.ProcessBufferedRequests(ctx); err != nil {
		s.logger.WithError(err).Error("Startup buffered request sweep failed")
	}

	return nil
}

// Stop halts the scheduler. A sync pass already running is left to finish.
func (s *SyncService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// IsSyncing reports whether a full sync pass is currently running.
func (s *SyncService) IsSyncing() bool {
	return s.syncing.Load()
}

// RunFullSync runs every adapter concurrently and records the pass in the
// sync log. Adapter failures are isolated: each contributes a labeled error
// while the other datasets still refresh. When another pass is already
// running the call returns immediately without syncing.
func (s *SyncService) RunFullSync(ctx context.Context, trigger, triggeredBy string) *domain.SyncResult {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Warn("Sync already in progress, skipping")
		return &domain.SyncResult{Success: false, Errors: []string{"Sync in progress"}}
	}
	defer s.syncing.Store(false)

	start := s.now()
	s.logger.SyncStart(domain.SyncTypeAll, trigger, triggeredBy)

	runID, err := s.syncLog.StartRun(ctx, domain.SyncTypeAll, triggeredBy)
	if err != nil {
		s.logger.WithError(err).Error("Failed to record sync start")
	}

	errs := s.runAdapters(ctx)

	success := len(errs) == 0
	duration := s.now().Sub(start)
	processed := len(s.adapters) - len(errs)

	if runID != 0 {
		if err := s.syncLog.CompleteRun(ctx, runID, success, strings.Join(errs, "; "), processed, duration); err != nil {
			s.logger.WithError(err).Error("Failed to record sync completion")
		}
	}

	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate dashboard cache")
	}

	if success {
		s.logger.SyncComplete(domain.SyncTypeAll, trigger, duration.Milliseconds(), processed)
	} else {
		s.logger.SyncError(domain.SyncTypeAll, trigger, fmt.Errorf("%s", strings.Join(errs, "; ")))
	}

	s.notifier.NotifySyncCompleted(success, duration.Milliseconds())

	return &domain.SyncResult{Success: success, Errors: errs}
}

// runAdapters fans out to all adapters and collects labeled failures. A
// panicking adapter is contained and reported like any other failure.
func (s *SyncService) runAdapters(ctx context.Context) []string {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []string
	)

	for _, adapter := range s.adapters {
		wg.Add(1)
		go func(a DataAdapter) {
			defer wg.Done()

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic: %v", r)
					}
				}()
				return a.SyncData(ctx)
			}()

			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", a.Name(), err))
				mu.Unlock()
			}
		}(adapter)
	}

	wg.Wait()
	return errs
}

// RequestManualRefresh admits, buffers, or rejects a manual refresh request.
// Admitted requests kick off a sync in the background; the decision returns
// immediately.
func (s *SyncService) RequestManualRefresh(ctx context.Context, ip string, isAdmin bool) (*domain.RefreshDecision, error) {
	if isAdmin && s.cfg.AdminBypassRateLimit {
		s.startBackgroundSync(domain.TriggerManual, "admin:"+ip)
		return &domain.RefreshDecision{
			Status:  domain.RefreshScheduled,
			Message: "Admin refresh started immediately",
		}, nil
	}

	allowed, err := s.checkRateLimit(ctx, ip)
	if err != nil {
		return nil, err
	}

	if allowed {
		if err := s.rateLimit.TrackRequest(ctx, s.windowStart(), ip); err != nil {
			return nil, fmt.Errorf("failed to track refresh request: %w", err)
		}
		s.startBackgroundSync(domain.TriggerManual, "user:"+ip)
		return &domain.RefreshDecision{
			Status:  domain.RefreshScheduled,
			Message: "Refresh started",
		}, nil
	}

	scheduled, buffered, err := s.bufferRequest(ctx, ip)
	if err != nil {
		return nil, err
	}
	if buffered {
		return &domain.RefreshDecision{
			Status:        domain.RefreshBuffered,
			Message:       "Rate limit exceeded. Request buffered for next hour.",
			ScheduledTime: &scheduled,
		}, nil
	}

	return &domain.RefreshDecision{
		Status:  domain.RefreshRejected,
		Message: "Rate limit exceeded and buffer full. Please try again later.",
	}, nil
}

// checkRateLimit decides whether an IP may trigger an immediate sync in the
// current window. With a zero per-window quota the first request of a window
// may still run immediately when configured to do so.
func (s *SyncService) checkRateLimit(ctx context.Context, ip string) (bool, error) {
	count, err := s.rateLimit.RequestCount(ctx, s.windowStart(), ip)
	if err != nil {
		return false, fmt.Errorf("failed to read rate limit count: %w", err)
	}

	if count < s.cfg.ManualRefreshMaxPerHour {
		return true, nil
	}
	if s.cfg.BufferImmediateFirstRequest && count == 0 {
		return true, nil
	}
	return false, nil
}

// bufferRequest stores a deferred refresh for the next window boundary. An IP
// holds at most one pending request; a second attempt is not buffered again.
func (s *SyncService) bufferRequest(ctx context.Context, ip string) (time.Time, bool, error) {
	existing, err := s.refreshRequests.PendingByIP(ctx, ip)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to look up pending request: %w", err)
	}
	if existing != nil {
		return time.Time{}, false, nil
	}

	scheduledFor := s.windowStart().Add(s.cfg.RateLimitWindow())
	req := &domain.ManualRefreshRequest{
		RequestID:    "req_" + uuid.NewString(),
		SourceIP:     ip,
		ScheduledFor: scheduledFor,
	}

	if err := s.refreshRequests.Create(ctx, req); err != nil {
		s.logger.WithError(err).Error("Failed to buffer refresh request")
		return time.Time{}, false, nil
	}

	s.logger.WithFields(map[string]interface{}{
		"source_ip":     ip,
		"scheduled_for": scheduledFor,
	}).Info("Refresh request buffered")
	return scheduledFor, true, nil
}

// ProcessBufferedRequests runs one sync pass covering every due request,
// then marks them all executed. N due requests cost one sync, not N.
func (s *SyncService) ProcessBufferedRequests(ctx context.Context) error {
	due, err := s.refreshRequests.Due(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list due refresh requests: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.WithField("count", len(due)).Info("Processing buffered refresh requests")

	s.RunFullSync(ctx, domain.TriggerBuffered, "system:buffer_processor")

	ids := make([]int64, len(due))
	for i, req := range due {
		ids[i] = req.ID
	}
	if err := s.refreshRequests.MarkExecuted(ctx, ids); err != nil {
		return fmt.Errorf("failed to mark refresh requests executed: %w", err)
	}
	return nil
}

// startBackgroundSync launches a sync pass detached from the caller's request
// lifetime.
func (s *SyncService) startBackgroundSync(trigger, triggeredBy string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
		defer cancel()
		s.RunFullSync(ctx, trigger, triggeredBy)
	}()
}

// windowStart returns the current rate-limit bucket boundary in UTC.
func (s *SyncService) windowStart() time.Time {
	return s.now().UTC().Truncate(s.cfg.RateLimitWindow())
}
