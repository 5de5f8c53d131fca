package domain

import "time"

// Sync types identify which dataset a sync pass covers.
const (
	SyncTypeDisease     = "disease"
	SyncTypeWastewater  = "wastewater"
	SyncTypeVaccination = "vaccination"
	SyncTypeNews        = "news"
	SyncTypeAll         = "all"
)

// Trigger kinds describe what initiated a sync pass.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerBuffered  = "buffered"
)

// Sync run statuses.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncRun is one attempt to refresh some or all datasets. Rows are append-only:
// a run is created as running and mutated exactly once to a terminal status.
type SyncRun struct {
	ID               int64      `json:"id"`
	SyncType         string     `json:"syncType"`
	Status           string     `json:"status"`
	TriggeredBy      string     `json:"triggeredBy"`
	RecordsProcessed int        `json:"recordsProcessed"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	DurationMs       int64      `json:"durationMs"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// SyncResult is the outcome of a full sync pass.
type SyncResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// Manual refresh admission outcomes.
const (
	RefreshScheduled = "scheduled"
	RefreshBuffered  = "buffered"
	RefreshRejected  = "rejected"
)

// RefreshDecision is the structured admission result for a manual refresh
// request. It is a value, never an error: rejection is control flow.
type RefreshDecision struct {
	Status        string     `json:"status"`
	Message       string     `json:"message"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
}

// ManualRefreshRequest is a deferred refresh created when a caller's immediate
// quota is exhausted. At most one un-executed request exists per source IP.
type ManualRefreshRequest struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"requestId"`
	SourceIP         string    `json:"sourceIp"`
	UserID           string    `json:"userId,omitempty"`
	RequestTime      time.Time `json:"requestTime"`
	ScheduledFor     time.Time `json:"scheduledFor"`
	Executed         bool      `json:"executed"`
	NotificationSent bool      `json:"notificationSent"`
}

// RateLimitWindow counts requests per source IP per window-aligned bucket.
// Unique per (hour window, source IP).
type RateLimitWindow struct {
	HourWindow      time.Time `json:"hourWindow"`
	SourceIP        string    `json:"sourceIp"`
	RequestCount    int       `json:"requestCount"`
	LastRequestTime time.Time `json:"lastRequestTime"`
}
