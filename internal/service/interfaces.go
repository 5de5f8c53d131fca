package service

import "context"

// DataAdapter is implemented by each upstream source adapter. SyncData
// fetches, normalizes and snapshot-replaces one dataset; failures surface as
// a single error and never corrupt sibling datasets.
type DataAdapter interface {
	// Name identifies the adapter in sync error messages and logs.
	Name() string

	// SyncData refreshes the adapter's dataset from its upstream source.
	SyncData(ctx context.Context) error
}

// SyncNotifier receives sync lifecycle events for push distribution.
// Implementations must not block.
type SyncNotifier interface {
	// NotifySyncStatus reports a manual refresh admission decision.
	NotifySyncStatus(status, message string)

	// NotifySyncCompleted reports a finished full sync pass.
	NotifySyncCompleted(success bool, durationMs int64)
}

// SnapshotInvalidator drops any cached dashboard snapshot so the next read
// reflects freshly synced data.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}
