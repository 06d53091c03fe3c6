package model

import "time"

// SMS is a raw message as delivered to the parser.
type SMS struct {
	Sender string
	Body   string
	// Timestamp is the delivery time in epoch milliseconds.
	Timestamp int64
}

// ReceivedAt returns the delivery timestamp in UTC. Dates parsed from the body
// take the same zone, so results do not depend on the host's time zone.
func (m SMS) ReceivedAt() time.Time {
	return time.UnixMilli(m.Timestamp).UTC()
}

// SyncState tracks incremental SMS import progress.
type SyncState struct {
	LastFullSync      time.Time
	UpdatedAt         time.Time
	Status            SyncStatus
	LastSMSTimestamp  int64
	TotalTransactions int
	TotalSkipped      int
}

// SyncStatus is the outcome of the latest import run.
type SyncStatus string

// Sync statuses.
const (
	SyncStatusIdle      SyncStatus = "IDLE"
	SyncStatusRunning   SyncStatus = "RUNNING"
	SyncStatusCompleted SyncStatus = "COMPLETED"
	SyncStatusFailed    SyncStatus = "FAILED"
)
