// Package store provides the DedupRepo interface for inbound turn deduplication.
package store

import (
	"time"
)

// DedupRecord represents an inbound turn deduplication record.
type DedupRecord struct {
	TurnID      string     `json:"turn_id"`
	SessionID   string     `json:"session_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound turn deduplication. Clients that
// retry a request with the same turn id must not advance the dialogue twice.
type DedupRepo interface {
	// IsDuplicate checks if a turn ID has already been seen.
	IsDuplicate(turnID string) (bool, error)

	// RecordInbound inserts a new inbound turn record. Returns false if the
	// turn was already recorded (duplicate).
	RecordInbound(turnID, sessionID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a turn.
	MarkProcessed(turnID string) error

	// PruneDedup deletes records received before the cutoff and returns how
	// many were removed.
	PruneDedup(before time.Time) (int64, error)
}
