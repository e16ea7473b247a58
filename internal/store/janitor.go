package store

import (
	"log/slog"
	"time"
)

const (
	// DefaultJanitorSchedule is the cron spec the janitor runs on.
	DefaultJanitorSchedule = "@every 10m"
	// DefaultDedupRetention is how long turn ids are remembered.
	DefaultDedupRetention = 24 * time.Hour
)

// Janitor removes expired turn dedup records so the table does not grow
// without bound. It is run by the scheduler.
type Janitor struct {
	repo      DedupRepo
	retention time.Duration
	now       func() time.Time
}

// NewJanitor creates a Janitor. A non-positive retention falls back to the default.
func NewJanitor(repo DedupRepo, retention time.Duration) *Janitor {
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	return &Janitor{repo: repo, retention: retention, now: time.Now}
}

// Prune deletes records older than the retention and returns how many went.
func (j *Janitor) Prune() int64 {
	cutoff := j.now().Add(-j.retention)
	n, err := j.repo.PruneDedup(cutoff)
	if err != nil {
		slog.Error("Janitor.Prune: prune failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("Janitor.Prune: removed expired turn ids", "count", n)
	}
	return n
}
