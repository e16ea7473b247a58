package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) IsDuplicate(turnID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT turn_id FROM turn_dedup WHERE turn_id = ?`, turnID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordInbound(turnID, sessionID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO turn_dedup (turn_id, session_id, received_at) VALUES (?, ?, ?)`,
		turnID, sessionID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	slog.Debug("SQLiteStore.RecordInbound", "turnID", turnID, "sessionID", sessionID, "new", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(turnID string) error {
	_, err := s.db.Exec(
		`UPDATE turn_dedup SET processed_at = ? WHERE turn_id = ?`,
		time.Now(), turnID,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PruneDedup(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM turn_dedup WHERE received_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("prune dedup failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dedup rows affected check failed: %w", err)
	}
	slog.Debug("SQLiteStore.PruneDedup", "before", before, "removed", n)
	return n, nil
}
