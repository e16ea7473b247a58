package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// marshalBooking encodes the JSON columns of a booking record.
func marshalBooking(rec models.BookingRecord) (optionJSON, requestJSON string, err error) {
	opt, err := json.Marshal(rec.Option)
	if err != nil {
		return "", "", fmt.Errorf("marshal booking option failed: %w", err)
	}
	req, err := json.Marshal(rec.Request)
	if err != nil {
		return "", "", fmt.Errorf("marshal booking request failed: %w", err)
	}
	return string(opt), string(req), nil
}

// scanBooking scans a BookingRecord selected as
// id, user_id, session_id, flow, reference, option_json, request_json, created_at.
func scanBooking(row rowScanner) (models.BookingRecord, error) {
	var rec models.BookingRecord
	var flow, optionJSON, requestJSON string
	var createdAt time.Time
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &flow, &rec.Reference, &optionJSON, &requestJSON, &createdAt); err != nil {
		return rec, fmt.Errorf("scan booking failed: %w", err)
	}
	rec.Flow = models.FlowKind(flow)
	rec.CreatedAt = createdAt
	if err := json.Unmarshal([]byte(optionJSON), &rec.Option); err != nil {
		return rec, fmt.Errorf("unmarshal booking option failed: %w", err)
	}
	if err := json.Unmarshal([]byte(requestJSON), &rec.Request); err != nil {
		return rec, fmt.Errorf("unmarshal booking request failed: %w", err)
	}
	return rec, nil
}

// scanPreference scans a Preference selected as user_id, pref_key, pref_value, updated_at.
func scanPreference(row rowScanner) (models.Preference, error) {
	var p models.Preference
	err := row.Scan(&p.UserID, &p.Key, &p.Value, &p.UpdatedAt)
	return p, err
}
