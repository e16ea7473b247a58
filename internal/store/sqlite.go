// Package store provides storage backends for TripPipe.
//
// This file implements an SQLite-backed store for preferences, the location
// catalog and the booking ledger.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/TripPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetPreference(ctx context.Context, userID, key string) (models.Preference, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, pref_key, pref_value, updated_at FROM user_preferences WHERE user_id = ? AND pref_key = ?`,
		userID, key)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetPreference not found", "userID", userID, "key", key)
		return models.Preference{}, false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPreference failed", "error", err, "userID", userID, "key", key)
		return models.Preference{}, false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	slog.Debug("SQLiteStore GetPreference found", "userID", userID, "key", key)
	return p, true, nil
}

func (s *SQLiteStore) SetPreference(ctx context.Context, userID, key, value string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if key == "" {
		return models.ErrEmptyPreference
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, pref_key, pref_value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, pref_key)
		DO UPDATE SET pref_value = excluded.pref_value, updated_at = excluded.updated_at`,
		userID, key, value, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SetPreference failed", "error", err, "userID", userID, "key", key)
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	slog.Debug("SQLiteStore SetPreference succeeded", "userID", userID, "key", key)
	return nil
}

func (s *SQLiteStore) DeletePreference(ctx context.Context, userID, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = ? AND pref_key = ?`, userID, key)
	if err != nil {
		slog.Error("SQLiteStore DeletePreference failed", "error", err, "userID", userID, "key", key)
		return false, fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	slog.Debug("SQLiteStore DeletePreference succeeded", "userID", userID, "key", key, "deleted", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) ListPreferences(ctx context.Context, userID string) ([]models.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, pref_key, pref_value, updated_at FROM user_preferences WHERE user_id = ? ORDER BY pref_key`,
		userID)
	if err != nil {
		slog.Error("SQLiteStore ListPreferences query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	prefs := []models.Preference{}
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			slog.Error("SQLiteStore ListPreferences scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preference rows: %w", err)
	}
	return prefs, nil
}

func (s *SQLiteStore) ListAirports(ctx context.Context) ([]Airport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name, a.code, a.name FROM airports a JOIN cities c ON c.id = a.city_id ORDER BY c.name, a.code`)
	if err != nil {
		slog.Error("SQLiteStore ListAirports query failed", "error", err)
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	var airports []Airport
	for rows.Next() {
		var a Airport
		if err := rows.Scan(&a.City, &a.Code, &a.Name); err != nil {
			slog.Error("SQLiteStore ListAirports scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan airport row: %w", err)
		}
		airports = append(airports, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate airport rows: %w", err)
	}
	slog.Debug("SQLiteStore ListAirports succeeded", "count", len(airports))
	return airports, nil
}

func (s *SQLiteStore) SaveBooking(ctx context.Context, rec models.BookingRecord) error {
	optionJSON, requestJSON, err := marshalBooking(rec)
	if err != nil {
		slog.Error("SQLiteStore SaveBooking marshal failed", "error", err, "id", rec.ID)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, session_id, flow, reference, option_json, request_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SessionID, string(rec.Flow), rec.Reference, optionJSON, requestJSON, rec.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveBooking failed", "error", err, "id", rec.ID, "userID", rec.UserID)
		return fmt.Errorf("failed to save booking %s: %w", rec.ID, err)
	}
	slog.Debug("SQLiteStore SaveBooking succeeded", "id", rec.ID, "userID", rec.UserID, "reference", rec.Reference)
	return nil
}

func (s *SQLiteStore) ListBookings(ctx context.Context, userID string) ([]models.BookingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, flow, reference, option_json, request_json, created_at
		FROM bookings WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListBookings query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []models.BookingRecord
	for rows.Next() {
		rec, err := scanBooking(rows)
		if err != nil {
			slog.Error("SQLiteStore ListBookings scan failed", "error", err)
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	slog.Debug("SQLiteStore ListBookings succeeded", "userID", userID, "count", len(out))
	return out, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
