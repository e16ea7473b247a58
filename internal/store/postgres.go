// Package store provides storage backends for TripPipe.
//
// This file implements a PostgreSQL-backed store with the same tables as the
// SQLite store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/TripPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetPreference(ctx context.Context, userID, key string) (models.Preference, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, pref_key, pref_value, updated_at FROM user_preferences WHERE user_id = $1 AND pref_key = $2`,
		userID, key)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetPreference not found", "userID", userID, "key", key)
		return models.Preference{}, false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPreference failed", "error", err, "userID", userID, "key", key)
		return models.Preference{}, false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	slog.Debug("PostgresStore GetPreference found", "userID", userID, "key", key)
	return p, true, nil
}

func (s *PostgresStore) SetPreference(ctx context.Context, userID, key, value string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if key == "" {
		return models.ErrEmptyPreference
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, pref_key, pref_value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, pref_key)
		DO UPDATE SET
			pref_value = EXCLUDED.pref_value,
			updated_at = EXCLUDED.updated_at`,
		userID, key, value, time.Now())
	if err != nil {
		slog.Error("PostgresStore SetPreference failed", "error", err, "userID", userID, "key", key)
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	slog.Debug("PostgresStore SetPreference succeeded", "userID", userID, "key", key)
	return nil
}

func (s *PostgresStore) DeletePreference(ctx context.Context, userID, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = $1 AND pref_key = $2`, userID, key)
	if err != nil {
		slog.Error("PostgresStore DeletePreference failed", "error", err, "userID", userID, "key", key)
		return false, fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	slog.Debug("PostgresStore DeletePreference succeeded", "userID", userID, "key", key, "deleted", n > 0)
	return n > 0, nil
}

func (s *PostgresStore) ListPreferences(ctx context.Context, userID string) ([]models.Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, pref_key, pref_value, updated_at FROM user_preferences WHERE user_id = $1 ORDER BY pref_key`,
		userID)
	if err != nil {
		slog.Error("PostgresStore ListPreferences query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	prefs := []models.Preference{}
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			slog.Error("PostgresStore ListPreferences scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preference rows: %w", err)
	}
	return prefs, nil
}

func (s *PostgresStore) ListAirports(ctx context.Context) ([]Airport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name, a.code, a.name FROM airports a JOIN cities c ON c.id = a.city_id ORDER BY c.name, a.code`)
	if err != nil {
		slog.Error("PostgresStore ListAirports query failed", "error", err)
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	var airports []Airport
	for rows.Next() {
		var a Airport
		if err := rows.Scan(&a.City, &a.Code, &a.Name); err != nil {
			slog.Error("PostgresStore ListAirports scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan airport row: %w", err)
		}
		airports = append(airports, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate airport rows: %w", err)
	}
	slog.Debug("PostgresStore ListAirports succeeded", "count", len(airports))
	return airports, nil
}

func (s *PostgresStore) SaveBooking(ctx context.Context, rec models.BookingRecord) error {
	optionJSON, requestJSON, err := marshalBooking(rec)
	if err != nil {
		slog.Error("PostgresStore SaveBooking marshal failed", "error", err, "id", rec.ID)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, session_id, flow, reference, option_json, request_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.SessionID, string(rec.Flow), rec.Reference, optionJSON, requestJSON, rec.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveBooking failed", "error", err, "id", rec.ID, "userID", rec.UserID)
		return fmt.Errorf("failed to save booking %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore SaveBooking succeeded", "id", rec.ID, "userID", rec.UserID, "reference", rec.Reference)
	return nil
}

func (s *PostgresStore) ListBookings(ctx context.Context, userID string) ([]models.BookingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, flow, reference, option_json, request_json, created_at
		FROM bookings WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore ListBookings query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var out []models.BookingRecord
	for rows.Next() {
		rec, err := scanBooking(rows)
		if err != nil {
			slog.Error("PostgresStore ListBookings scan failed", "error", err)
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	slog.Debug("PostgresStore ListBookings succeeded", "userID", userID, "count", len(out))
	return out, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
