// Package store provides storage backends for TripPipe.
//
// It holds durable user preferences, the city and airport catalog, the booking
// ledger and turn deduplication records. Conversation state itself is kept in
// memory by the flow package. Backends: in-memory, SQLite and PostgreSQL.
package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// Opts holds configuration options for the store backends.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for the store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and keyword DSNs, "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Airport is one row of the location catalog.
type Airport struct {
	City string `json:"city"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// PreferenceStore is a keyed store of durable user preferences.
type PreferenceStore interface {
	// GetPreference returns the preference and true, or false when it is absent.
	GetPreference(ctx context.Context, userID, key string) (models.Preference, bool, error)
	SetPreference(ctx context.Context, userID, key, value string) error
	// DeletePreference reports whether a preference was removed.
	DeletePreference(ctx context.Context, userID, key string) (bool, error)
	ListPreferences(ctx context.Context, userID string) ([]models.Preference, error)
}

// LocationCatalog lists the known cities and their airports.
type LocationCatalog interface {
	ListAirports(ctx context.Context) ([]Airport, error)
}

// BookingLedger records confirmed bookings.
type BookingLedger interface {
	SaveBooking(ctx context.Context, rec models.BookingRecord) error
	ListBookings(ctx context.Context, userID string) ([]models.BookingRecord, error)
}

// Store is implemented by every backend.
type Store interface {
	PreferenceStore
	LocationCatalog
	BookingLedger
	DedupRepo
	Close() error
}

// Open picks a backend from the options: PostgreSQL or SQLite when a DSN is set,
// in-memory otherwise.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("store.Open: using PostgreSQL store")
		return NewPostgresStore(opts...)
	}
	slog.Debug("store.Open: using SQLite store", "path", cfg.DSN)
	return NewSQLiteStore(opts...)
}

// DefaultAirports is the catalog the in-memory store starts with. The SQL
// migrations seed the same rows.
var DefaultAirports = []Airport{
	{City: "London", Code: "LHR", Name: "Heathrow"},
	{City: "London", Code: "LGW", Name: "Gatwick"},
	{City: "Paris", Code: "CDG", Name: "Charles de Gaulle"},
	{City: "New York", Code: "JFK", Name: "John F. Kennedy"},
	{City: "New York", Code: "LGA", Name: "LaGuardia"},
	{City: "Tokyo", Code: "HND", Name: "Haneda"},
	{City: "Berlin", Code: "BER", Name: "Berlin Brandenburg"},
	{City: "San Francisco", Code: "SFO", Name: "San Francisco International"},
	{City: "Rome", Code: "FCO", Name: "Fiumicino"},
}
