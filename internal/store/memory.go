package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// InMemoryStore keeps everything in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu          sync.RWMutex
	preferences map[string]map[string]models.Preference
	airports    []Airport
	bookings    []models.BookingRecord
	dedup       map[string]*DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a store seeded with DefaultAirports.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithAirports(DefaultAirports)
}

// NewInMemoryStoreWithAirports creates a store with a custom catalog.
func NewInMemoryStoreWithAirports(airports []Airport) *InMemoryStore {
	return &InMemoryStore{
		preferences: make(map[string]map[string]models.Preference),
		airports:    append([]Airport(nil), airports...),
		dedup:       make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) GetPreference(ctx context.Context, userID, key string) (models.Preference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.preferences[userID][key]
	slog.Debug("InMemoryStore.GetPreference", "userID", userID, "key", key, "found", ok)
	return p, ok, nil
}

func (s *InMemoryStore) SetPreference(ctx context.Context, userID, key, value string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if key == "" {
		return models.ErrEmptyPreference
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preferences[userID] == nil {
		s.preferences[userID] = make(map[string]models.Preference)
	}
	s.preferences[userID][key] = models.Preference{UserID: userID, Key: key, Value: value, UpdatedAt: time.Now()}
	slog.Debug("InMemoryStore.SetPreference", "userID", userID, "key", key)
	return nil
}

func (s *InMemoryStore) DeletePreference(ctx context.Context, userID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.preferences[userID][key]
	if ok {
		delete(s.preferences[userID], key)
	}
	slog.Debug("InMemoryStore.DeletePreference", "userID", userID, "key", key, "deleted", ok)
	return ok, nil
}

func (s *InMemoryStore) ListPreferences(ctx context.Context, userID string) ([]models.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs := make([]models.Preference, 0, len(s.preferences[userID]))
	for _, p := range s.preferences[userID] {
		prefs = append(prefs, p)
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Key < prefs[j].Key })
	return prefs, nil
}

func (s *InMemoryStore) ListAirports(ctx context.Context) ([]Airport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Airport(nil), s.airports...), nil
}

func (s *InMemoryStore) SaveBooking(ctx context.Context, rec models.BookingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = append(s.bookings, rec)
	slog.Debug("InMemoryStore.SaveBooking", "id", rec.ID, "userID", rec.UserID, "flow", rec.Flow)
	return nil
}

func (s *InMemoryStore) ListBookings(ctx context.Context, userID string) ([]models.BookingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BookingRecord
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemoryStore) IsDuplicate(turnID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[turnID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(turnID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[turnID]; ok {
		return false, nil
	}
	s.dedup[turnID] = &DedupRecord{TurnID: turnID, SessionID: sessionID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[turnID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) PruneDedup(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.dedup {
		if rec.ReceivedAt.Before(before) {
			delete(s.dedup, id)
			n++
		}
	}
	slog.Debug("InMemoryStore.PruneDedup", "before", before, "removed", n)
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
