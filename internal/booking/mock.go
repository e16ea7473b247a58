package booking

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// MockFlightClient returns a fixed set of flights and issues ULID references.
type MockFlightClient struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewMockFlightClient creates a mock flight provider.
func NewMockFlightClient() *MockFlightClient {
	return &MockFlightClient{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

func (m *MockFlightClient) Search(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Warn("MockFlightClient.Search: no real provider configured, returning mock flights",
		"tripType", req.TripType, "passengers", req.Passengers, "travelClass", req.TravelClass, "seat", req.SeatPreference)
	return []models.BookingOption{
		{ID: "AA123", Provider: "AwesomeAirlines", Time: "08:00", Price: 350, Currency: "USD"},
		{ID: "FH456", Provider: "FlyHigh", Time: "11:30", Price: 320, Currency: "USD"},
		{ID: "SJ789", Provider: "SkyJet", Time: "15:00", Price: 380, Currency: "USD"},
	}, nil
}

func (m *MockFlightClient) Confirm(ctx context.Context, option models.BookingOption) (models.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return models.Confirmation{}, err
	}
	if option.ID == "" {
		return models.Confirmation{}, fmt.Errorf("cannot confirm an option without an id")
	}
	now := m.now()
	m.mu.Lock()
	ref, err := ulid.New(ulid.Timestamp(now), m.entropy)
	m.mu.Unlock()
	if err != nil {
		return models.Confirmation{}, fmt.Errorf("failed to generate booking reference: %w", err)
	}
	slog.Info("MockFlightClient.Confirm: booked", "optionID", option.ID, "reference", ref.String())
	return models.Confirmation{Reference: ref.String(), OptionID: option.ID, Status: "confirmed", ConfirmedAt: now}, nil
}

// MockCarClient returns a fixed set of rental cars.
type MockCarClient struct{}

// NewMockCarClient creates a mock car provider.
func NewMockCarClient() *MockCarClient {
	return &MockCarClient{}
}

func (m *MockCarClient) SearchCars(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Warn("MockCarClient.SearchCars: no real provider configured, returning mock cars",
		"pickup", req.PickupLocation, "category", req.CarCategory)
	return []models.BookingOption{
		{ID: "HERTZ001", Provider: "Hertz", Description: "Toyota Camry", Price: 55, Currency: "USD"},
		{ID: "AVIS002", Provider: "Avis", Description: "Ford Explorer", Price: 75, Currency: "USD"},
		{ID: "ENT003", Provider: "Enterprise", Description: "Nissan Versa", Price: 48, Currency: "USD"},
	}, nil
}
