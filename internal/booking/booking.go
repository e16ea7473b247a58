// Package booking provides the search and booking collaborators used by the
// booking orchestrator: a mock provider, an HTTP flight provider, and a Redis
// cache placed in front of either.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// FlightService searches and books flights.
type FlightService interface {
	Search(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error)
	Confirm(ctx context.Context, option models.BookingOption) (models.Confirmation, error)
}

// CarService searches rental cars. Car bookings complete with the search result.
type CarService interface {
	SearchCars(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error)
}

// Provider names.
const (
	ProviderMock = "mock"
	ProviderHTTP = "http"
)

const (
	DefaultCacheTTL     = 60 * time.Second
	DefaultHTTPTimeout  = 15 * time.Second
	DefaultRatePerSec   = 5
	DefaultRateBurst    = 10
	DefaultRedisTimeout = 5 * time.Second
)

// Opts holds configuration for the booking providers.
type Opts struct {
	FlightProvider string
	CarProvider    string
	BaseURL        string
	APIKey         string
	HTTPTimeout    time.Duration
	RatePerSec     float64
	RateBurst      int
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheTTL       time.Duration
}

// Option defines a configuration option for the booking providers.
type Option func(*Opts)

// WithFlightProvider selects the flight provider ("mock" or "http").
func WithFlightProvider(name string) Option {
	return func(o *Opts) {
		o.FlightProvider = name
	}
}

// WithCarProvider selects the car rental provider. Only "mock" is built in.
func WithCarProvider(name string) Option {
	return func(o *Opts) {
		o.CarProvider = name
	}
}

// WithHTTPEndpoint configures the HTTP flight provider.
func WithHTTPEndpoint(baseURL, apiKey string) Option {
	return func(o *Opts) {
		o.BaseURL = baseURL
		o.APIKey = apiKey
	}
}

// WithHTTPTimeout sets the per-request timeout of the HTTP provider.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.HTTPTimeout = d
	}
}

// WithRateLimit sets the outbound request rate of the HTTP provider.
func WithRateLimit(perSec float64, burst int) Option {
	return func(o *Opts) {
		o.RatePerSec = perSec
		o.RateBurst = burst
	}
}

// WithRedisCache enables the Redis search cache.
func WithRedisCache(addr, password string, db int) Option {
	return func(o *Opts) {
		o.RedisAddr = addr
		o.RedisPassword = password
		o.RedisDB = db
	}
}

// WithCacheTTL sets how long cached search results live.
func WithCacheTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.CacheTTL = d
	}
}

// Services bundles the configured collaborators.
type Services struct {
	Flights FlightService
	Cars    CarService
	closers []func() error
}

// Close releases the Redis connection, if any.
func (s *Services) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServices builds the flight and car services from options. Unknown provider
// names are an error; an unreachable Redis only disables caching.
func NewServices(opts ...Option) (*Services, error) {
	cfg := Opts{
		FlightProvider: ProviderMock,
		CarProvider:    ProviderMock,
		HTTPTimeout:    DefaultHTTPTimeout,
		RatePerSec:     DefaultRatePerSec,
		RateBurst:      DefaultRateBurst,
		CacheTTL:       DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("booking.NewServices", "flightProvider", cfg.FlightProvider, "carProvider", cfg.CarProvider, "redis", cfg.RedisAddr != "")

	svc := &Services{}
	switch cfg.FlightProvider {
	case "", ProviderMock:
		svc.Flights = NewMockFlightClient()
	case ProviderHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http flight provider requires a base URL: %w", models.ErrProviderNotFound)
		}
		svc.Flights = NewHTTPFlightClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout, cfg.RatePerSec, cfg.RateBurst)
	default:
		return nil, fmt.Errorf("flight provider %q: %w", cfg.FlightProvider, models.ErrProviderNotFound)
	}
	switch cfg.CarProvider {
	case "", ProviderMock:
		svc.Cars = NewMockCarClient()
	default:
		return nil, fmt.Errorf("car provider %q: %w", cfg.CarProvider, models.ErrProviderNotFound)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("booking.NewServices: Redis unreachable, search caching disabled", "error", err, "addr", cfg.RedisAddr)
			client.Close()
		} else {
			slog.Info("booking.NewServices: connected to Redis search cache", "addr", cfg.RedisAddr)
			cache := NewRedisCache(client, cfg.CacheTTL)
			svc.Flights = NewCachedFlightService(svc.Flights, cache)
			svc.Cars = NewCachedCarService(svc.Cars, cache)
			svc.closers = append(svc.closers, client.Close)
		}
	}
	return svc, nil
}
