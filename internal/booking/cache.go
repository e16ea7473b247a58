package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// Cache stores search results. Failures are logged and treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.BookingOption, bool)
	Set(ctx context.Context, key string, options []models.BookingOption)
}

// RedisCache is a Cache backed by Redis with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.BookingOption, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		slog.Debug("RedisCache.Get: miss", "key", key)
		return nil, false
	}
	if err != nil {
		slog.Error("RedisCache.Get: failed, skipping cache", "error", err, "key", key)
		return nil, false
	}
	var options []models.BookingOption
	if err := json.Unmarshal([]byte(val), &options); err != nil {
		slog.Error("RedisCache.Get: corrupt entry, skipping cache", "error", err, "key", key)
		return nil, false
	}
	slog.Debug("RedisCache.Get: hit", "key", key, "count", len(options))
	return options, true
}

func (c *RedisCache) Set(ctx context.Context, key string, options []models.BookingOption) {
	data, err := json.Marshal(options)
	if err != nil {
		slog.Error("RedisCache.Set: marshal failed", "error", err, "key", key)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Error("RedisCache.Set: failed, value not cached", "error", err, "key", key)
	}
}

// CacheKey builds the cache key for a request from its sorted parameters.
func CacheKey(prefix string, req models.BookingRequest) string {
	return "trippipe:" + prefix + ":" + SearchParams(req).Encode()
}

// CachedFlightService serves repeated searches from a cache. Confirmations are
// never cached.
type CachedFlightService struct {
	next  FlightService
	cache Cache
}

// NewCachedFlightService wraps next with cache.
func NewCachedFlightService(next FlightService, cache Cache) *CachedFlightService {
	return &CachedFlightService{next: next, cache: cache}
}

func (s *CachedFlightService) Search(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	key := CacheKey("flights", req)
	if options, ok := s.cache.Get(ctx, key); ok {
		return options, nil
	}
	options, err := s.next.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		s.cache.Set(ctx, key, options)
	}
	return options, nil
}

func (s *CachedFlightService) Confirm(ctx context.Context, option models.BookingOption) (models.Confirmation, error) {
	return s.next.Confirm(ctx, option)
}

// CachedCarService serves repeated car searches from a cache.
type CachedCarService struct {
	next  CarService
	cache Cache
}

// NewCachedCarService wraps next with cache.
func NewCachedCarService(next CarService, cache Cache) *CachedCarService {
	return &CachedCarService{next: next, cache: cache}
}

func (s *CachedCarService) SearchCars(ctx context.Context, req models.BookingRequest) ([]models.BookingOption, error) {
	key := CacheKey("cars", req)
	if options, ok := s.cache.Get(ctx, key); ok {
		return options, nil
	}
	options, err := s.next.SearchCars(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		s.cache.Set(ctx, key, options)
	}
	return options, nil
}
