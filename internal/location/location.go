// Package location resolves free-text place names to canonical airport codes.
//
// Resolution has four outcomes: an exact code, several candidate codes, a single
// fuzzy suggestion for a probable typo, or no match. The catalog comes from the
// store and is cached in memory.
package location

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
	"github.com/BTreeMap/TripPipe/internal/store"
)

// Kind is the outcome of a resolution.
type Kind string

const (
	KindExact      Kind = "exact"
	KindAmbiguous  Kind = "ambiguous"
	KindSuggestion Kind = "suggestion"
	KindNoMatch    Kind = "no_match"
)

// Resolution is the result of resolving one piece of text.
type Resolution struct {
	Kind Kind `json:"kind"`
	// CityName is the catalog spelling of the matched city (exact and ambiguous).
	CityName   string            `json:"city_name,omitempty"`
	Candidates []models.Location `json:"candidates,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// Exact returns the single resolved location. Only meaningful for KindExact.
func (r Resolution) Exact() models.Location {
	if len(r.Candidates) == 0 {
		return models.Location{Name: r.CityName}
	}
	return r.Candidates[0]
}

// Resolver is the location resolution collaborator.
type Resolver interface {
	Resolve(ctx context.Context, text string) (Resolution, error)
}

const (
	// DefaultSuggestionThreshold is the minimum fuzzy score (0-100) for a suggestion.
	DefaultSuggestionThreshold = 80
	DefaultCacheSize           = 512
	DefaultCatalogTTL          = 10 * time.Minute
)

// Opts holds configuration for a CatalogResolver.
type Opts struct {
	Threshold  int
	CacheSize  int
	CatalogTTL time.Duration
	Now        func() time.Time
}

// Option configures a CatalogResolver.
type Option func(*Opts)

// WithSuggestionThreshold sets the minimum fuzzy score for a typo suggestion.
func WithSuggestionThreshold(score int) Option {
	return func(o *Opts) {
		o.Threshold = score
	}
}

// WithCacheSize sets how many resolutions are memoized.
func WithCacheSize(n int) Option {
	return func(o *Opts) {
		o.CacheSize = n
	}
}

// WithCatalogTTL sets how long the catalog is used before it is reloaded.
func WithCatalogTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.CatalogTTL = d
	}
}

// WithClock overrides the clock used for catalog expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// CatalogResolver resolves text against the store's city and airport catalog.
type CatalogResolver struct {
	catalog store.LocationCatalog
	opts    Opts
	cache   *lru.Cache[string, Resolution]
	group   singleflight.Group

	mu       sync.RWMutex
	index    *catalogIndex
	loadedAt time.Time
}

type catalogIndex struct {
	cities   map[string][]store.Airport // folded city name
	byCode   map[string]store.Airport
	byName   map[string]store.Airport // folded airport name
	cityKeys []string
}

// NewCatalogResolver creates a resolver over the given catalog.
func NewCatalogResolver(catalog store.LocationCatalog, opts ...Option) (*CatalogResolver, error) {
	cfg := Opts{
		Threshold:  DefaultSuggestionThreshold,
		CacheSize:  DefaultCacheSize,
		CatalogTTL: DefaultCatalogTTL,
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[string, Resolution](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution cache: %w", err)
	}
	slog.Debug("NewCatalogResolver", "threshold", cfg.Threshold, "cacheSize", cfg.CacheSize, "catalogTTL", cfg.CatalogTTL)
	return &CatalogResolver{catalog: catalog, opts: cfg, cache: cache}, nil
}

// Resolve implements Resolver.
func (r *CatalogResolver) Resolve(ctx context.Context, text string) (Resolution, error) {
	key := normalize.FoldText(text)
	if key == "" {
		return Resolution{Kind: KindNoMatch}, nil
	}

	idx, err := r.loadIndex(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if res, ok := r.cache.Get(key); ok {
		slog.Debug("CatalogResolver.Resolve: cache hit", "text", text, "kind", res.Kind)
		return res, nil
	}

	res := idx.resolve(strings.TrimSpace(text), key, r.opts.Threshold)
	r.cache.Add(key, res)
	slog.Debug("CatalogResolver.Resolve", "text", text, "kind", res.Kind, "candidates", len(res.Candidates), "suggestion", res.Suggestion)
	return res, nil
}

// Invalidate drops the cached catalog and resolutions.
func (r *CatalogResolver) Invalidate() {
	r.mu.Lock()
	r.index = nil
	r.mu.Unlock()
	r.cache.Purge()
}

func (r *CatalogResolver) loadIndex(ctx context.Context) (*catalogIndex, error) {
	r.mu.RLock()
	idx, loadedAt := r.index, r.loadedAt
	r.mu.RUnlock()
	if idx != nil && r.opts.Now().Sub(loadedAt) < r.opts.CatalogTTL {
		return idx, nil
	}

	// Concurrent turns share one catalog query.
	v, err, shared := r.group.Do("catalog", func() (interface{}, error) {
		airports, err := r.catalog.ListAirports(ctx)
		if err != nil {
			return nil, err
		}
		built := buildIndex(airports)
		r.mu.Lock()
		r.index = built
		r.loadedAt = r.opts.Now()
		r.mu.Unlock()
		r.cache.Purge()
		return built, nil
	})
	if err != nil {
		slog.Error("CatalogResolver.loadIndex: failed to load catalog", "error", err)
		return nil, fmt.Errorf("failed to load location catalog: %w", err)
	}
	slog.Debug("CatalogResolver.loadIndex: catalog loaded", "shared", shared)
	return v.(*catalogIndex), nil
}

func buildIndex(airports []store.Airport) *catalogIndex {
	idx := &catalogIndex{
		cities: make(map[string][]store.Airport),
		byCode: make(map[string]store.Airport),
		byName: make(map[string]store.Airport),
	}
	for _, a := range airports {
		cityKey := normalize.FoldText(a.City)
		if _, ok := idx.cities[cityKey]; !ok {
			idx.cityKeys = append(idx.cityKeys, cityKey)
		}
		idx.cities[cityKey] = append(idx.cities[cityKey], a)
		idx.byCode[strings.ToUpper(a.Code)] = a
		if a.Name != "" {
			idx.byName[normalize.FoldText(a.Name)] = a
		}
	}
	sort.Strings(idx.cityKeys)
	return idx
}

func toLocation(a store.Airport) models.Location {
	return models.Location{Name: a.City, Code: a.Code}
}

func (idx *catalogIndex) resolve(raw, key string, threshold int) Resolution {
	if a, ok := idx.byCode[strings.ToUpper(raw)]; ok && len(raw) == 3 {
		return Resolution{Kind: KindExact, CityName: a.City, Candidates: []models.Location{toLocation(a)}}
	}
	if airports, ok := idx.cities[key]; ok {
		res := Resolution{CityName: airports[0].City}
		for _, a := range airports {
			res.Candidates = append(res.Candidates, toLocation(a))
		}
		if len(airports) == 1 {
			res.Kind = KindExact
		} else {
			res.Kind = KindAmbiguous
		}
		return res
	}
	if a, ok := idx.byName[key]; ok {
		return Resolution{Kind: KindExact, CityName: a.City, Candidates: []models.Location{toLocation(a)}}
	}

	best, bestScore, tie := "", 0, false
	for _, cityKey := range idx.cityKeys {
		score := Similarity(key, cityKey)
		switch {
		case score > bestScore:
			best, bestScore, tie = cityKey, score, false
		case score == bestScore:
			tie = true
		}
	}
	if best != "" && bestScore > threshold && !tie {
		return Resolution{Kind: KindSuggestion, Suggestion: idx.cities[best][0].City}
	}
	return Resolution{Kind: KindNoMatch}
}

// Similarity scores two folded strings from 0 to 100 by edit distance.
func Similarity(a, b string) int {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 - (100*dist+longest-1)/longest
}
