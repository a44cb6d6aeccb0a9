// Package valuation prices item templates and values item instances.
package valuation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/graaaaa/raidlog-companion/internal/clock"
	"github.com/graaaaa/raidlog-companion/internal/items"
	"github.com/graaaaa/raidlog-companion/internal/market"
)

// DefaultCacheSize bounds the price cache.
const DefaultCacheSize = 10000

// Oracle is the price source consulted on a cache miss.
type Oracle interface {
	Offers(ctx context.Context, tpl string) ([]market.Offer, error)
	HandbookPrice(ctx context.Context, tpl string) (int64, bool, error)
}

type cacheEntry struct {
	price      int64
	computedAt time.Time
}

// Service prices templates through the oracle and caches results for at
// least the refresh interval.
type Service struct {
	oracle  Oracle
	catalog *items.Catalog
	refresh time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	size    int

	mu    sync.Mutex // guards cache and the freshness check
	cache *simplelru.LRU
	group singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithRefreshInterval sets the minimum age before a price is recomputed.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) { s.refresh = d }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCacheSize bounds the number of cached templates.
func WithCacheSize(n int) Option {
	return func(s *Service) { s.size = n }
}

// New creates a valuation service.
func New(oracle Oracle, catalog *items.Catalog, opts ...Option) *Service {
	s := &Service{
		oracle:  oracle,
		catalog: catalog,
		refresh: 5 * time.Minute,
		clock:   clock.Real,
		logger:  slog.Default(),
		size:    DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.size <= 0 {
		s.size = DefaultCacheSize
	}
	// NewLRU only fails on a non-positive size.
	s.cache, _ = simplelru.NewLRU(s.size, nil)
	return s
}

// Catalog returns the template catalog used for classification.
func (s *Service) Catalog() *items.Catalog {
	return s.catalog
}

// PriceOf returns the per-unit price of tpl. Oracle failures yield the last
// known price past its refresh interval, or 0; the log entry marks which.
func (s *Service) PriceOf(ctx context.Context, tpl string) int64 {
	now := s.clock.Now()

	s.mu.Lock()
	entry, hit := s.lookup(tpl)
	fresh := hit && now.Sub(entry.computedAt) < s.refresh
	s.mu.Unlock()
	if fresh {
		return entry.price
	}

	v, err, _ := s.group.Do(tpl, func() (any, error) {
		price, err := s.compute(ctx, tpl)
		if err != nil {
			return int64(0), err
		}
		s.mu.Lock()
		s.cache.Add(tpl, cacheEntry{price: price, computedAt: s.clock.Now()})
		s.mu.Unlock()
		return price, nil
	})
	if err != nil {
		if hit {
			s.logger.Warn("price lookup failed, serving stale price",
				"tpl", tpl, "op", "priceOf", "stale", true,
				"age", now.Sub(entry.computedAt), "price", entry.price, "error", err)
			return entry.price
		}
		s.logger.Warn("price lookup failed, no cached price",
			"tpl", tpl, "op", "priceOf", "stale", false, "price", 0, "error", err)
		return 0
	}
	return v.(int64)
}

func (s *Service) lookup(tpl string) (cacheEntry, bool) {
	v, ok := s.cache.Get(tpl)
	if !ok {
		return cacheEntry{}, false
	}
	return v.(cacheEntry), true
}

// compute averages per-unit prices over player listings, falling back to
// the handbook price and then to zero.
func (s *Service) compute(ctx context.Context, tpl string) (int64, error) {
	offers, err := s.oracle.Offers(ctx, tpl)
	if err != nil {
		return 0, err
	}

	sum := decimal.Zero
	n := 0
	for _, o := range offers {
		if o.Barter || o.SellerType == market.SellerTrader || o.Quantity <= 0 {
			continue
		}
		sum = sum.Add(decimal.NewFromInt(o.Price).Div(decimal.NewFromInt(o.Quantity)))
		n++
	}
	if n > 0 {
		return sum.Div(decimal.NewFromInt(int64(n))).Round(0).IntPart(), nil
	}

	price, ok, err := s.oracle.HandbookPrice(ctx, tpl)
	if err != nil {
		return 0, err
	}
	if ok {
		return price, nil
	}
	return 0, nil
}

// Invalidate drops the cached price of tpl.
func (s *Service) Invalidate(tpl string) {
	s.mu.Lock()
	s.cache.Remove(tpl)
	s.mu.Unlock()
}

// Purge drops every cached price.
func (s *Service) Purge() {
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
}

// CachedTemplates returns the number of cached prices.
func (s *Service) CachedTemplates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
