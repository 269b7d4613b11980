package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mrops-br/price-cache-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type entry struct {
	product   *domain.Product
	expiresAt time.Time
}

// PriceCache is an in-memory implementation of domain.PriceCache. Entries
// carry an expiry timestamp and read as absent once it has passed.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a PriceCache
type Option func(*PriceCache)

// WithClock replaces time.Now as the source of the current time
func WithClock(now func() time.Time) Option {
	return func(c *PriceCache) { c.now = now }
}

// NewPriceCache creates a new in-memory price cache
func NewPriceCache(tracer trace.Tracer, logger *slog.Logger, opts ...Option) *PriceCache {
	c := &PriceCache{
		entries: make(map[string]entry),
		now:     time.Now,
		tracer:  tracer,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a live entry by title
func (c *PriceCache) Get(ctx context.Context, title string) (*domain.Product, bool, error) {
	_, span := c.tracer.Start(ctx, "MemoryPriceCache.Get")
	defer span.End()

	span.SetAttributes(attribute.String("product.title", title))

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[title]
	if !ok || !c.now().Before(e.expiresAt) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	span.SetStatus(codes.Ok, "Entry found")
	return e.product.Clone(), true, nil
}

// GetMany retrieves the live entries among titles
func (c *PriceCache) GetMany(ctx context.Context, titles []string) (map[string]*domain.Product, error) {
	_, span := c.tracer.Start(ctx, "MemoryPriceCache.GetMany")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	found := make(map[string]*domain.Product, len(titles))
	for _, title := range titles {
		if e, ok := c.entries[title]; ok && now.Before(e.expiresAt) {
			found[title] = e.product.Clone()
		}
	}

	span.SetAttributes(
		attribute.Int("cache.requested", len(titles)),
		attribute.Int("cache.hits", len(found)),
	)
	span.SetStatus(codes.Ok, "Entries retrieved")
	return found, nil
}

// Set stores product under its title for ttl
func (c *PriceCache) Set(ctx context.Context, product *domain.Product, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "MemoryPriceCache.Set")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.title", product.Title),
		attribute.Float64("product.price", product.Price),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[product.Title] = entry{
		product:   product.Clone(),
		expiresAt: c.now().Add(ttl),
	}

	c.logger.DebugContext(ctx, "Product cached in memory",
		slog.String("product_title", product.Title),
		slog.Duration("ttl", ttl),
	)

	span.SetStatus(codes.Ok, "Entry stored")
	return nil
}

// Snapshot lists every live entry
func (c *PriceCache) Snapshot(ctx context.Context) (map[string]*domain.Product, error) {
	_, span := c.tracer.Start(ctx, "MemoryPriceCache.Snapshot")
	defer span.End()

	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	live := make(map[string]*domain.Product, len(c.entries))
	for title, e := range c.entries {
		if now.Before(e.expiresAt) {
			live[title] = e.product.Clone()
		}
	}

	span.SetAttributes(attribute.Int("cache.size", len(live)))
	span.SetStatus(codes.Ok, "Snapshot taken")
	return live, nil
}

// Sweep drops expired entries and returns how many were removed
func (c *PriceCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for title, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, title)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired entries every interval until ctx is done.
// Reads never depend on it; it only bounds memory.
func (c *PriceCache) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("Expired cache entries swept", slog.Int("count", n))
				}
			}
		}
	}()
}

// Close is a no-op; it satisfies domain.PriceCache
func (c *PriceCache) Close() error {
	return nil
}
