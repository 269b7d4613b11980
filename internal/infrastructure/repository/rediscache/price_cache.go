package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mrops-br/price-cache-api/internal/domain"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scanBatch = 100

// PriceCache is a Redis implementation of domain.PriceCache. Each product
// is stored as JSON under prefix+title with a native key expiry.
type PriceCache struct {
	client *redis.Client
	prefix string
	tracer trace.Tracer
	logger *slog.Logger
}

// NewClient opens the shared Redis connection pool and checks it is
// reachable
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewPriceCache creates a price cache on top of an existing client
func NewPriceCache(client *redis.Client, prefix string, tracer trace.Tracer, logger *slog.Logger) *PriceCache {
	return &PriceCache{
		client: client,
		prefix: prefix,
		tracer: tracer,
		logger: logger,
	}
}

func (c *PriceCache) key(title string) string {
	return c.prefix + title
}

// Get retrieves a live entry by title
func (c *PriceCache) Get(ctx context.Context, title string) (*domain.Product, bool, error) {
	ctx, span := c.tracer.Start(ctx, "RedisPriceCache.Get")
	defer span.End()

	span.SetAttributes(attribute.String("product.title", title))

	raw, err := c.client.Get(ctx, c.key(title)).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, c.fail(ctx, span, "cache get", err)
	}

	product, ok := c.decode(ctx, title, raw)
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	span.SetStatus(codes.Ok, "Entry read")
	return product, ok, nil
}

// GetMany retrieves the live entries among titles with a single MGET
func (c *PriceCache) GetMany(ctx context.Context, titles []string) (map[string]*domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "RedisPriceCache.GetMany")
	defer span.End()

	span.SetAttributes(attribute.Int("cache.requested", len(titles)))

	found := make(map[string]*domain.Product, len(titles))
	if len(titles) == 0 {
		return found, nil
	}

	keys := make([]string, len(titles))
	for i, title := range titles {
		keys[i] = c.key(title)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, c.fail(ctx, span, "cache mget", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if product, ok := c.decode(ctx, titles[i], raw); ok {
			found[titles[i]] = product
		}
	}

	span.SetAttributes(attribute.Int("cache.hits", len(found)))
	span.SetStatus(codes.Ok, "Entries read")
	return found, nil
}

// Set stores product under its title with a native expiry of ttl
func (c *PriceCache) Set(ctx context.Context, product *domain.Product, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "RedisPriceCache.Set")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.title", product.Title),
		attribute.Float64("product.price", product.Price),
	)

	data, err := json.Marshal(product)
	if err != nil {
		return c.fail(ctx, span, "cache encode", err)
	}
	if err := c.client.Set(ctx, c.key(product.Title), data, ttl).Err(); err != nil {
		return c.fail(ctx, span, "cache set", err)
	}

	span.SetStatus(codes.Ok, "Entry stored")
	return nil
}

// Snapshot lists every live entry under the prefix
func (c *PriceCache) Snapshot(ctx context.Context) (map[string]*domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "RedisPriceCache.Snapshot")
	defer span.End()

	var titles []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		titles = append(titles, strings.TrimPrefix(iter.Val(), c.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, c.fail(ctx, span, "cache scan", err)
	}

	span.SetAttributes(attribute.Int("cache.keys", len(titles)))
	return c.GetMany(ctx, titles)
}

// Close releases the underlying connection pool
func (c *PriceCache) Close() error {
	return c.client.Close()
}

// decode treats a value that is not a product payload as a cache miss
func (c *PriceCache) decode(ctx context.Context, title, raw string) (*domain.Product, bool) {
	var product domain.Product
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		c.logger.WarnContext(ctx, "Ignoring undecodable cache entry",
			slog.String("product_title", title),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &product, true
}

func (c *PriceCache) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	c.logger.ErrorContext(ctx, "Redis operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return domain.NewStoreIOError(op, err)
}
