package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mrops-br/price-cache-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observation outcomes reported per product by RecordBatch
const (
	OutcomeAdded     = "added"
	OutcomeIncreased = "increased"
	OutcomeDecreased = "decreased"
	OutcomeUnchanged = "unchanged"
)

// BatchResult summarizes one RecordBatch call
type BatchResult struct {
	BatchID   string
	Added     int
	Increased int
	Decreased int
	Unchanged int
	Records   int
}

// PriceCacheStore decides which product observations are new and keeps the
// durable record set and the fast cache in step.
//
// RecordBatch writes through to the record set only for unseen titles and
// for price increases against the cached price. A lower price than the
// cached one is counted but never persisted. This asymmetry is long-standing
// behaviour that downstream consumers rely on.
type PriceCacheStore struct {
	records   domain.RecordRepository
	cache     domain.PriceCache
	ttl       time.Duration
	ioTimeout time.Duration
	tracer    trace.Tracer
	logger    *slog.Logger

	// mu serializes the read-merge-write of RecordBatch and guards view.
	mu     sync.Mutex
	view   map[string]*domain.Product
	loaded bool

	observations    metric.Int64Counter
	batches         metric.Int64Counter
	freshnessChecks metric.Int64Counter
	persistDuration metric.Float64Histogram
}

// NewPriceCacheStore creates a new store over the given backends
func NewPriceCacheStore(
	records domain.RecordRepository,
	cache domain.PriceCache,
	ttl time.Duration,
	ioTimeout time.Duration,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *PriceCacheStore {
	observations, _ := meter.Int64Counter(
		"products.observations",
		metric.WithDescription("Product observations processed, by outcome"),
	)

	batches, _ := meter.Int64Counter(
		"products.batches",
		metric.WithDescription("Product batches recorded, by result"),
	)

	freshnessChecks, _ := meter.Int64Counter(
		"products.freshness_checks",
		metric.WithDescription("Freshness checks against the price cache, by result"),
	)

	persistDuration, _ := meter.Float64Histogram(
		"products.persist.duration.ms",
		metric.WithDescription("Time spent writing the durable record set"),
		metric.WithUnit("ms"),
	)

	return &PriceCacheStore{
		records:         records,
		cache:           cache,
		ttl:             ttl,
		ioTimeout:       ioTimeout,
		tracer:          tracer,
		logger:          logger,
		observations:    observations,
		batches:         batches,
		freshnessChecks: freshnessChecks,
		persistDuration: persistDuration,
	}
}

// RecordBatch merges observations into the durable record set and persists
// the result in one write.
func (s *PriceCacheStore) RecordBatch(ctx context.Context, observations []*domain.Product) (*BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "PriceCacheStore.RecordBatch")
	defer span.End()

	result := &BatchResult{BatchID: uuid.NewString()}
	span.SetAttributes(
		attribute.String("batch.id", result.BatchID),
		attribute.Int("batch.size", len(observations)),
	)

	s.logger.InfoContext(ctx, "Recording product batch",
		slog.String("batch_id", result.BatchID),
		slog.Int("size", len(observations)),
	)

	titles := make([]string, 0, len(observations))
	for _, p := range observations {
		titles = append(titles, p.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.cache.GetMany(ctx, titles)
	if err != nil {
		return nil, s.batchFailed(ctx, span, "Cache lookup failed", err)
	}

	ioCtx, cancel := context.WithTimeout(ctx, s.ioTimeout)
	defer cancel()

	existing, err := s.records.Load(ioCtx)
	if err != nil {
		return nil, s.batchFailed(ctx, span, "Load failed", err)
	}

	merged := make(map[string]*domain.Product, len(existing)+len(observations))
	for title, p := range existing {
		merged[title] = p
	}

	for _, p := range observations {
		outcome := s.merge(merged, cached[p.Title], p)
		switch outcome {
		case OutcomeAdded:
			result.Added++
		case OutcomeIncreased:
			result.Increased++
		case OutcomeDecreased:
			result.Decreased++
		case OutcomeUnchanged:
			result.Unchanged++
		}
		s.observations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}

	start := time.Now()
	err = s.records.Save(ioCtx, merged)
	s.persistDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, s.batchFailed(ctx, span, "Persist failed", err)
	}

	s.view = merged
	s.loaded = true
	result.Records = len(merged)

	span.SetAttributes(
		attribute.Int("batch.added", result.Added),
		attribute.Int("batch.increased", result.Increased),
		attribute.Int("batch.decreased", result.Decreased),
		attribute.Int("batch.unchanged", result.Unchanged),
	)
	s.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "success")))

	s.logger.InfoContext(ctx, "Product batch recorded",
		slog.String("batch_id", result.BatchID),
		slog.Int("added", result.Added),
		slog.Int("increased", result.Increased),
		slog.Int("decreased", result.Decreased),
		slog.Int("unchanged", result.Unchanged),
		slog.Int("records", result.Records),
	)

	span.SetStatus(codes.Ok, "Batch recorded")
	return result, nil
}

// merge applies one observation to merged and reports what happened. A nil
// cached means the title is not in the fast cache.
func (s *PriceCacheStore) merge(merged map[string]*domain.Product, cached, p *domain.Product) string {
	switch {
	case cached == nil:
		merged[p.Title] = p.Clone()
		return OutcomeAdded
	case cached.Price == p.Price:
		return OutcomeUnchanged
	case cached.Price < p.Price:
		merged[p.Title] = p.Clone()
		return OutcomeIncreased
	default:
		return OutcomeDecreased
	}
}

func (s *PriceCacheStore) batchFailed(ctx context.Context, span trace.Span, status string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	s.logger.ErrorContext(ctx, "Failed to record product batch",
		slog.String("error", err.Error()),
	)
	s.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failure")))
	return fmt.Errorf("record batch: %w", err)
}

// CheckAndRefresh reports whether p carries a price the fast cache has not
// seen. When it does, p is cached with a fresh TTL. An entry at the same
// price is left untouched, TTL included.
func (s *PriceCacheStore) CheckAndRefresh(ctx context.Context, p *domain.Product) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "PriceCacheStore.CheckAndRefresh")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.title", p.Title),
		attribute.Float64("product.price", p.Price),
	)

	cached, ok, err := s.cache.Get(ctx, p.Title)
	if err != nil {
		return false, s.checkFailed(ctx, span, err)
	}
	if ok && cached.Price == p.Price {
		s.freshnessChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "unchanged")))
		span.SetAttributes(attribute.Bool("product.updated", false))
		span.SetStatus(codes.Ok, "Price unchanged")
		return false, nil
	}

	if err := s.cache.Set(ctx, p, s.ttl); err != nil {
		return false, s.checkFailed(ctx, span, err)
	}

	s.freshnessChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "updated")))
	s.logger.DebugContext(ctx, "Product price refreshed in cache",
		slog.String("product_title", p.Title),
		slog.Float64("price", p.Price),
		slog.Bool("was_cached", ok),
	)

	span.SetAttributes(attribute.Bool("product.updated", true))
	span.SetStatus(codes.Ok, "Price refreshed")
	return true, nil
}

func (s *PriceCacheStore) checkFailed(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "Cache unavailable")
	s.logger.ErrorContext(ctx, "Freshness check failed",
		slog.String("error", err.Error()),
	)
	s.freshnessChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failure")))
	return fmt.Errorf("check and refresh: %w", err)
}

// Records returns the durable record set sorted by title
func (s *PriceCacheStore) Records(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "PriceCacheStore.Records")
	defer span.End()

	view, err := s.currentView(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Load failed")
		return nil, err
	}

	products := sortedProducts(view)
	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Records listed")
	return products, nil
}

// Record returns one durable record by title
func (s *PriceCacheStore) Record(ctx context.Context, title string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "PriceCacheStore.Record")
	defer span.End()

	span.SetAttributes(attribute.String("product.title", title))

	view, err := s.currentView(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Load failed")
		return nil, err
	}

	p, ok := view[title]
	if !ok {
		span.SetStatus(codes.Error, "Product not found")
		return nil, domain.ErrProductNotFound
	}

	span.SetStatus(codes.Ok, "Record found")
	return p.Clone(), nil
}

// Cached returns the live fast-cache entries sorted by title
func (s *PriceCacheStore) Cached(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "PriceCacheStore.Cached")
	defer span.End()

	snapshot, err := s.cache.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cache unavailable")
		return nil, fmt.Errorf("cached products: %w", err)
	}

	products := sortedProducts(snapshot)
	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Cache listed")
	return products, nil
}

// currentView returns a copy of the in-process record set, loading it from
// the record repository on first use.
func (s *PriceCacheStore) currentView(ctx context.Context) (map[string]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		ioCtx, cancel := context.WithTimeout(ctx, s.ioTimeout)
		defer cancel()

		records, err := s.records.Load(ioCtx)
		if err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
		s.view = records
		s.loaded = true
	}

	view := make(map[string]*domain.Product, len(s.view))
	for title, p := range s.view {
		view[title] = p
	}
	return view, nil
}

func sortedProducts(m map[string]*domain.Product) []*domain.Product {
	products := make([]*domain.Product, 0, len(m))
	for _, p := range m {
		products = append(products, p.Clone())
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Title < products[j].Title
	})
	return products
}
