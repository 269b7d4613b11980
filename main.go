package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrops-br/price-cache-api/internal/app/service"
	"github.com/mrops-br/price-cache-api/internal/domain"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/config"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/http"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/http/handler"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/repository/file"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/repository/memory"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/repository/rediscache"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var telem *telemetry.Telemetry
	if cfg.OTLP.Enabled {
		var err error
		telem, err = telemetry.NewTelemetry(&cfg.OTLP)
		if err != nil {
			log.Fatalf("Failed to initialize telemetry: %v", err)
		}
	} else {
		telem = telemetry.NewNoOpTelemetry(&cfg.OTLP)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	tracer := telem.TracerProvider.Tracer("price-cache-api")
	meter := telem.MeterProvider.Meter("price-cache-api")
	logger := telem.Logger

	logger.Info("Starting Price Cache API",
		slog.String("cache_backend", cfg.Store.CacheBackend),
		slog.Duration("cache_ttl", cfg.Store.CacheTTL),
		slog.String("data_file", cfg.Store.DataFile),
		slog.Int("scraper_pages", cfg.Scraper.NumPages),
		slog.Duration("scraper_retry_delay", cfg.Scraper.RetryDelay),
		slog.Bool("scraper_proxy", cfg.Scraper.Proxy != ""),
	)

	// The cache connection is opened once here and shared for the process lifetime
	cache, err := newPriceCache(ctx, cfg, tracer, logger)
	if err != nil {
		logger.Error("Failed to initialize price cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cache.Close()

	records := file.NewRecordFile(cfg.Store.DataFile, tracer, logger)
	store := service.NewPriceCacheStore(records, cache, cfg.Store.CacheTTL, cfg.Store.IOTimeout, tracer, meter, logger)
	productHandler := handler.NewProductHandler(store, logger)
	server := http.NewServer(&cfg.Server, &cfg.Auth, productHandler, telem.MeterProvider, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", "error", err.Error())
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("Server stopped")
}

func newPriceCache(ctx context.Context, cfg *config.Config, tracer trace.Tracer, logger *slog.Logger) (domain.PriceCache, error) {
	if cfg.Store.CacheBackend == config.CacheBackendMemory {
		c := memory.NewPriceCache(tracer, logger)
		c.StartJanitor(ctx, time.Minute)
		return c, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.IOTimeout)
	defer cancel()

	client, err := rediscache.NewClient(connectCtx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	return rediscache.NewPriceCache(client, cfg.Redis.KeyPrefix, tracer, logger), nil
}
