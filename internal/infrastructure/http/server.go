package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/config"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/http/handler"
	"github.com/mrops-br/price-cache-api/internal/infrastructure/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
)

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	secret  string
	handler *handler.ProductHandler
	meter   metric.Meter
	mp      metric.MeterProvider
	logger  *slog.Logger
	srv     *http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.ServerConfig,
	auth *config.AuthConfig,
	handler *handler.ProductHandler,
	mp metric.MeterProvider,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		secret:  auth.SecretToken,
		handler: handler,
		meter:   mp.Meter("price-cache-api"),
		mp:      mp,
		logger:  logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupMiddleware configures the middleware chain
func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(middleware.StructuredLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.DurationMillisecondsMiddleware(s.meter))
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Route("/products", func(r chi.Router) {
		r.Use(middleware.BearerAuth(s.secret, s.logger))

		// Inline middleware runs after routing, so the pattern is resolved.
		r.Group(func(r chi.Router) {
			r.Use(middleware.HTTPRouteContext())
			r.Use(middleware.ActiveRequestsMiddleware(s.meter))

			r.Post("/", s.handler.RecordBatch)
			r.Get("/", s.handler.ListProducts)
			r.Post("/check", s.handler.CheckProduct)
			r.Get("/cached", s.handler.ListCached)
			r.Get("/{title}", s.handler.GetProduct)
		})
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus exposition of the OpenTelemetry metrics
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// Handler returns the full handler chain, wrapped with otelhttp for the
// standard HTTP server spans and metrics
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "http-server",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		// Route-labelled durations come from DurationMillisecondsMiddleware;
		// otelhttp sees the request before chi has routed it.
		otelhttp.WithMeterProvider(s.mp),
	)
}

// Start starts the HTTP server and blocks until it stops. It returns nil
// after a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		slog.String("address", s.srv.Addr),
	)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
