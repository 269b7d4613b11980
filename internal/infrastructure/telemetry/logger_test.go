package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/mrops-br/price-cache-api/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInitLogger_AddsTraceAndRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&config.OTLPConfig{ServiceName: "svc", Environment: "test", LogLevel: "debug"}, &buf)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = WithHTTPRoute(ctx, "/products")

	logger.InfoContext(ctx, "hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "svc", entry["service.name"])
	assert.Equal(t, "/products", entry["http.route"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}

func TestInitLogger_LevelFromConfig(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&config.OTLPConfig{LogLevel: "warn"}, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Equal(t, "kept", decodeLine(t, &buf)["msg"])
}

func TestInitLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&config.OTLPConfig{LogLevel: "loud"}, &buf)

	logger.Debug("dropped")
	assert.Zero(t, buf.Len())
	logger.Info("kept")
	assert.NotZero(t, buf.Len())
}

func TestHTTPRouteFromContext_Empty(t *testing.T) {
	assert.Equal(t, "", HTTPRouteFromContext(context.Background()))
}
