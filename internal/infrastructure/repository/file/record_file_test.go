package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrops-br/price-cache-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestFile(t *testing.T, path string) *RecordFile {
	t.Helper()
	return NewRecordFile(path, noop.NewTracerProvider().Tracer("test"), slog.New(slog.DiscardHandler))
}

func TestRecordFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "products.json")
	f := newTestFile(t, path)
	ctx := context.Background()

	records := map[string]*domain.Product{}
	for i := 0; i < 25; i++ {
		title := fmt.Sprintf("Product %02d", i)
		records[title] = &domain.Product{
			Title:      title,
			Price:      float64(i) + 0.99,
			Attributes: map[string]any{"path_image": fmt.Sprintf("/img/%d.png", i), "in_stock": i%2 == 0},
		}
	}

	require.NoError(t, f.Save(ctx, records))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestRecordFile_StableIndentedOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	f := newTestFile(t, path)

	require.NoError(t, f.Save(context.Background(), map[string]*domain.Product{
		"b": {Title: "b", Price: 2},
		"a": {Title: "a", Price: 1},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "{\n" +
		"    \"a\": {\n" +
		"        \"product_price\": 1,\n" +
		"        \"product_title\": \"a\"\n" +
		"    },\n" +
		"    \"b\": {\n" +
		"        \"product_price\": 2,\n" +
		"        \"product_title\": \"b\"\n" +
		"    }\n" +
		"}"
	assert.Equal(t, want, string(data))
}

func TestRecordFile_LoadTreatsBadInputAsEmpty(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty":         "",
		"whitespace":    "  \n",
		"corrupt":       "{\"a\": {",
		"wrong shape":   "[1,2,3]",
		"bad record":    "{\"a\": {\"product_title\": \"a\"}}",
		"null document": "null",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			got, err := newTestFile(t, path).Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}

	t.Run("missing", func(t *testing.T) {
		got, err := newTestFile(t, filepath.Join(dir, "absent.json")).Load(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestRecordFile_FailedWriteKeepsPreviousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	f := newTestFile(t, path)
	require.NoError(t, f.Save(context.Background(), map[string]*domain.Product{"a": {Title: "a", Price: 1}}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.Save(ctx, map[string]*domain.Product{"b": {Title: "b", Price: 2}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreIO)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecordFile_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory cannot be replaced by a rename.
	path := filepath.Join(dir, "products.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))

	f := newTestFile(t, path)
	err := f.Save(context.Background(), map[string]*domain.Product{"a": {Title: "a", Price: 1}})
	assert.ErrorIs(t, err, domain.ErrStoreIO)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be cleaned up")
}

func TestRecordFile_LoadFailsOnUnreadablePath(t *testing.T) {
	// A directory exists but cannot be read as a file.
	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.MkdirAll(path, 0o755))

	got, err := newTestFile(t, path).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreIO)
	assert.Nil(t, got)
}

func TestRecordFile_RewriteKeepsLargeIntegers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	in := `{"Widget":{"product_title":"Widget","product_price":10,"sku":9007199254740993}}`
	require.NoError(t, os.WriteFile(path, []byte(in), 0o644))

	f := newTestFile(t, path)
	records, err := f.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, records, "Widget")
	assert.Equal(t, 10.0, records["Widget"].Price)

	require.NoError(t, f.Save(context.Background(), records))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sku": 9007199254740993`)
}

func TestRecordFile_DeadlineAfterStagingDoesNotCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	f := newTestFile(t, path)
	require.NoError(t, f.Save(context.Background(), map[string]*domain.Product{"a": {Title: "a", Price: 1}}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.staged = cancel

	err = f.Save(ctx, map[string]*domain.Product{"b": {Title: "b", Price: 2}})
	assert.ErrorIs(t, err, domain.ErrStoreIO)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".tmp") {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond, "staged file should be removed")
}
