package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mrops-br/price-cache-api/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordFile is a JSON file implementation of domain.RecordRepository.
// The file holds one object keyed by product title.
type RecordFile struct {
	path   string
	tracer trace.Tracer
	logger *slog.Logger

	// staged, when set, runs after the temporary file is written and before
	// the commit decision. Tests use it to move the deadline.
	staged func()
}

// NewRecordFile creates a record repository backed by the file at path
func NewRecordFile(path string, tracer trace.Tracer, logger *slog.Logger) *RecordFile {
	return &RecordFile{
		path:   path,
		tracer: tracer,
		logger: logger,
	}
}

// Path returns the location of the backing file
func (f *RecordFile) Path() string {
	return f.path
}

// Load reads every record from the file. A missing, empty or corrupt file
// is reported as an empty record set. Any other read failure is returned
// as a domain.StoreIOError so a merge never overwrites a file it could not
// read.
func (f *RecordFile) Load(ctx context.Context) (map[string]*domain.Product, error) {
	ctx, span := f.tracer.Start(ctx, "RecordFile.Load")
	defer span.End()

	span.SetAttributes(attribute.String("file.path", f.path))

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		span.SetStatus(codes.Ok, "Record file absent")
		return map[string]*domain.Product{}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Read failed")
		f.logger.ErrorContext(ctx, "Failed to read record file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
		return nil, domain.NewStoreIOError("read records", err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		span.RecordError(err)
		f.logger.WarnContext(ctx, "Record file corrupt, starting empty",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
		return map[string]*domain.Product{}, nil
	}

	span.SetAttributes(attribute.Int("record.count", len(records)))
	span.SetStatus(codes.Ok, "Records loaded")
	return records, nil
}

// Save replaces the file with records. The new content is written to a
// temporary file and renamed into place, so a failed or timed out write
// leaves the previous file untouched. Save returns nil exactly when the
// rename happened.
func (f *RecordFile) Save(ctx context.Context, records map[string]*domain.Product) error {
	ctx, span := f.tracer.Start(ctx, "RecordFile.Save")
	defer span.End()

	span.SetAttributes(
		attribute.String("file.path", f.path),
		attribute.Int("record.count", len(records)),
	)

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Encode failed")
		return domain.NewStoreIOError("encode records", err)
	}

	if err := f.write(ctx, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Write failed")
		f.logger.ErrorContext(ctx, "Failed to write record file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)
		return domain.NewStoreIOError("write records", err)
	}

	span.SetStatus(codes.Ok, "Records saved")
	return nil
}

type staged struct {
	name string
	err  error
}

// write stages data in a temporary file off the caller's goroutine and
// commits it with a rename on the caller's goroutine, so the deadline is
// checked by the only code path that can commit.
func (f *RecordFile) write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan staged, 1)
	go func() {
		name, err := f.stage(data)
		if f.staged != nil {
			f.staged()
		}
		done <- staged{name: name, err: err}
	}()

	var st staged
	select {
	case st = <-done:
	case <-ctx.Done():
		// Drop whatever the writer stages once it finishes.
		go func() {
			if late := <-done; late.err == nil {
				_ = os.Remove(late.name)
			}
		}()
		return ctx.Err()
	}
	if st.err != nil {
		return st.err
	}

	if err := ctx.Err(); err != nil {
		_ = os.Remove(st.name)
		return err
	}
	if err := os.Rename(st.name, f.path); err != nil {
		_ = os.Remove(st.name)
		return err
	}
	return nil
}

// stage writes data to a synced temporary file next to the destination and
// returns its name. On error nothing is left behind.
func (f *RecordFile) stage(data []byte) (string, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return "", err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func decodeRecords(data []byte) (map[string]*domain.Product, error) {
	records := map[string]*domain.Product{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for key, msg := range raw {
		var p domain.Product
		if err := json.Unmarshal(msg, &p); err != nil {
			return nil, fmt.Errorf("record %q: %w", key, err)
		}
		records[key] = &p
	}
	return records, nil
}
