package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnauthorized    = errors.New("token is missing or invalid")
	ErrMissingSecret   = errors.New("secret key is not configured")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrStoreIO         = errors.New("store i/o failure")
)

// StoreIOError reports a failed durable write or an unavailable cache
// backend. errors.Is(err, ErrStoreIO) holds for every StoreIOError.
type StoreIOError struct {
	Op  string
	Err error
}

func (e *StoreIOError) Error() string {
	return e.Op + ": " + ErrStoreIO.Error() + ": " + e.Err.Error()
}

func (e *StoreIOError) Unwrap() error { return e.Err }

func (e *StoreIOError) Is(target error) bool { return target == ErrStoreIO }

// NewStoreIOError wraps err, returning nil when err is nil.
func NewStoreIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreIOError{Op: op, Err: err}
}

// RecordRepository defines the contract for the durable record set
type RecordRepository interface {
	// Load returns every stored record keyed by title. A missing or
	// undecodable store yields an empty map. A store that exists but cannot
	// be read yields a StoreIOError.
	Load(ctx context.Context) (map[string]*Product, error)
	// Save replaces the stored record set in a single write.
	Save(ctx context.Context, records map[string]*Product) error
}

// PriceCache defines the contract for the fast TTL cache
type PriceCache interface {
	Get(ctx context.Context, title string) (*Product, bool, error)
	// GetMany returns the live entries among titles. Absent or expired
	// titles are left out of the result.
	GetMany(ctx context.Context, titles []string) (map[string]*Product, error)
	Set(ctx context.Context, product *Product, ttl time.Duration) error
	// Snapshot lists every live entry.
	Snapshot(ctx context.Context) (map[string]*Product, error)
	Close() error
}
