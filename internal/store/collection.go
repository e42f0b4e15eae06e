package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrDuplicateID is returned by Create when unique ids are enforced and a
// record with the same id already exists.
var ErrDuplicateID = errors.New("record with this id already exists")

// Record is anything stored in a Collection. RecordID is the lookup key.
type Record interface {
	RecordID() string
}

// Observer receives per-operation measurements from a Collection.
type Observer interface {
	ObserveStoreOp(kind, op string, err error, d time.Duration)
	ObserveReadFailure(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveStoreOp(string, string, error, time.Duration) {}
func (nopObserver) ObserveReadFailure(string)                           {}

type options struct {
	logger    *slog.Logger
	observer  Observer
	uniqueIDs bool
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithUniqueIDs makes Create reject a record whose id is already present.
// Without it duplicates are stored and lookups return the first match.
func WithUniqueIDs() Option {
	return func(o *options) { o.uniqueIDs = true }
}

// Collection is the ordered set of records of one kind.
type Collection[T Record] struct {
	kind    string
	backend Backend
	opts    options
}

// NewCollection initializes storage for kind and returns its collection.
func NewCollection[T Record](ctx context.Context, backend Backend, kind string, opts ...Option) (*Collection[T], error) {
	o := options{logger: slog.Default(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if err := backend.Init(ctx, kind); err != nil {
		return nil, fmt.Errorf("init %s: %w", kind, err)
	}
	return &Collection[T]{kind: kind, backend: backend, opts: o}, nil
}

func (c *Collection[T]) Kind() string { return c.kind }

// ReadAll returns every record in stored order. A missing, unreadable or
// malformed document reads as an empty collection.
func (c *Collection[T]) ReadAll(ctx context.Context) []T {
	start := time.Now()
	records := c.load(ctx)
	c.opts.observer.ObserveStoreOp(c.kind, "read_all", nil, time.Since(start))
	return records
}

// WriteAll replaces the collection with records.
func (c *Collection[T]) WriteAll(ctx context.Context, records []T) error {
	start := time.Now()
	err := c.mutate(ctx, func([]T) ([]T, error) {
		return records, nil
	})
	c.opts.observer.ObserveStoreOp(c.kind, "write_all", err, time.Since(start))
	return err
}

// FindByID returns the first record whose id matches.
func (c *Collection[T]) FindByID(ctx context.Context, id string) (T, bool) {
	start := time.Now()
	defer func() { c.opts.observer.ObserveStoreOp(c.kind, "find", nil, time.Since(start)) }()

	for _, r := range c.load(ctx) {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Create appends record as-is.
func (c *Collection[T]) Create(ctx context.Context, record T) (T, error) {
	start := time.Now()
	err := c.mutate(ctx, func(records []T) ([]T, error) {
		if c.opts.uniqueIDs {
			for _, r := range records {
				if r.RecordID() == record.RecordID() {
					return nil, ErrDuplicateID
				}
			}
		}
		return append(records, record), nil
	})
	c.opts.observer.ObserveStoreOp(c.kind, "create", err, time.Since(start))
	return record, err
}

// Update applies fn to the first record whose id matches and stores the
// result in the same position. It reports false when no record matches; an
// error from fn aborts the update without writing.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(T) (T, error)) (T, bool, error) {
	start := time.Now()
	var (
		updated T
		found   bool
	)
	err := c.mutate(ctx, func(records []T) ([]T, error) {
		for i, r := range records {
			if r.RecordID() != id {
				continue
			}
			next, err := fn(r)
			if err != nil {
				return nil, err
			}
			records[i] = next
			updated, found = next, true
			return records, nil
		}
		return nil, errSkipWrite
	})
	c.opts.observer.ObserveStoreOp(c.kind, "update", err, time.Since(start))
	if err != nil {
		var zero T
		return zero, false, err
	}
	return updated, found, nil
}

// UpdateFields shallow-merges patch into the first record whose id matches.
// Keys present in patch overwrite, every other field is kept.
func (c *Collection[T]) UpdateFields(ctx context.Context, id string, patch map[string]json.RawMessage) (T, bool, error) {
	return c.Update(ctx, id, func(r T) (T, error) {
		return MergeFields(r, patch)
	})
}

// Delete removes the first record whose id matches and reports whether one
// was removed. Nothing is written when the id is absent.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	var removed bool
	err := c.mutate(ctx, func(records []T) ([]T, error) {
		for i, r := range records {
			if r.RecordID() == id {
				removed = true
				return append(records[:i], records[i+1:]...), nil
			}
		}
		return nil, errSkipWrite
	})
	c.opts.observer.ObserveStoreOp(c.kind, "delete", err, time.Since(start))
	if err != nil {
		return false, err
	}
	return removed, nil
}

// mutate runs one read-modify-write cycle through the backend.
func (c *Collection[T]) mutate(ctx context.Context, fn func([]T) ([]T, error)) error {
	return c.backend.Mutate(ctx, c.kind, func(doc []byte, readErr error) ([]byte, error) {
		next, err := fn(c.decode(doc, readErr))
		if err != nil {
			return nil, err
		}
		return encode(next)
	})
}

func (c *Collection[T]) load(ctx context.Context) []T {
	doc, err := c.backend.Load(ctx, c.kind)
	return c.decode(doc, err)
}

func (c *Collection[T]) decode(doc []byte, readErr error) []T {
	if readErr != nil {
		c.readFailure(readErr)
		return []T{}
	}
	var records []T
	if err := json.Unmarshal(doc, &records); err != nil {
		c.readFailure(err)
		return []T{}
	}
	if records == nil {
		return []T{}
	}
	return records
}

func (c *Collection[T]) readFailure(err error) {
	c.opts.logger.Warn("collection unreadable, treating as empty",
		"kind", c.kind,
		"backend", c.backend.Name(),
		"error", err,
	)
	c.opts.observer.ObserveReadFailure(c.kind)
}

func encode[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return data, nil
}
