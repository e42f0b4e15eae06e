package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Backend persists one JSON array document per collection kind.
//
// Mutate is the only read-modify-write path: implementations decide how the
// sequence is guarded (nothing, a mutex, or a database transaction).
type Backend interface {
	Name() string
	// Init makes sure an empty document exists for kind.
	Init(ctx context.Context, kind string) error
	// Load returns the current document for kind.
	Load(ctx context.Context, kind string) ([]byte, error)
	// Mutate reads the document, passes it to fn and stores what fn returns.
	Mutate(ctx context.Context, kind string, fn MutateFunc) error
}

// MutateFunc receives the current document, or a nil document and the read
// error when it could not be loaded, and returns the replacement document.
// Returning errSkipWrite leaves storage untouched.
type MutateFunc func(doc []byte, readErr error) ([]byte, error)

var errSkipWrite = errors.New("store: skip write")

// Kinds lists the file-safe collection names in the order the API exposes
// them.
var Kinds = []string{
	"family-members",
	"calendar-events",
	"shopping-categories",
	"shopping-items",
	"meals",
	"sleepovers",
	"tasks",
}

// Snapshot loads the raw document of every kind. A kind that cannot be
// loaded fails the whole snapshot.
func Snapshot(ctx context.Context, b Backend, kinds []string) (map[string][]byte, error) {
	docs := make(map[string][]byte, len(kinds))
	for _, kind := range kinds {
		doc, err := b.Load(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		docs[kind] = doc
	}
	return docs, nil
}

// Replace overwrites the document of kind with doc, which must be a JSON
// array.
func Replace(ctx context.Context, b Backend, kind string, doc []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(doc, &elems); err != nil {
		return fmt.Errorf("%s is not a JSON array: %w", kind, err)
	}
	if elems == nil {
		elems = []json.RawMessage{}
	}
	out, err := json.MarshalIndent(elems, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := b.Init(ctx, kind); err != nil {
		return fmt.Errorf("init %s: %w", kind, err)
	}
	return b.Mutate(ctx, kind, func([]byte, error) ([]byte, error) {
		return out, nil
	})
}
