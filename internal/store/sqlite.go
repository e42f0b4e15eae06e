package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteBackend keeps each kind's document in a row of the collections
// table. Every Mutate runs in its own transaction.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) Init(ctx context.Context, kind string) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO collections (kind, document) VALUES (?, '[]') ON CONFLICT(kind) DO NOTHING",
		kind,
	)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Load(ctx context.Context, kind string) ([]byte, error) {
	var doc string
	err := b.db.QueryRowContext(ctx, "SELECT document FROM collections WHERE kind = ?", kind).Scan(&doc)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	return []byte(doc), nil
}

func (b *SQLiteBackend) Mutate(ctx context.Context, kind string, fn MutateFunc) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var doc string
	readErr := tx.QueryRowContext(ctx, "SELECT document FROM collections WHERE kind = ?", kind).Scan(&doc)
	if readErr != nil {
		readErr = fmt.Errorf("query collection: %w", readErr)
	}

	out, err := fn([]byte(doc), readErr)
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO collections (kind, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(kind) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		kind, string(out),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return tx.Commit()
}
