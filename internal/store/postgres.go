package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores each kind's document as JSONB. Mutate locks the
// kind's row for the length of its transaction, so concurrent writers from
// any number of processes are serialized.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Init(ctx context.Context, kind string) error {
	_, err := b.pool.Exec(ctx,
		"INSERT INTO collections (kind, document) VALUES ($1, '[]'::jsonb) ON CONFLICT (kind) DO NOTHING",
		kind,
	)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, kind string) ([]byte, error) {
	var doc string
	err := b.pool.QueryRow(ctx, "SELECT document::text FROM collections WHERE kind = $1", kind).Scan(&doc)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	return []byte(doc), nil
}

func (b *PostgresBackend) Mutate(ctx context.Context, kind string, fn MutateFunc) error {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc string
	readErr := tx.QueryRow(ctx, "SELECT document::text FROM collections WHERE kind = $1 FOR UPDATE", kind).Scan(&doc)
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

	_, err = tx.Exec(ctx,
		`INSERT INTO collections (kind, document, updated_at) VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (kind) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		kind, string(out),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return tx.Commit(ctx)
}
