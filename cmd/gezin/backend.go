package main

import (
	"context"
	"fmt"

	"github.com/dukerupert/gezin/internal/backup"
	"github.com/dukerupert/gezin/internal/config"
	"github.com/dukerupert/gezin/internal/database"
	"github.com/dukerupert/gezin/internal/store"
)

// openBackend returns the configured storage backend and a function that
// releases it.
func openBackend(ctx context.Context, cfg config.Config) (store.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := database.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store.NewSQLiteBackend(db), func() { db.Close() }, nil
	case config.BackendPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return store.NewPostgresBackend(pool), pool.Close, nil
	default:
		return store.NewFileBackend(cfg.DataDir, cfg.StoreLocking), func() {}, nil
	}
}

func backupConfig(cfg config.Config) backup.Config {
	b := cfg.Backup
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		},
		Prefix:        b.Prefix,
		Passphrase:    b.Passphrase,
		Interval:      b.Interval,
		RetentionDays: b.RetentionDays,
	}
}
