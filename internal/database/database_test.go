package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMigratesSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gezin.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.Exec("INSERT INTO collections (kind) VALUES ('tasks')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	// Reopening finds the migration applied and keeps the data.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var doc string
	if err := db.QueryRow("SELECT document FROM collections WHERE kind = 'tasks'").Scan(&doc); err != nil {
		t.Fatalf("select: %v", err)
	}
	if doc != "[]" {
		t.Errorf("document = %q, want []", doc)
	}
}

func TestOpenPostgresMigrates(t *testing.T) {
	url := os.Getenv("GEZIN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GEZIN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		pool, err := OpenPostgres(ctx, url)
		if err != nil {
			t.Fatalf("OpenPostgres (attempt %d): %v", i+1, err)
		}
		var exists bool
		err = pool.QueryRow(ctx, "SELECT to_regclass('collections') IS NOT NULL").Scan(&exists)
		pool.Close()
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if !exists {
			t.Fatal("collections table missing after migrations")
		}
	}
}
