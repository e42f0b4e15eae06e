package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Locking selects how FileBackend guards a read-modify-write cycle.
type Locking string

const (
	// LockNone reproduces the original behavior: concurrent writers to the
	// same kind can lose each other's updates.
	LockNone Locking = "none"
	// LockMutex serializes mutations of one kind within the process.
	LockMutex Locking = "mutex"
)

// ParseLocking maps a configuration value to a Locking mode.
func ParseLocking(s string) (Locking, error) {
	switch Locking(s) {
	case LockNone:
		return LockNone, nil
	case LockMutex, "":
		return LockMutex, nil
	}
	return "", fmt.Errorf("unknown store locking %q (want none or mutex)", s)
}

// FileBackend keeps each kind in <dir>/<kind>.json.
type FileBackend struct {
	dir     string
	locking Locking

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileBackend(dir string, locking Locking) *FileBackend {
	return &FileBackend{
		dir:     dir,
		locking: locking,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (b *FileBackend) Name() string { return "file" }

// Path returns the document path for kind.
func (b *FileBackend) Path(kind string) string {
	return filepath.Join(b.dir, kind+".json")
}

func (b *FileBackend) Init(_ context.Context, kind string) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := b.Path(kind)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

func (b *FileBackend) Load(_ context.Context, kind string) ([]byte, error) {
	return os.ReadFile(b.Path(kind))
}

func (b *FileBackend) Mutate(_ context.Context, kind string, fn MutateFunc) error {
	unlock := b.lock(kind)
	defer unlock()

	path := b.Path(kind)
	doc, readErr := os.ReadFile(path)
	out, err := fn(doc, readErr)
	if errors.Is(err, errSkipWrite) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, append(out, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (b *FileBackend) lock(kind string) func() {
	if b.locking == LockNone {
		return func() {}
	}
	b.mu.Lock()
	l, ok := b.locks[kind]
	if !ok {
		l = &sync.Mutex{}
		b.locks[kind] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader sees either the old or the new document.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gezin-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
