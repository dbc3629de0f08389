package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/recordkeep/internal/lock"
)

// Store reads and writes collection files under a data directory.
//
// Thread-safety: Store is safe for concurrent use. Mutual exclusion per file
// comes from the lock manager, which also excludes other processes.
type Store struct {
	dir   string
	locks *lock.Manager
}

// New creates a Store rooted at dir. Relative collection paths passed to Path
// resolve under dir; absolute paths are used as given.
func New(dir string, locks *lock.Manager) *Store {
	if locks == nil {
		locks = lock.NewManager(lock.Options{})
	}
	return &Store{dir: dir, locks: locks}
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path resolves a collection file name against the data directory.
func (s *Store) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.dir, name)
}

// Read returns the decoded content of the collection at path, or fallback if
// the file does not exist.
func Read[T any](ctx context.Context, s *Store, path string, fallback T) (T, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}

	tok, err := s.locks.Acquire(ctx, path)
	if err != nil {
		return fallback, err
	}
	defer tok.Release()

	return readLocked(path, fallback)
}

// Write atomically replaces the collection at path with data.
func (s *Store) Write(ctx context.Context, path string, data any) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tok, err := s.locks.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer tok.Release()

	return writeLocked(path, data)
}

// Update applies fn to the current content of the collection (fallback if
// absent) and writes the result, all under a single lock. If fn returns an
// error nothing is written.
func Update[T any](ctx context.Context, s *Store, path string, fallback T, fn func(T) (T, error)) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tok, err := s.locks.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer tok.Release()

	current, err := readLocked(path, fallback)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return writeLocked(path, next)
}

func readLocked[T any](path string, fallback T) (T, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return fallback, &IOError{Op: "read", Path: path, Err: err}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return fallback, &ParseError{Path: path, Err: err}
	}
	return out, nil
}

func writeLocked(path string, data any) error {
	payload, err := marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.%d.tmp", filepath.Base(path), os.Getpid(), time.Now().UnixNano()))

	if err := writeFileSync(tmp, payload); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	if err := syncDir(dir); err != nil {
		slog.Warn("directory sync failed after rename", "dir", dir, "error", err)
	}

	slog.Debug("collection written", "path", path, "bytes", len(payload))
	return nil
}

// marshal produces the on-disk form: two-space indented JSON with HTML
// escaping disabled and no trailing newline.
func marshal(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
