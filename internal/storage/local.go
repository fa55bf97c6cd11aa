// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// localBackend stores objects rooted at a directory. Writes are atomic and
// durable: renameio stages a temp file, fsyncs, then renames over the
// final name.
type localBackend struct {
	root string
}

// NewLocal creates a filesystem backend rooted at dir. The directory is
// created if missing.
func NewLocal(dir string) (Backend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root %q: %w", abs, err)
	}
	return &localBackend{root: abs}, nil
}

// resolve confines key to the backend root. Keys that escape via ".." or
// an absolute path are rejected.
func (b *localBackend) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return filepath.Join(b.root, clean), nil
}

func (b *localBackend) List(_ context.Context, prefix string) ([]Entry, error) {
	dir, err := b.resolve(prefix)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		ent := Entry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			ent.Size = info.Size()
		}
		out = append(out, ent)
	}
	return out, nil
}

func (b *localBackend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path is confined to the backend root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %q: %w", key, ErrNotExist)
		}
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return f, nil
}

func (b *localBackend) Put(_ context.Context, key string, r io.Reader) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent for %q: %w", key, err)
	}

	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending file for %q: %w", key, err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if _, err := io.Copy(pending, r); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}

	// CloseAtomicallyReplace: fsync + rename (durable + atomic)
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %q: %w", key, err)
	}
	return nil
}

func (b *localBackend) Stat(_ context.Context, key string) (bool, error) {
	path, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return true, nil
}

func (b *localBackend) Delete(_ context.Context, key string) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %q: %w", key, ErrNotExist)
		}
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (b *localBackend) Close() error { return nil }
