// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// memoryBackend is a map-backed store for tests and ephemeral use.
type memoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() Backend {
	return &memoryBackend{objects: make(map[string][]byte)}
}

func (b *memoryBackend) List(_ context.Context, prefix string) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	norm := strings.Trim(prefix, "/")
	if norm != "" {
		norm += "/"
	}

	type child struct {
		isDir bool
		size  int64
	}
	children := make(map[string]child)
	for key, data := range b.objects {
		if !strings.HasPrefix(key, norm) {
			continue
		}
		rest := strings.TrimPrefix(key, norm)
		if rest == "" {
			continue
		}
		if idx := strings.Index(rest, "/"); idx >= 0 {
			children[rest[:idx]] = child{isDir: true}
		} else {
			children[rest] = child{size: int64(len(data))}
		}
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Entry, 0, len(names))
	for _, name := range names {
		c := children[name]
		out = append(out, Entry{Name: name, IsDir: c.isDir, Size: c.size})
	}
	return out, nil
}

func (b *memoryBackend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.objects[strings.Trim(key, "/")]
	if !ok {
		return nil, fmt.Errorf("open %q: %w", key, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBackend) Put(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body for %q: %w", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[strings.Trim(key, "/")] = data
	return nil
}

func (b *memoryBackend) Stat(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.objects[strings.Trim(key, "/")]
	return ok, nil
}

func (b *memoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	norm := strings.Trim(key, "/")
	if _, ok := b.objects[norm]; !ok {
		return fmt.Errorf("delete %q: %w", key, ErrNotExist)
	}
	delete(b.objects, norm)
	return nil
}

func (b *memoryBackend) Close() error { return nil }
