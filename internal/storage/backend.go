// SPDX-License-Identifier: MIT

// Package storage abstracts the object store snapshots live in. Keys are
// slash-separated paths relative to the base URI; backends exist for the
// local filesystem, S3-compatible stores and an in-memory store for tests.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Open and Delete when the key is absent.
var ErrNotExist = errors.New("object does not exist")

// Entry is one immediate child of a listed prefix.
type Entry struct {
	Name  string // base name, no path separators
	IsDir bool
	Size  int64
}

// Backend is the object store contract.
//
// Put must publish atomically: a reader never observes a partially written
// object under the final key.
type Backend interface {
	// List returns the immediate children under prefix. A missing prefix
	// yields an empty slice, not an error.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Open returns a reader for the object at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object at key atomically.
	Put(ctx context.Context, key string, r io.Reader) error

	// Stat reports whether the object exists.
	Stat(ctx context.Context, key string) (bool, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
