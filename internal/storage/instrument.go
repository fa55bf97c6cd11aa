// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"errors"
	"io"

	"github.com/datakettle/snapsvc/internal/metrics"
)

// instrumented counts failed operations per op label. Missing keys do
// not count; callers check for absence routinely.
type instrumented struct {
	inner Backend
}

func instrument(b Backend) Backend {
	return &instrumented{inner: b}
}

func record(op string, err error) {
	if err != nil && !errors.Is(err, ErrNotExist) {
		metrics.RecordStorageError(op)
	}
}

func (m *instrumented) List(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := m.inner.List(ctx, prefix)
	record("list", err)
	return entries, err
}

func (m *instrumented) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := m.inner.Open(ctx, key)
	record("open", err)
	return rc, err
}

func (m *instrumented) Put(ctx context.Context, key string, r io.Reader) error {
	err := m.inner.Put(ctx, key, r)
	record("put", err)
	return err
}

func (m *instrumented) Stat(ctx context.Context, key string) (bool, error) {
	ok, err := m.inner.Stat(ctx, key)
	record("stat", err)
	return ok, err
}

func (m *instrumented) Delete(ctx context.Context, key string) error {
	err := m.inner.Delete(ctx, key)
	record("delete", err)
	return err
}

func (m *instrumented) Close() error {
	return m.inner.Close()
}
