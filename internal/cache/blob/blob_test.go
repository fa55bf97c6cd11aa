// SPDX-License-Identifier: MIT

package blob

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)

	payload := []byte("snapshot bytes")
	if err := s.Put("providers/2025-01-02/2025-01-02.jsonl.gz", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get("providers/2025-01-02/2025-01-02.jsonl.gz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q", got)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("no/such/key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("k", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
