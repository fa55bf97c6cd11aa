// SPDX-License-Identifier: MIT

package cache

import (
	"io"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("datasets/foo/latest", "2025-01-02", 5*time.Minute)

	val, found := c.Get("datasets/foo/latest")
	if !found {
		t.Fatal("expected value to be found")
	}
	if val != "2025-01-02" {
		t.Errorf("expected '2025-01-02', got %v", val)
	}

	stats := c.Stats()
	if stats.Sets != 1 {
		t.Errorf("expected 1 set, got %d", stats.Sets)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("short-lived", 42, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("short-lived"); found {
		t.Error("expected expired value to be gone")
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("k", "v", time.Minute)
	c.Delete("k")

	if _, found := c.Get("k"); found {
		t.Error("expected deleted value to be gone")
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	c := NewMemoryCache(0)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()

	if _, found := c.Get("a"); found {
		t.Error("expected cache to be empty after clear")
	}
	if _, found := c.Get("b"); found {
		t.Error("expected cache to be empty after clear")
	}
}

func TestNoOpCache(t *testing.T) {
	c := NewNoOpCache()

	c.Set("k", "v", time.Minute)
	if _, found := c.Get("k"); found {
		t.Error("no-op cache should never return values")
	}
}

func TestMemoryCache_CloseStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewMemoryCache(time.Millisecond)

	closer, ok := c.(io.Closer)
	if !ok {
		t.Fatal("memory cache must implement io.Closer for shutdown hooks")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
