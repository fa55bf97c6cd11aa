// SPDX-License-Identifier: MIT

// Package reader loads published dataset snapshots. A snapshot only
// counts once its success marker exists; directories still being
// written are invisible here. Reads understand both the canonical
// dated-directory layout and the older flat-file layout.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/datakettle/snapsvc/internal/cache"
	"github.com/datakettle/snapsvc/internal/cache/blob"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/metrics"
	"github.com/datakettle/snapsvc/internal/snapshot"
	"github.com/datakettle/snapsvc/internal/storage"
	"github.com/datakettle/snapsvc/internal/table"
)

// ErrNoSnapshots is returned when a dataset has no published snapshots.
var ErrNoSnapshots = errors.New("no snapshots found")

// Options tunes an individual Reader.
type Options struct {
	// Cache holds date listings and manifests for CacheTTL. Nil
	// disables lookup caching.
	Cache    cache.Cache
	CacheTTL time.Duration

	// Blobs caches raw snapshot payloads on disk. Worth it for
	// remote backends only.
	Blobs *blob.Store
}

// Reader answers snapshot queries against one storage backend.
type Reader struct {
	backend  storage.Backend
	cache    cache.Cache
	cacheTTL time.Duration
	blobs    *blob.Store
}

// New builds a Reader over backend.
func New(backend storage.Backend, opts Options) *Reader {
	c := opts.Cache
	if c == nil {
		c = cache.NewNoOpCache()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Reader{
		backend:  backend,
		cache:    c,
		cacheTTL: ttl,
		blobs:    opts.Blobs,
	}
}

// Open connects a Reader to the given base URI. The URI is resolved
// here rather than at package init so values loaded into the
// environment late, for example from a .env file, still apply.
func Open(baseURI string, s3opts storage.S3Options, opts Options) (*Reader, error) {
	base, err := storage.CoerceBase(baseURI)
	if err != nil {
		return nil, err
	}
	backend, err := storage.FromURI(base, s3opts)
	if err != nil {
		return nil, err
	}
	return New(backend, opts), nil
}

// Close releases the underlying backend.
func (r *Reader) Close() error {
	return r.backend.Close()
}

// ListDatasets returns the dataset names present in storage, sorted
// ascending.
func (r *Reader) ListDatasets(ctx context.Context) ([]string, error) {
	entries, err := r.backend.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Raw returns the encoded snapshot payload without decoding it.
// Used to stream snapshots over HTTP as-is.
func (r *Reader) Raw(ctx context.Context, dataset, date string) ([]byte, error) {
	if _, err := snapshot.ParseDate(date); err != nil {
		return nil, err
	}
	return r.loadPayload(ctx, dataset, date)
}

// ListDates returns every published snapshot date for dataset, sorted
// ascending. Dates come from both dated directories and legacy flat
// files; a dated directory without its success marker is skipped.
func (r *Reader) ListDates(ctx context.Context, dataset string) ([]string, error) {
	cacheKey := "dates/" + dataset
	if v, ok := r.cache.Get(cacheKey); ok {
		if dates, ok := cachedStrings(v); ok {
			metrics.RecordCacheHit()
			return dates, nil
		}
	}
	metrics.RecordCacheMiss()

	entries, err := r.backend.List(ctx, snapshot.DatasetPrefix(dataset))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dataset, err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		switch {
		case e.IsDir && snapshot.IsDateDir(e.Name):
			ok, err := r.backend.Stat(ctx, snapshot.SuccessObject(dataset, e.Name))
			if err != nil {
				return nil, fmt.Errorf("stat success marker %s/%s: %w", dataset, e.Name, err)
			}
			if ok {
				seen[e.Name] = true
			}
		case !e.IsDir:
			if date := snapshot.DateFromFlatFile(e.Name); date != "" {
				seen[date] = true
			}
		}
	}

	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	r.cache.Set(cacheKey, dates, r.cacheTTL)
	return dates, nil
}

// LatestDate returns the most recent published date for dataset, or
// ErrNoSnapshots.
func (r *Reader) LatestDate(ctx context.Context, dataset string) (string, error) {
	dates, err := r.ListDates(ctx, dataset)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", fmt.Errorf("%w for dataset %q", ErrNoSnapshots, dataset)
	}
	return dates[len(dates)-1], nil
}

// Load reads the snapshot for dataset at date. The canonical dated
// directory is tried first, then the legacy flat file.
func (r *Reader) Load(ctx context.Context, dataset, date string) (*table.Table, error) {
	if _, err := snapshot.ParseDate(date); err != nil {
		return nil, err
	}

	payload, err := r.loadPayload(ctx, dataset, date)
	if err != nil {
		metrics.RecordReaderLoad(dataset, err)
		return nil, err
	}

	t, err := table.Read(bytes.NewReader(payload))
	metrics.RecordReaderLoad(dataset, err)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s/%s: %w", dataset, date, err)
	}
	return t, nil
}

func (r *Reader) loadPayload(ctx context.Context, dataset, date string) ([]byte, error) {
	logger := log.WithComponentFromContext(ctx, "reader")

	canonical := snapshot.DataObject(dataset, date)
	flat := snapshot.FlatDataObject(dataset, date)

	if r.blobs != nil {
		if payload, err := r.blobs.Get(canonical); err == nil {
			metrics.RecordCacheHit()
			return payload, nil
		}
	}

	for _, key := range []string{canonical, flat} {
		rc, err := r.backend.Open(ctx, key)
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", key, err)
		}
		payload, err := io.ReadAll(rc)
		cerr := rc.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}

		if r.blobs != nil && key == canonical {
			if err := r.blobs.Put(canonical, payload); err != nil {
				logger.Warn().Err(err).Str(log.FieldPath, canonical).Msg("blob cache put failed")
			}
		}
		return payload, nil
	}

	return nil, fmt.Errorf("snapshot %s/%s not found (tried %s and %s)", dataset, date, canonical, flat)
}

// LoadManifest reads the manifest for dataset at date. Legacy flat
// snapshots have no manifest, which surfaces as storage.ErrNotExist.
func (r *Reader) LoadManifest(ctx context.Context, dataset, date string) (*snapshot.Manifest, error) {
	cacheKey := "manifest/" + dataset + "/" + date
	if v, ok := r.cache.Get(cacheKey); ok {
		if m, ok := cachedManifest(v); ok {
			metrics.RecordCacheHit()
			return m, nil
		}
	}
	metrics.RecordCacheMiss()

	rc, err := r.backend.Open(ctx, snapshot.ManifestObject(dataset, date))
	if err != nil {
		return nil, fmt.Errorf("open manifest %s/%s: %w", dataset, date, err)
	}
	defer func() { _ = rc.Close() }()

	m, err := snapshot.DecodeManifest(rc)
	if err != nil {
		return nil, fmt.Errorf("decode manifest %s/%s: %w", dataset, date, err)
	}

	r.cache.Set(cacheKey, m, r.cacheTTL)
	return m, nil
}

// LatestSnapshot loads the most recent snapshot for dataset and
// reports the date it was taken.
func (r *Reader) LatestSnapshot(ctx context.Context, dataset string) (*table.Table, string, error) {
	date, err := r.LatestDate(ctx, dataset)
	if err != nil {
		return nil, "", err
	}
	t, err := r.Load(ctx, dataset, date)
	if err != nil {
		return nil, "", err
	}
	return t, date, nil
}

// cachedStrings recovers a []string from a cache value. Shared caches
// that round-trip through JSON hand back []any.
func cachedStrings(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func cachedManifest(v any) (*snapshot.Manifest, bool) {
	if m, ok := v.(*snapshot.Manifest); ok {
		return m, true
	}
	return nil, false
}
