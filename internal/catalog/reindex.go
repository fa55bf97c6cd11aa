// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"fmt"

	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/snapshot"
	"github.com/datakettle/snapsvc/internal/storage"
)

// ReindexResult summarizes one catalog rebuild.
type ReindexResult struct {
	Indexed int
	Removed int
	Skipped int
}

// Reindex walks the storage backend and rebuilds the catalog from
// what is actually published. Date directories without a success
// marker are skipped. Entries whose snapshot vanished from storage
// are removed.
func (c *Catalog) Reindex(ctx context.Context, backend storage.Backend) (ReindexResult, error) {
	logger := log.WithComponentFromContext(ctx, "catalog")

	var res ReindexResult
	seen := make(map[string]map[string]bool)

	roots, err := backend.List(ctx, "")
	if err != nil {
		return res, fmt.Errorf("catalog: list root: %w", err)
	}

	for _, root := range roots {
		if !root.IsDir {
			continue
		}
		dataset := root.Name
		seen[dataset] = make(map[string]bool)

		children, err := backend.List(ctx, dataset+"/")
		if err != nil {
			return res, fmt.Errorf("catalog: list %s: %w", dataset, err)
		}

		for _, child := range children {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			switch {
			case child.IsDir && snapshot.IsDateDir(child.Name):
				date := child.Name
				ok, err := c.indexDateDir(ctx, backend, dataset, date)
				if err != nil {
					return res, err
				}
				if !ok {
					res.Skipped++
					continue
				}
				seen[dataset][date] = true
				res.Indexed++

			case !child.IsDir:
				date := snapshot.DateFromFlatFile(child.Name)
				if date == "" {
					continue
				}
				// Legacy flat snapshots have no manifest to read.
				entry := Entry{Dataset: dataset, Date: date, Bytes: child.Size}
				if err := c.Upsert(ctx, entry); err != nil {
					return res, err
				}
				seen[dataset][date] = true
				res.Indexed++
			}
		}
	}

	removed, err := c.pruneStale(ctx, seen)
	if err != nil {
		return res, err
	}
	res.Removed = removed

	logger.Info().
		Str(log.FieldEvent, "catalog.reindex").
		Int("indexed", res.Indexed).
		Int("removed", res.Removed).
		Int("skipped", res.Skipped).
		Msg("catalog reindexed from storage")

	return res, nil
}

// indexDateDir catalogs one canonical snapshot directory. Returns
// false when the directory has no success marker.
func (c *Catalog) indexDateDir(ctx context.Context, backend storage.Backend, dataset, date string) (bool, error) {
	published, err := backend.Stat(ctx, snapshot.SuccessObject(dataset, date))
	if err != nil {
		return false, fmt.Errorf("catalog: stat success marker %s/%s: %w", dataset, date, err)
	}
	if !published {
		return false, nil
	}

	entry := Entry{Dataset: dataset, Date: date}

	rc, err := backend.Open(ctx, snapshot.ManifestObject(dataset, date))
	if err == nil {
		m, derr := snapshot.DecodeManifest(rc)
		_ = rc.Close()
		if derr == nil {
			entry = entryFromManifest(m, date, 0)
		}
	}

	entries, err := backend.List(ctx, dataset+"/"+date+"/")
	if err != nil {
		return false, fmt.Errorf("catalog: list %s/%s: %w", dataset, date, err)
	}
	for _, e := range entries {
		if e.Name == date+snapshot.DataSuffix {
			entry.Bytes = e.Size
		}
	}

	if err := c.Upsert(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// pruneStale removes catalog rows whose snapshots were not seen in
// the latest storage walk.
func (c *Catalog) pruneStale(ctx context.Context, seen map[string]map[string]bool) (int, error) {
	datasets, err := c.ListDatasets(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, dataset := range datasets {
		dates, err := c.ListDates(ctx, dataset)
		if err != nil {
			return removed, err
		}
		for _, date := range dates {
			if seen[dataset][date] {
				continue
			}
			if err := c.Delete(ctx, dataset, date); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
