// SPDX-License-Identifier: MIT

// Package writer publishes dataset snapshots. One run fetches every
// registered dataset, writes its payload and manifest, and finishes
// each snapshot with a success marker. Readers treat a snapshot as
// published only once the marker exists, so it is always written last.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/datakettle/snapsvc/internal/catalog"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/metrics"
	"github.com/datakettle/snapsvc/internal/snapshot"
	"github.com/datakettle/snapsvc/internal/source"
	"github.com/datakettle/snapsvc/internal/storage"
	"github.com/datakettle/snapsvc/internal/table"
)

const (
	minConcurrency = 1
	maxConcurrency = 16
)

// Transform optionally reshapes a fetched table before it is written.
// Used for per-dataset column renames and merges.
type Transform func(dataset string, t *table.Table) (*table.Table, error)

// ErrRunInProgress is returned by Run when another run in this
// process has not finished yet.
var ErrRunInProgress = errors.New("snapshot run already in progress")

// running serializes runs process-wide. Scheduled, signal-triggered
// and HTTP-triggered runs all go through Run, so two concurrent
// same-date publishes can never interleave their objects.
var running atomic.Bool

// Options configures one writer run.
type Options struct {
	Registry    *source.Registry
	BaseURI     string // coerced at run time, not construction time
	S3          storage.S3Options
	Date        string // snapshot date, defaults to today in UTC
	Version     string
	Transform   Transform        // optional
	Catalog     *catalog.Catalog // optional
	Concurrency int
}

// Summary describes the outcome of one dataset within a run.
type Summary struct {
	Dataset string
	Rows    int
	Columns int
	Bytes   int64
	Err     error
	Elapsed time.Duration
}

// Result holds the outcome of a full run.
type Result struct {
	RunID     string
	Date      string
	BaseURI   string
	Summaries []Summary
}

// Failed returns the number of datasets that did not publish.
func (r *Result) Failed() int {
	n := 0
	for _, s := range r.Summaries {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Run publishes one snapshot per registered dataset. Datasets run
// with bounded parallelism and a failed dataset never aborts the
// rest of the run. The returned error is non-nil only when the run
// could not start at all. At most one run is active per process;
// Run returns ErrRunInProgress while another run is still going.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if !running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer running.Store(false)

	base, err := storage.CoerceBase(opts.BaseURI)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	backend, err := storage.FromURI(base, opts.S3)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	defer func() { _ = backend.Close() }()

	date := opts.Date
	if date == "" {
		date = time.Now().UTC().Format(snapshot.DateLayout)
	}
	if _, err := snapshot.ParseDate(date); err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)
	logger := log.WithComponentFromContext(ctx, "writer")

	names := opts.Registry.Names()
	logger.Info().
		Str(log.FieldEvent, "run.start").
		Str(log.FieldBaseURI, base).
		Str(log.FieldDate, date).
		Int("datasets", len(names)).
		Msg("starting snapshot run")

	metrics.RecordWriterRunStart()
	defer metrics.RecordWriterRunEnd()

	concurrency := clampConcurrency(opts.Concurrency)

	var mu sync.Mutex
	summaries := make([]Summary, 0, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, name := range names {
		g.Go(func() error {
			s := publishOne(gctx, backend, base, date, runID, name, opts)
			mu.Lock()
			summaries = append(summaries, s)
			mu.Unlock()
			return nil
		})
	}

	// Workers swallow per-dataset errors, only ctx cancellation
	// surfaces here.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Dataset < summaries[j].Dataset
	})

	res := &Result{RunID: runID, Date: date, BaseURI: base, Summaries: summaries}

	logger.Info().
		Str(log.FieldEvent, "run.done").
		Int("datasets", len(summaries)).
		Int("failed", res.Failed()).
		Msg("snapshot run finished")

	return res, nil
}

func publishOne(ctx context.Context, backend storage.Backend, base, date, runID, name string, opts Options) Summary {
	start := time.Now()
	ctx = log.ContextWithDataset(ctx, name)
	logger := log.WithComponentFromContext(ctx, "writer")

	s := Summary{Dataset: name}

	src, ok := opts.Registry.Get(name)
	if !ok {
		s.Err = fmt.Errorf("no source for dataset %q", name)
		return s
	}

	t, querySHA, err := src.Fetch(ctx)
	if err != nil {
		s.Err = fmt.Errorf("fetch: %w", err)
		finishDataset(logger, &s, start)
		return s
	}

	if opts.Transform != nil {
		t, err = opts.Transform(name, t)
		if err != nil {
			s.Err = fmt.Errorf("transform: %w", err)
			finishDataset(logger, &s, start)
			return s
		}
	}

	// An empty table means the source produced nothing. Publishing it
	// would shadow the previous good snapshot for this date.
	if t.Empty() {
		s.Err = fmt.Errorf("dataset %q produced an empty table", name)
		finishDataset(logger, &s, start)
		return s
	}

	var payload bytes.Buffer
	if err := table.Write(&payload, t); err != nil {
		s.Err = fmt.Errorf("encode: %w", err)
		finishDataset(logger, &s, start)
		return s
	}

	s.Rows = t.Len()
	s.Columns = len(t.Columns)
	s.Bytes = int64(payload.Len())

	if err := backend.Put(ctx, snapshot.DataObject(name, date), &payload); err != nil {
		s.Err = fmt.Errorf("put data: %w", err)
		finishDataset(logger, &s, start)
		return s
	}

	host, _ := os.Hostname()
	m := &snapshot.Manifest{
		Dataset:     name,
		Rows:        t.Len(),
		Columns:     t.Columns,
		ProducedFor: date,
		ProducedAt:  time.Now().UTC().Format(time.RFC3339),
		Host:        host,
		QuerySHA:    querySHA,
		BaseURI:     base,
		RunID:       runID,
		Version:     opts.Version,
	}
	var mbuf bytes.Buffer
	if err := m.Encode(&mbuf); err != nil {
		s.Err = fmt.Errorf("encode manifest: %w", err)
		finishDataset(logger, &s, start)
		return s
	}
	if err := backend.Put(ctx, snapshot.ManifestObject(name, date), &mbuf); err != nil {
		s.Err = fmt.Errorf("put manifest: %w", err)
		finishDataset(logger, &s, start)
		return s
	}

	// The success marker is written only after data and manifest are
	// in place.
	if err := backend.Put(ctx, snapshot.SuccessObject(name, date), strings.NewReader("")); err != nil {
		s.Err = fmt.Errorf("put success marker: %w", err)
		finishDataset(logger, &s, start)
		return s
	}

	if opts.Catalog != nil {
		entry := catalog.Entry{
			Dataset:    name,
			Date:       date,
			Rows:       int64(t.Len()),
			Bytes:      s.Bytes,
			QuerySHA:   querySHA,
			RunID:      runID,
			ProducedAt: time.Now().UTC(),
		}
		if err := opts.Catalog.Upsert(ctx, entry); err != nil {
			metrics.RecordCatalogError()
			logger.Warn().Err(err).Msg("catalog upsert failed")
		}
	}

	finishDataset(logger, &s, start)
	return s
}

func finishDataset(logger zerolog.Logger, s *Summary, start time.Time) {
	s.Elapsed = time.Since(start)
	metrics.RecordSnapshotRun(s.Dataset, s.Err, s.Rows, s.Bytes, s.Elapsed)

	if s.Err != nil {
		logger.Error().
			Err(s.Err).
			Str(log.FieldEvent, "dataset.failed").
			Msg("snapshot failed")
		return
	}
	logger.Info().
		Str(log.FieldEvent, "dataset.published").
		Int(log.FieldRows, s.Rows).
		Int(log.FieldColumns, s.Columns).
		Int64("bytes", s.Bytes).
		Msg("snapshot published")
}

func clampConcurrency(n int) int {
	if n < minConcurrency {
		return 4
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}
