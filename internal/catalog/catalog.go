// SPDX-License-Identifier: MIT

// Package catalog maintains a SQLite index of published snapshots.
// Storage stays the source of truth; the catalog exists so the API
// and CLI can answer listing queries without walking the backend,
// and it can always be rebuilt from storage with Reindex.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/datakettle/snapsvc/internal/snapshot"
)

// ErrNotFound is returned when a dataset has no catalog entries.
var ErrNotFound = errors.New("catalog: not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	dataset     TEXT NOT NULL,
	date        TEXT NOT NULL,
	rows        INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	query_sha   TEXT NOT NULL DEFAULT '',
	run_id      TEXT NOT NULL DEFAULT '',
	produced_at TEXT NOT NULL,
	indexed_at  TEXT NOT NULL,
	PRIMARY KEY (dataset, date)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_dataset_date ON snapshots (dataset, date DESC);
`

// Entry is one published snapshot as recorded in the catalog.
type Entry struct {
	Dataset    string    `json:"dataset"`
	Date       string    `json:"date"`
	Rows       int64     `json:"rows"`
	Bytes      int64     `json:"bytes"`
	QuerySHA   string    `json:"query_sha,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	ProducedAt time.Time `json:"produced_at"`
}

// Catalog wraps the SQLite snapshot index.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database at path and applies the
// schema. PRAGMAs go in the DSN so they hold for every pooled
// connection.
func Open(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open failed: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ping verifies the database connection. Used by readiness checks.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Upsert records a published snapshot, replacing any earlier entry
// for the same dataset and date.
func (c *Catalog) Upsert(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO snapshots (dataset, date, rows, bytes, query_sha, run_id, produced_at, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (dataset, date) DO UPDATE SET
	rows        = excluded.rows,
	bytes       = excluded.bytes,
	query_sha   = excluded.query_sha,
	run_id      = excluded.run_id,
	produced_at = excluded.produced_at,
	indexed_at  = excluded.indexed_at`

	_, err := c.db.ExecContext(ctx, q,
		e.Dataset, e.Date, e.Rows, e.Bytes, e.QuerySHA, e.RunID,
		e.ProducedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s/%s: %w", e.Dataset, e.Date, err)
	}
	return nil
}

// ListDatasets returns the dataset names present in the catalog,
// sorted ascending.
func (c *Catalog) ListDatasets(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT dataset FROM snapshots ORDER BY dataset`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scan dataset: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListDates returns the snapshot dates for a dataset, sorted
// ascending. Lexical order equals chronological order for the
// YYYY-MM-DD format.
func (c *Catalog) ListDates(ctx context.Context, dataset string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT date FROM snapshots WHERE dataset = ? ORDER BY date`, dataset)
	if err != nil {
		return nil, fmt.Errorf("catalog: list dates for %s: %w", dataset, err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("catalog: scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// Latest returns the most recent entry for a dataset, or ErrNotFound.
func (c *Catalog) Latest(ctx context.Context, dataset string) (Entry, error) {
	const q = `
SELECT dataset, date, rows, bytes, query_sha, run_id, produced_at
FROM snapshots WHERE dataset = ? ORDER BY date DESC LIMIT 1`

	var e Entry
	var producedAt string
	err := c.db.QueryRowContext(ctx, q, dataset).Scan(
		&e.Dataset, &e.Date, &e.Rows, &e.Bytes, &e.QuerySHA, &e.RunID, &producedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: dataset %s", ErrNotFound, dataset)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: latest for %s: %w", dataset, err)
	}
	e.ProducedAt, _ = time.Parse(time.RFC3339, producedAt)
	return e, nil
}

// Count returns the total number of cataloged snapshots.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

// Delete removes one entry. Used when a reindex finds a snapshot gone
// from storage.
func (c *Catalog) Delete(ctx context.Context, dataset, date string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE dataset = ? AND date = ?`, dataset, date)
	if err != nil {
		return fmt.Errorf("catalog: delete %s/%s: %w", dataset, date, err)
	}
	return nil
}

// entryFromManifest maps a snapshot manifest onto a catalog entry.
func entryFromManifest(m *snapshot.Manifest, date string, size int64) Entry {
	producedAt, err := m.ProducedAtTime()
	if err != nil {
		producedAt = time.Time{}
	}
	return Entry{
		Dataset:    m.Dataset,
		Date:       date,
		Rows:       int64(m.Rows),
		Bytes:      size,
		QuerySHA:   m.QuerySHA,
		RunID:      m.RunID,
		ProducedAt: producedAt,
	}
}
