// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // Pure Go driver

	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/table"
)

// sqlSource runs a query against a local SQLite database and exports
// the result set as a table.
type sqlSource struct {
	name      string
	dbPath    string
	query     string
	queryFile string
}

func newSQLSource(sc config.SourceConfig) (*sqlSource, error) {
	return &sqlSource{
		name:      sc.Name,
		dbPath:    sc.DBPath,
		query:     sc.Query,
		queryFile: sc.QueryFile,
	}, nil
}

func (s *sqlSource) Name() string { return s.name }

func (s *sqlSource) Fetch(ctx context.Context) (*table.Table, string, error) {
	logger := log.WithComponentFromContext(ctx, "source.sql")

	query, err := s.resolveQuery()
	if err != nil {
		return nil, "", err
	}

	// modernc.org/sqlite supports _pragma in the DSN.
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(ON)", s.dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", s.dbPath, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, "", fmt.Errorf("columns: %w", err)
	}

	t := table.New(cols...)
	values := make([]any, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, "", fmt.Errorf("scan: %w", err)
		}
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeSQLValue(values[i])
		}
		t.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate: %w", err)
	}

	logger.Info().
		Str(log.FieldDataset, s.name).
		Int(log.FieldRows, t.Len()).
		Msg("sql fetch complete")

	return t, fingerprint(query), nil
}

func (s *sqlSource) resolveQuery() (string, error) {
	if s.query != "" {
		return s.query, nil
	}
	data, err := os.ReadFile(s.queryFile)
	if err != nil {
		return "", fmt.Errorf("read query file: %w", err)
	}
	q := strings.TrimSpace(string(data))
	if q == "" {
		return "", fmt.Errorf("query file %s is empty", s.queryFile)
	}
	return q, nil
}

func normalizeSQLValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		return float64(x)
	default:
		return v
	}
}
