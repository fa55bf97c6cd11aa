// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/table"
)

// csvSource reads a dataset from a local CSV file. The first record
// is the header.
type csvSource struct {
	name string
	path string
}

func newCSVSource(sc config.SourceConfig) (*csvSource, error) {
	return &csvSource{name: sc.Name, path: sc.Path}, nil
}

func (s *csvSource) Name() string { return s.name }

func (s *csvSource) Fetch(ctx context.Context) (*table.Table, string, error) {
	logger := log.WithComponentFromContext(ctx, "source.csv")

	f, err := os.Open(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.ReuseRecord = false

	header, err := r.Read()
	if err == io.EOF {
		return nil, "", fmt.Errorf("%s has no header row", s.path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read header: %w", err)
	}

	t := table.New(header...)
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("read record: %w", err)
		}
		row := make(table.Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		t.AppendRow(row)
	}

	logger.Info().
		Str(log.FieldDataset, s.name).
		Int(log.FieldRows, t.Len()).
		Msg("csv fetch complete")

	return t, fingerprint(s.path), nil
}
