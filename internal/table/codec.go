// SPDX-License-Identifier: MIT

package table

import (
	"bufio"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// header is the first NDJSON line of the codec. It pins the column order so
// a decoded table round-trips exactly.
type header struct {
	Columns []string `json:"columns"`
}

// Write encodes the table as gzip'd NDJSON: a header line with the column
// order followed by one JSON object per row.
func Write(w io.Writer, t *Table) error {
	zw := gzip.NewWriter(w)
	enc := json.NewEncoder(zw)

	if err := enc.Encode(header{Columns: t.Columns}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i, row := range t.Rows {
		safe := make(Row, len(row))
		for k, v := range row {
			safe[k] = jsonSafe(v)
		}
		if err := enc.Encode(safe); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return nil
}

// Read decodes a table written by Write. It also accepts streams without a
// header line (plain NDJSON exports); column order is then first-seen.
func Read(r io.Reader) (*Table, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	t := &Table{}
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var h header
			if err := json.Unmarshal(line, &h); err == nil && h.Columns != nil {
				t.Columns = h.Columns
				continue
			}
		}
		var row Row
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", len(t.Rows)+1, err)
		}
		t.AppendRow(row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshot data: %w", err)
	}
	return t, nil
}

// jsonSafe converts values the encoder would choke on or that do not
// survive a round trip: nested structures become JSON strings, raw bytes
// become UTF-8 text or base64.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return base64.StdEncoding.EncodeToString(x)
	case map[string]any, []any:
		buf, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(buf)
	default:
		return v
	}
}
