// SPDX-License-Identifier: MIT

// Package table implements the in-memory tabular value snapshots are made
// of: ordered columns plus rows of loosely typed values.
package table

import (
	"fmt"
	"sort"
)

// Row maps column names to values. Values are JSON-representable: strings,
// numbers, bools, nil.
type Row map[string]any

// Table is an ordered set of columns with rows. Column order is stable:
// first-seen order during construction, preserved by the codec.
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// HasColumn reports whether the column exists.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AppendRow adds a row, unioning any new keys into the column list in
// first-seen order.
func (t *Table) AppendRow(row Row) {
	// Collect unseen keys deterministically.
	var unseen []string
	for k := range row {
		if !t.HasColumn(k) {
			unseen = append(unseen, k)
		}
	}
	sort.Strings(unseen)
	t.Columns = append(t.Columns, unseen...)
	t.Rows = append(t.Rows, row)
}

// Rename renames columns according to mapping. Columns absent from the
// mapping keep their name. Row keys are rewritten accordingly.
func (t *Table) Rename(mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	for i, c := range t.Columns {
		if to, ok := mapping[c]; ok {
			t.Columns[i] = to
		}
	}
	for _, row := range t.Rows {
		for from, to := range mapping {
			if v, ok := row[from]; ok {
				delete(row, from)
				row[to] = v
			}
		}
	}
}

// Filter returns a new table containing the rows for which keep returns true.
// Column order is shared with the receiver.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// SortByDesc sorts rows descending by the string form of the given column.
// The sort is stable so ties keep their input order.
func (t *Table) SortByDesc(column string) {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return String(t.Rows[i], column) > String(t.Rows[j], column)
	})
}

// DropDuplicates keeps only the first row per distinct value of column.
func (t *Table) DropDuplicates(column string) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	seen := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		key := String(row, column)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// String returns the value of column in row as a string. Numbers are
// formatted compactly; nil and missing values become "".
func String(row Row, column string) string {
	v, ok := row[column]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// JSON numbers decode as float64; render integers without exponent.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
