// SPDX-License-Identifier: MIT

package table

import (
	"fmt"
	"strings"
	"unicode"
)

// CleanIDColumn normalizes an identifier column in place: strips all
// non-digit characters and zero-pads the remainder to width. Rows whose
// value has no digits at all are dropped, since a blank identifier cannot
// be joined on. Returns the number of rows dropped.
func CleanIDColumn(t *Table, column string, width int) int {
	if !t.HasColumn(column) {
		return 0
	}
	kept := t.Rows[:0]
	dropped := 0
	for _, row := range t.Rows {
		digits := onlyDigits(String(row, column))
		if digits == "" {
			dropped++
			continue
		}
		if len(digits) < width {
			digits = strings.Repeat("0", width-len(digits)) + digits
		}
		row[column] = digits
		kept = append(kept, row)
	}
	t.Rows = kept
	return dropped
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TrimSpaceColumns trims surrounding whitespace on string values of the
// given columns (all string columns when none are named).
func TrimSpaceColumns(t *Table, columns ...string) {
	match := func(string) bool { return true }
	if len(columns) > 0 {
		set := make(map[string]struct{}, len(columns))
		for _, c := range columns {
			set[c] = struct{}{}
		}
		match = func(c string) bool {
			_, ok := set[c]
			return ok
		}
	}
	for _, row := range t.Rows {
		for k, v := range row {
			if !match(k) {
				continue
			}
			if s, ok := v.(string); ok {
				row[k] = strings.TrimSpace(s)
			}
		}
	}
}

// FormatFields applies a per-dataset column rename map. Unknown datasets
// are an error so a typo'd name fails loudly instead of silently keeping
// raw upstream column names.
func FormatFields(dataset string, t *Table, renames map[string]map[string]string) error {
	mapping, ok := renames[dataset]
	if !ok {
		return fmt.Errorf("unknown dataset %q in rename registry", dataset)
	}
	t.Rename(mapping)
	return nil
}
