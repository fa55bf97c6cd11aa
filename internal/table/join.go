// SPDX-License-Identifier: MIT

package table

// LeftJoin joins right onto left by matching string forms of leftKey and
// rightKey. Every left row appears exactly once; when several right rows
// share a key the first wins (dedupe before joining if another row should).
// Right-side columns that collide with a left column are prefixed with
// rightPrefix.
func LeftJoin(left, right *Table, leftKey, rightKey, rightPrefix string) *Table {
	byKey := make(map[string]Row, len(right.Rows))
	for _, row := range right.Rows {
		key := String(row, rightKey)
		if key == "" {
			continue
		}
		if _, exists := byKey[key]; !exists {
			byKey[key] = row
		}
	}

	// Resolve right column names once.
	rightName := make(map[string]string, len(right.Columns))
	out := &Table{Columns: append([]string(nil), left.Columns...)}
	for _, c := range right.Columns {
		name := c
		if left.HasColumn(c) {
			name = rightPrefix + c
		}
		rightName[c] = name
		out.Columns = append(out.Columns, name)
	}

	for _, lrow := range left.Rows {
		merged := make(Row, len(lrow)+len(right.Columns))
		for k, v := range lrow {
			merged[k] = v
		}
		if rrow, ok := byKey[String(lrow, leftKey)]; ok {
			for k, v := range rrow {
				merged[rightName[k]] = v
			}
		}
		out.Rows = append(out.Rows, merged)
	}
	return out
}
