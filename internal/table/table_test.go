// SPDX-License-Identifier: MIT

package table

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRowUnionsColumns(t *testing.T) {
	tbl := New("id", "name")
	tbl.AppendRow(Row{"id": "1", "name": "a"})
	tbl.AppendRow(Row{"id": "2", "name": "b", "state": "TX", "score": 3.0})

	assert.Equal(t, []string{"id", "name", "score", "state"}, tbl.Columns)
	assert.Equal(t, 2, tbl.Len())
}

func TestRename(t *testing.T) {
	tbl := New("Id", "Name")
	tbl.AppendRow(Row{"Id": "a1", "Name": "Alpha"})

	tbl.Rename(map[string]string{"Id": "account_id", "Name": "account_name"})

	assert.Equal(t, []string{"account_id", "account_name"}, tbl.Columns)
	assert.Equal(t, "a1", String(tbl.Rows[0], "account_id"))
	_, stillThere := tbl.Rows[0]["Id"]
	assert.False(t, stillThere, "old key should be removed")
}

func TestSortByDescAndDropDuplicates(t *testing.T) {
	tbl := New("AccountId", "CreatedDate")
	tbl.AppendRow(Row{"AccountId": "a", "CreatedDate": "2025-01-01"})
	tbl.AppendRow(Row{"AccountId": "a", "CreatedDate": "2025-03-01"})
	tbl.AppendRow(Row{"AccountId": "b", "CreatedDate": "2025-02-01"})

	tbl.SortByDesc("CreatedDate")
	latest := tbl.DropDuplicates("AccountId")

	require.Equal(t, 2, latest.Len())
	assert.Equal(t, "2025-03-01", String(latest.Rows[0], "CreatedDate"))
	assert.Equal(t, "a", String(latest.Rows[0], "AccountId"))
}

func TestCodecRoundTrip(t *testing.T) {
	tbl := New("id", "name", "meta")
	tbl.AppendRow(Row{"id": "0001", "name": "x", "meta": map[string]any{"k": "v"}})
	tbl.AppendRow(Row{"id": "0002", "name": "y", "meta": nil})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tbl))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, tbl.Columns, got.Columns)
	require.Equal(t, 2, got.Len())
	// Nested values are stringified by the codec.
	assert.Equal(t, `{"k":"v"}`, got.Rows[0]["meta"])
	assert.Equal(t, "0002", String(got.Rows[1], "id"))
}

func TestCodecReadsHeaderlessStreams(t *testing.T) {
	tbl := New()
	tbl.AppendRow(Row{"a": "1"})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tbl))

	got, err := Read(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(tbl.Rows, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanIDColumn(t *testing.T) {
	tbl := New("npi")
	tbl.AppendRow(Row{"npi": "1750505343"})
	tbl.AppendRow(Row{"npi": 99.0}) // numeric upstream value
	tbl.AppendRow(Row{"npi": "n/a"})
	tbl.AppendRow(Row{"npi": ""})

	dropped := CleanIDColumn(tbl, "npi", 10)

	assert.Equal(t, 2, dropped)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "1750505343", String(tbl.Rows[0], "npi"))
	assert.Equal(t, "0000000099", String(tbl.Rows[1], "npi"))
}

func TestTrimSpaceColumns(t *testing.T) {
	tbl := New("name", "note")
	tbl.AppendRow(Row{"name": "  Alpha ", "note": " keep "})

	TrimSpaceColumns(tbl, "name")

	assert.Equal(t, "Alpha", String(tbl.Rows[0], "name"))
	assert.Equal(t, " keep ", String(tbl.Rows[0], "note"))
}

func TestFormatFieldsUnknownDataset(t *testing.T) {
	err := FormatFields("nope", New(), map[string]map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset")
}

func TestLeftJoin(t *testing.T) {
	acc := New("account_id", "name")
	acc.AppendRow(Row{"account_id": "a1", "name": "Alpha"})
	acc.AppendRow(Row{"account_id": "a2", "name": "Beta"})

	hx := New("AccountId", "name", "NewValue")
	hx.AppendRow(Row{"AccountId": "a1", "name": "hx-name", "NewValue": "Initial Credentialing"})

	joined := LeftJoin(acc, hx, "account_id", "AccountId", "hx_")

	require.Equal(t, 2, joined.Len())
	assert.Equal(t, "Initial Credentialing", String(joined.Rows[0], "NewValue"))
	// Colliding column gets the prefix; the left value survives untouched.
	assert.Equal(t, "Alpha", String(joined.Rows[0], "name"))
	assert.Equal(t, "hx-name", String(joined.Rows[0], "hx_name"))
	// Unmatched left row keeps its columns with no right values.
	assert.Equal(t, "", String(joined.Rows[1], "NewValue"))
}
