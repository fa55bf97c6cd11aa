// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendContract exercises behavior every backend must share.
func backendContract(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	// Missing prefix lists empty, missing key errors with ErrNotExist.
	entries, err := b.List(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = b.Open(ctx, "nope/file")
	require.ErrorIs(t, err, ErrNotExist)

	// Put then read back.
	require.NoError(t, b.Put(ctx, "ds/2025-08-16/data.bin", strings.NewReader("hello")))
	rc, err := b.Open(ctx, "ds/2025-08-16/data.bin")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	// Stat both ways.
	ok, err := b.Stat(ctx, "ds/2025-08-16/data.bin")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.Stat(ctx, "ds/2025-08-16/absent")
	require.NoError(t, err)
	assert.False(t, ok)

	// Listing sees the date folder as a dir entry.
	entries, err = b.List(ctx, "ds")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-08-16", entries[0].Name)
	assert.True(t, entries[0].IsDir)

	// Overwrite replaces content.
	require.NoError(t, b.Put(ctx, "ds/2025-08-16/data.bin", strings.NewReader("v2")))
	rc, err = b.Open(ctx, "ds/2025-08-16/data.bin")
	require.NoError(t, err)
	data, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "v2", string(data))

	// Delete then gone.
	require.NoError(t, b.Delete(ctx, "ds/2025-08-16/data.bin"))
	require.ErrorIs(t, b.Delete(ctx, "ds/2025-08-16/data.bin"), ErrNotExist)
}

func TestLocalBackendContract(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer b.Close()
	backendContract(t, b)
}

func TestMemoryBackendContract(t *testing.T) {
	backendContract(t, NewMemory())
}

func TestLocalConfinement(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	err = b.Put(ctx, "../escape", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes storage root")

	_, err = b.Open(ctx, "/etc/passwd")
	require.Error(t, err)
}

func TestLocalPutIsAtomicOnFailure(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "ds/file", strings.NewReader("stable")))

	// A reader that fails mid-copy must not clobber the published object.
	err = b.Put(ctx, "ds/file", failingReader{})
	require.Error(t, err)

	rc, err := b.Open(ctx, "ds/file")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "stable", string(data))

	// No temp litter next to the object.
	entries, err := os.ReadDir(filepath.Join(dir, "ds"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file", entries[0].Name())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestCoerceBase(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "s3://bucket/prefix/", want: "s3://bucket/prefix"},
		{in: "file:///srv/snapshots", want: "file:///srv/snapshots"},
		{in: "mem://test", want: "mem://test"},
		{in: `"file:///quoted"`, want: "file:///quoted"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := CoerceBase(tt.in)
		if tt.wantErr {
			require.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}

	// Relative paths become absolute file URIs.
	got, err := CoerceBase("data/snapshots")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "file://"), got)
	assert.True(t, strings.HasSuffix(got, "/data/snapshots"), got)
}

func TestSplitS3(t *testing.T) {
	bucket, prefix, err := splitS3("s3://bucket/some/prefix")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "some/prefix", prefix)

	bucket, prefix, err = splitS3("s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "", prefix)

	_, _, err = splitS3("s3://")
	require.Error(t, err)
}

func TestFromURISchemes(t *testing.T) {
	local, err := FromURI(t.TempDir(), S3Options{})
	require.NoError(t, err)
	defer local.Close()

	memA, err := FromURI("mem://shared", S3Options{})
	require.NoError(t, err)
	memB, err := FromURI("mem://shared", S3Options{})
	require.NoError(t, err)
	assert.Same(t, memA, memB, "mem:// backends should be shared per name")

	_, err = FromURI("ftp://nope", S3Options{})
	require.Error(t, err)
}

type failingBackend struct{}

func (failingBackend) List(context.Context, string) ([]Entry, error) {
	return nil, errors.New("disk on fire")
}

func (failingBackend) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("disk on fire")
}

func (failingBackend) Put(context.Context, string, io.Reader) error {
	return errors.New("disk on fire")
}

func (failingBackend) Stat(context.Context, string) (bool, error) {
	return false, errors.New("disk on fire")
}

func (failingBackend) Delete(context.Context, string) error {
	return fmt.Errorf("delete %q: %w", "gone", ErrNotExist)
}

func (failingBackend) Close() error { return nil }

func storageErrorCount(t *testing.T, op string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "snapsvc_storage_errors_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "op" && l.GetValue() == op {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestInstrumentCountsFailures(t *testing.T) {
	listBefore := storageErrorCount(t, "list")
	putBefore := storageErrorCount(t, "put")
	deleteBefore := storageErrorCount(t, "delete")

	b := instrument(failingBackend{})
	ctx := context.Background()

	_, err := b.List(ctx, "datasets")
	require.Error(t, err)
	require.Error(t, b.Put(ctx, "k", strings.NewReader("v")))

	// Missing keys are expected during lookups, not storage failures.
	require.ErrorIs(t, b.Delete(ctx, "k"), ErrNotExist)

	assert.Equal(t, listBefore+1, storageErrorCount(t, "list"))
	assert.Equal(t, putBefore+1, storageErrorCount(t, "put"))
	assert.Equal(t, deleteBefore, storageErrorCount(t, "delete"))
}
