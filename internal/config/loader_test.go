// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "v0test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "file://./data/snapshots", cfg.BaseURI)
	assert.Equal(t, ":8080", cfg.APIListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 4, cfg.WriterConcurrency)
	assert.Equal(t, "v0test", cfg.Version)
	assert.True(t, filepath.IsAbs(cfg.DataDir), "DataDir should be absolute")
	assert.Equal(t, filepath.Join(cfg.DataDir, "catalog.db"), cfg.CatalogPath)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  baseUri: file:///srv/snapshots
api:
  listenAddr: ":9999"
writer:
  schedule: "03:30"
  concurrency: 2
sources:
  - name: enrollments
    kind: csv
    path: /data/enrollments.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := NewLoader(path, "v0test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "file:///srv/snapshots", cfg.BaseURI)
	assert.Equal(t, ":9999", cfg.APIListenAddr)
	assert.Equal(t, "03:30", cfg.ScheduleTime)
	assert.Equal(t, 2, cfg.WriterConcurrency)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "enrollments", cfg.Sources[0].Name)
	assert.Equal(t, "csv", cfg.Sources[0].Kind)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  baseUri: file:///from-file\n"), 0o600))

	t.Setenv("SNAPSVC_BASE_URI", "s3://bucket/prefix")

	loader := NewLoader(path, "v0test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "s3://bucket/prefix", cfg.BaseURI)
	_, consumed := loader.ConsumedEnvKeys["SNAPSVC_BASE_URI"]
	assert.True(t, consumed, "loader should track consumed env keys")
}

func TestLoadStrictRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bouquet: premium\n"), 0o600))

	loader := NewLoader(path, "v0test")
	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	loader := NewLoader(path, "v0test")
	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML supported")
}

func TestValidateSources(t *testing.T) {
	tests := []struct {
		name    string
		src     SourceConfig
		wantErr string
	}{
		{
			name:    "invalid dataset name",
			src:     SourceConfig{Name: "Bad Name", Kind: "csv", Path: "x.csv"},
			wantErr: "invalid dataset name",
		},
		{
			name:    "rest without url",
			src:     SourceConfig{Name: "payees", Kind: "rest"},
			wantErr: "requires url",
		},
		{
			name:    "sql without query",
			src:     SourceConfig{Name: "accounts", Kind: "sql", DBPath: "x.db"},
			wantErr: "requires query",
		},
		{
			name:    "unknown kind",
			src:     SourceConfig{Name: "foo", Kind: "soap"},
			wantErr: "unknown source kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{
				BaseURI: "file:///tmp/snapshots",
				Sources: []SourceConfig{tt.src},
			}
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateDuplicateDataset(t *testing.T) {
	cfg := AppConfig{
		BaseURI: "file:///tmp/snapshots",
		Sources: []SourceConfig{
			{Name: "enrollments", Kind: "csv", Path: "a.csv"},
			{Name: "enrollments", Kind: "csv", Path: "b.csv"},
		},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate dataset")
}

func TestValidateSchedule(t *testing.T) {
	cfg := AppConfig{BaseURI: "file:///x", ScheduleTime: "25:00"}
	require.Error(t, Validate(cfg))

	cfg.ScheduleTime = "04:15"
	require.NoError(t, Validate(cfg))
}

func TestLoadDotenvSearchesParents(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested", "deeper")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SNAPSVC_DOTENV_PROBE=from-dotenv\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(sub))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("SNAPSVC_DOTENV_PROBE", "") // register cleanup, then unset
	require.NoError(t, os.Unsetenv("SNAPSVC_DOTENV_PROBE"))

	require.NoError(t, LoadDotenv(""))
	assert.Equal(t, "from-dotenv", os.Getenv("SNAPSVC_DOTENV_PROBE"))
}
