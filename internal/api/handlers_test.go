// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/health"
	"github.com/datakettle/snapsvc/internal/reader"
	"github.com/datakettle/snapsvc/internal/snapshot"
	"github.com/datakettle/snapsvc/internal/storage"
	"github.com/datakettle/snapsvc/internal/table"
	"github.com/datakettle/snapsvc/internal/writer"
)

func publishTestSnapshot(t *testing.T, backend storage.Backend, dataset, date string) {
	t.Helper()
	ctx := context.Background()

	tbl := table.New()
	tbl.AppendRow(table.Row{"id": "1", "name": "Alpha"})
	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf, tbl))
	require.NoError(t, backend.Put(ctx, snapshot.DataObject(dataset, date), &buf))

	m := &snapshot.Manifest{
		Dataset:     dataset,
		Rows:        1,
		Columns:     []string{"id", "name"},
		ProducedFor: date,
		ProducedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	var mb bytes.Buffer
	require.NoError(t, m.Encode(&mb))
	require.NoError(t, backend.Put(ctx, snapshot.ManifestObject(dataset, date), &mb))
	require.NoError(t, backend.Put(ctx, snapshot.SuccessObject(dataset, date), strings.NewReader("")))
}

func newTestServer(t *testing.T, cfg config.AppConfig, refresh RefreshFunc) (*Server, storage.Backend) {
	t.Helper()

	backend := storage.NewMemory()
	srv := New(Deps{
		Config:  cfg,
		Reader:  reader.New(backend, reader.Options{}),
		Health:  health.NewManager("test", false),
		Refresh: refresh,
	})
	return srv, backend
}

func TestListDatasets(t *testing.T) {
	srv, backend := newTestServer(t, config.AppConfig{}, nil)
	publishTestSnapshot(t, backend, "providers", "2025-05-01")
	publishTestSnapshot(t, backend, "facilities", "2025-05-01")

	req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Datasets []string `json:"datasets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"facilities", "providers"}, body.Datasets)
}

func TestListDates(t *testing.T) {
	srv, backend := newTestServer(t, config.AppConfig{}, nil)
	publishTestSnapshot(t, backend, "providers", "2025-05-01")
	publishTestSnapshot(t, backend, "providers", "2025-05-02")

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/providers/dates", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Dataset string   `json:"dataset"`
		Dates   []string `json:"dates"`
		Latest  string   `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "providers", body.Dataset)
	assert.Equal(t, []string{"2025-05-01", "2025-05-02"}, body.Dates)
	assert.Equal(t, "2025-05-02", body.Latest)
}

func TestListDatesUnknownDataset(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/ghost/dates", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestManifest(t *testing.T) {
	srv, backend := newTestServer(t, config.AppConfig{}, nil)
	publishTestSnapshot(t, backend, "providers", "2025-05-01")
	publishTestSnapshot(t, backend, "providers", "2025-05-02")

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/providers/latest", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var m snapshot.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "providers", m.Dataset)
	assert.Equal(t, "2025-05-02", m.ProducedFor)
}

func TestSnapshotDownload(t *testing.T) {
	srv, backend := newTestServer(t, config.AppConfig{}, nil)
	publishTestSnapshot(t, backend, "providers", "2025-05-01")

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/providers/snapshots/2025-05-01", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))

	tbl, err := table.Read(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "Alpha", tbl.Rows[0]["name"])
}

func TestSnapshotDownloadBadDate(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/providers/snapshots/yesterday", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	srv, backend := newTestServer(t, config.AppConfig{APIToken: "sekrit"}, nil)
	publishTestSnapshot(t, backend, "providers", "2025-05-01")

	req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{APIToken: "sekrit"}, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRefreshSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	refresh := func(ctx context.Context, only []string) (*writer.Result, error) {
		close(started)
		<-release
		return &writer.Result{RunID: "run-1", Date: "2025-05-01"}, nil
	}

	srv, _ := newTestServer(t, config.AppConfig{}, refresh)
	router := srv.Router()

	var wg sync.WaitGroup
	wg.Add(1)
	first := httptest.NewRecorder()
	go func() {
		defer wg.Done()
		router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	}()

	<-started
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusConflict, second.Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)

	var body struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
}

func TestRefreshOnlyParam(t *testing.T) {
	var got []string
	refresh := func(ctx context.Context, only []string) (*writer.Result, error) {
		got = only
		return &writer.Result{RunID: "run-2", Date: "2025-05-01"}, nil
	}

	srv, _ := newTestServer(t, config.AppConfig{}, refresh)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh?only=providers,facilities", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"providers", "facilities"}, got)
}

func TestRefreshUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
