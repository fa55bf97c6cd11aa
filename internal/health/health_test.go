// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakettle/snapsvc/internal/storage"
)

type stubChecker struct {
	name   string
	result CheckResult
}

func (s *stubChecker) Name() string                      { return s.name }
func (s *stubChecker) Check(context.Context) CheckResult { return s.result }

func TestReadyAllHealthy(t *testing.T) {
	m := NewManager("test", false)
	m.RegisterChecker(&stubChecker{name: "a", result: CheckResult{Status: StatusHealthy}})

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
}

func TestReadyUnhealthyComponent(t *testing.T) {
	m := NewManager("test", false)
	m.RegisterChecker(&stubChecker{name: "a", result: CheckResult{Status: StatusHealthy}})
	m.RegisterChecker(&stubChecker{name: "b", result: CheckResult{Status: StatusUnhealthy, Error: "down"}})

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadyDegradedComponent(t *testing.T) {
	degraded := &stubChecker{name: "catalog", result: CheckResult{Status: StatusDegraded}}

	lax := NewManager("test", false)
	lax.RegisterChecker(degraded)
	assert.True(t, lax.Ready(context.Background()).Ready)

	strict := NewManager("test", true)
	strict.RegisterChecker(degraded)
	assert.False(t, strict.Ready(context.Background()).Ready)
}

func TestServeHealthAlways200(t *testing.T) {
	m := NewManager("1.0.0", false)
	m.RegisterChecker(&stubChecker{name: "a", result: CheckResult{Status: StatusUnhealthy}})

	req := httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil)
	rec := httptest.NewRecorder()
	m.ServeHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
}

func TestServeReady503WhenNotReady(t *testing.T) {
	m := NewManager("test", false)
	m.RegisterChecker(&stubChecker{name: "a", result: CheckResult{Status: StatusUnhealthy}})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	m.ServeReady(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStorageChecker(t *testing.T) {
	c := NewStorageChecker(storage.NewMemory())
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestCatalogCheckerDegradesOnFailure(t *testing.T) {
	ok := NewCatalogChecker(&stubPinger{})
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	broken := NewCatalogChecker(&stubPinger{err: errors.New("locked")})
	res := broken.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "locked", res.Error)
}

func TestLastRunChecker(t *testing.T) {
	tests := []struct {
		name    string
		lastRun time.Time
		lastErr string
		want    Status
	}{
		{name: "never ran", want: StatusDegraded},
		{name: "recent success", lastRun: time.Now(), want: StatusHealthy},
		{name: "recent failure", lastRun: time.Now(), lastErr: "2 datasets failed", want: StatusDegraded},
		{name: "stale", lastRun: time.Now().Add(-72 * time.Hour), want: StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLastRunChecker(func() (time.Time, string) { return tt.lastRun, tt.lastErr })
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}
