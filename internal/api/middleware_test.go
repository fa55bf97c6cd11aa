// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datakettle/snapsvc/internal/config"
)

func TestClientIPTrustsProxiesOnly(t *testing.T) {
	srv := New(Deps{Config: config.AppConfig{TrustedProxies: "10.0.0.0/8"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	assert.Equal(t, "203.0.113.7", srv.clientIP(req))

	req.RemoteAddr = "192.168.1.50:5555"
	assert.Equal(t, "192.168.1.50", srv.clientIP(req))
}

func TestRequestIDMiddleware(t *testing.T) {
	var handlerSawHeader string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerSawHeader = w.Header().Get("X-Request-ID")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, handlerSawHeader)
	assert.Equal(t, handlerSawHeader, rec.Header().Get("X-Request-ID"))

	// Incoming IDs are preserved.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{
		RateLimitEnabled: true,
		RateLimitRPS:     2,
		RateLimitBurst:   2,
	}, nil)
	router := srv.Router()

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "198.51.100.4:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCORSAllowedOrigin(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{
		AllowedOrigins: []string{"https://app.datakettle.io"},
	}, nil)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.datakettle.io")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.datakettle.io", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unlisted origins get no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.invalid")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, config.AppConfig{
		AllowedOrigins: []string{"*"},
	}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/datasets", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}
