// SPDX-License-Identifier: MIT

// Package api exposes the snapshot service over HTTP: dataset and
// date listings, manifest lookups, snapshot downloads and a refresh
// trigger.
package api

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/datakettle/snapsvc/internal/catalog"
	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/health"
	"github.com/datakettle/snapsvc/internal/reader"
	"github.com/datakettle/snapsvc/internal/writer"
)

// RefreshFunc runs a writer pass for the named datasets, or all
// registered datasets when the list is empty.
type RefreshFunc func(ctx context.Context, only []string) (*writer.Result, error)

// Server holds the HTTP surface and its collaborators.
type Server struct {
	cfg         config.AppConfig
	reader      *reader.Reader
	catalog     *catalog.Catalog
	health      *health.Manager
	refresh     RefreshFunc
	refreshing  atomic.Bool
	trustedNets []*net.IPNet
}

// Deps carries everything the server needs.
type Deps struct {
	Config  config.AppConfig
	Reader  *reader.Reader
	Catalog *catalog.Catalog // optional, listings fall back to storage
	Health  *health.Manager
	Refresh RefreshFunc // optional, refresh endpoint 404s without it
}

// New builds a Server.
func New(deps Deps) *Server {
	return &Server{
		cfg:         deps.Config,
		reader:      deps.Reader,
		catalog:     deps.Catalog,
		health:      deps.Health,
		refresh:     deps.Refresh,
		trustedNets: parseTrustedProxies(deps.Config.TrustedProxies),
	}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	}
	r.Use(securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)
	if s.cfg.RateLimitEnabled {
		r.Use(s.rateLimitMiddleware())
	}

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/datasets", s.handleListDatasets)
		r.Get("/datasets/{dataset}/dates", s.handleListDates)
		r.Get("/datasets/{dataset}/latest", s.handleLatest)
		r.Get("/datasets/{dataset}/snapshots/{date}", s.handleSnapshot)
		r.Post("/refresh", s.handleRefresh)
	})

	return otelhttp.NewHandler(r, "snapsvc-api")
}
