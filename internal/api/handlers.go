// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/snapshot"
	"github.com/datakettle/snapsvc/internal/writer"
)

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.catalog != nil {
		names, err := s.catalog.ListDatasets(ctx)
		if err == nil && len(names) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{"datasets": names})
			return
		}
	}

	names, err := s.reader.ListDatasets(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": names})
}

func (s *Server) handleListDates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dataset := chi.URLParam(r, "dataset")

	dates, err := s.reader.ListDates(ctx, dataset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(dates) == 0 {
		writeNotFound(w, "no snapshots for dataset "+dataset)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": dataset,
		"dates":   dates,
		"latest":  dates[len(dates)-1],
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dataset := chi.URLParam(r, "dataset")

	date, err := s.reader.LatestDate(ctx, dataset)
	if err != nil {
		writeNotFound(w, err.Error())
		return
	}

	m, err := s.reader.LoadManifest(ctx, dataset, date)
	if err != nil {
		// Legacy flat snapshots carry no manifest.
		writeJSON(w, http.StatusOK, map[string]any{
			"dataset":      dataset,
			"produced_for": date,
		})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dataset := chi.URLParam(r, "dataset")
	date := chi.URLParam(r, "date")

	if _, err := snapshot.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := s.reader.Raw(ctx, dataset, date)
	if err != nil {
		writeNotFound(w, "snapshot "+dataset+"/"+date+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+date+snapshot.DataSuffix+`"`)
	_, _ = w.Write(payload)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeNotFound(w, "refresh not available")
		return
	}

	if !s.refreshing.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "refresh already running")
		return
	}
	defer s.refreshing.Store(false)

	var only []string
	if raw := r.URL.Query().Get("only"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				only = append(only, p)
			}
		}
	}

	res, err := s.refresh(r.Context(), only)
	if err != nil {
		// A scheduled or signal-triggered run can hold the writer too.
		if errors.Is(err, writer.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "refresh.triggered").
		Str(log.FieldRunID, res.RunID).
		Int("failed", res.Failed()).
		Msg("refresh run completed")

	writeJSON(w, http.StatusOK, refreshResponse(res))
}

type datasetOutcome struct {
	Dataset string `json:"dataset"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Bytes   int64  `json:"bytes"`
	Error   string `json:"error,omitempty"`
}

func refreshResponse(res *writer.Result) any {
	outcomes := make([]datasetOutcome, 0, len(res.Summaries))
	for _, s := range res.Summaries {
		o := datasetOutcome{
			Dataset: s.Dataset,
			Rows:    s.Rows,
			Columns: s.Columns,
			Bytes:   s.Bytes,
		}
		if s.Err != nil {
			o.Error = s.Err.Error()
		}
		outcomes = append(outcomes, o)
	}
	return map[string]any{
		"run_id":   res.RunID,
		"date":     res.Date,
		"failed":   res.Failed(),
		"datasets": outcomes,
	}
}
