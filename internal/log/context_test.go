// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithRunID(ctx, "run-1")
	ctx = ContextWithDataset(ctx, "enrollments")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request id: expected req-1, got %q", got)
	}
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Errorf("run id: expected run-1, got %q", got)
	}
	if got := DatasetFromContext(ctx); got != "enrollments" {
		t.Errorf("dataset: expected enrollments, got %q", got)
	}
}

func TestContextAccessorsNilSafe(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if got := RequestIDFromContext(nil); got != "" {
		t.Errorf("expected empty request id from nil context, got %q", got)
	}
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty run id, got %q", got)
	}
}

func TestWithContextEnrichment(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithRunID(context.Background(), "run-42")
	ctx = ContextWithDataset(ctx, "accounts")

	enriched := WithContext(ctx, logger)
	enriched.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["run_id"] != "run-42" {
		t.Errorf("expected run_id run-42, got %v", entry["run_id"])
	}
	if entry["dataset"] != "accounts" {
		t.Errorf("expected dataset accounts, got %v", entry["dataset"])
	}
}

func TestWithContextNoFieldsReturnsSameOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithContext(context.Background(), logger)
	enriched.Info().Msg("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if _, ok := entry["run_id"]; ok {
		t.Error("unexpected run_id field on unenriched logger")
	}
}

func TestWithComponentFromContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-9")
	logger := WithComponentFromContext(ctx, "reader")

	var buf bytes.Buffer
	logger = logger.Output(&buf)
	logger.Info().Msg("component test")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if entry["component"] != "reader" {
		t.Errorf("expected component reader, got %v", entry["component"])
	}
	if entry["request_id"] != "req-9" {
		t.Errorf("expected request_id req-9, got %v", entry["request_id"])
	}
}
