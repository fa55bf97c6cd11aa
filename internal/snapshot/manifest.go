// SPDX-License-Identifier: MIT

package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Manifest describes one published snapshot. It is written next to the
// data object after the data is durable and before the success marker.
type Manifest struct {
	Dataset     string   `json:"dataset"`
	Rows        int      `json:"rows"`
	Columns     []string `json:"columns"`
	ProducedFor string   `json:"produced_for"` // snapshot date, YYYY-MM-DD
	ProducedAt  string   `json:"produced_at"`  // RFC3339 UTC wall time
	Host        string   `json:"host"`
	QuerySHA    string   `json:"query_sha,omitempty"` // fingerprint of the source query, if any
	BaseURI     string   `json:"base_uri"`
	RunID       string   `json:"run_id"`
	Version     string   `json:"version"`
}

// Encode writes the manifest as indented JSON.
func (m *Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}

// DecodeManifest parses a manifest object.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// ProducedAtTime parses the ProducedAt field.
func (m *Manifest) ProducedAtTime() (time.Time, error) {
	return time.Parse(time.RFC3339, m.ProducedAt)
}
