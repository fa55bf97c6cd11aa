// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldDataset   = "dataset"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Snapshot fields
	FieldDate    = "date"
	FieldRows    = "rows"
	FieldColumns = "columns"
	FieldBaseURI = "base_uri"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
