// SPDX-License-Identifier: MIT

// Package snapshot defines the on-store layout of dataset snapshots and
// the manifest that describes each one.
//
// Canonical layout, one folder per date:
//
//	<base>/<dataset>/<YYYY-MM-DD>/<YYYY-MM-DD>.jsonl.gz
//	<base>/<dataset>/<YYYY-MM-DD>/manifest.json
//	<base>/<dataset>/<YYYY-MM-DD>/__SUCCESS
//
// Legacy flat layout, still readable:
//
//	<base>/<dataset>/<YYYY-MM-DD>.jsonl.gz
package snapshot

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// DataSuffix is the extension of the snapshot data object.
	DataSuffix = ".jsonl.gz"

	// ManifestName is the manifest object inside a snapshot folder.
	ManifestName = "manifest.json"

	// SuccessMarker is written last; readers treat folders without it as
	// partial and skip them.
	SuccessMarker = "__SUCCESS"

	// DateLayout is the folder/file date format. Lexical order equals
	// chronological order.
	DateLayout = "2006-01-02"
)

var (
	dateDirRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateFileRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.jsonl\.gz$`)
)

// IsDateDir reports whether name is a per-date snapshot folder name.
func IsDateDir(name string) bool {
	return dateDirRe.MatchString(name)
}

// DateFromFlatFile extracts the date from a legacy flat file name, or ""
// when the name is not one.
func DateFromFlatFile(name string) string {
	m := dateFileRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid snapshot date %q: %w", s, err)
	}
	return t, nil
}

// DatasetPrefix returns the store key prefix for a dataset.
func DatasetPrefix(dataset string) string {
	return dataset
}

// DataObject returns the canonical data object key for a dataset and date.
func DataObject(dataset, date string) string {
	return dataset + "/" + date + "/" + date + DataSuffix
}

// FlatDataObject returns the legacy flat data object key.
func FlatDataObject(dataset, date string) string {
	return dataset + "/" + date + DataSuffix
}

// ManifestObject returns the manifest key for a dataset and date.
func ManifestObject(dataset, date string) string {
	return dataset + "/" + date + "/" + ManifestName
}

// SuccessObject returns the success marker key for a dataset and date.
func SuccessObject(dataset, date string) string {
	return dataset + "/" + date + "/" + SuccessMarker
}
