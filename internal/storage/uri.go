// SPDX-License-Identifier: MIT

package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CoerceBase normalizes a base location into a URI string:
//
//	s3://...  stays as-is
//	file://... stays as-is
//	mem://... stays as-is
//	/abs      -> file:///abs
//	relative  -> file://<absolute>
//
// Resolution happens at call time, not at package init, so a .env file
// loaded after import still takes effect.
func CoerceBase(base string) (string, error) {
	b := strings.TrimSpace(base)
	b = strings.Trim(b, `"'`)
	if b == "" {
		return "", fmt.Errorf("snapshot base URI is not set: set SNAPSVC_BASE_URI in your environment or .env file, or pass a base explicitly")
	}
	if strings.HasPrefix(b, "s3://") || strings.HasPrefix(b, "file://") || strings.HasPrefix(b, "mem://") {
		return strings.TrimRight(b, "/"), nil
	}
	if i := strings.Index(b, "://"); i >= 0 {
		return "", fmt.Errorf("unsupported base URI scheme %q", b[:i])
	}
	abs, err := filepath.Abs(b)
	if err != nil {
		return "", fmt.Errorf("resolve base path %q: %w", b, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// LocalPath reports the filesystem path behind a file:// base URI.
// Remote bases return false.
func LocalPath(uri string) (string, bool) {
	if !strings.HasPrefix(uri, "file://") {
		return "", false
	}
	return localPathFromURI(uri), true
}

// localPathFromURI turns a file:// URI into a filesystem path.
func localPathFromURI(uri string) string {
	p := strings.TrimPrefix(uri, "file://")
	if p == "" {
		p = "/"
	}
	return filepath.FromSlash(p)
}

// splitS3 splits s3://bucket/prefix into bucket and prefix.
func splitS3(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	if rest == uri || rest == "" {
		return "", "", fmt.Errorf("invalid s3 URI %q", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 URI %q: missing bucket", uri)
	}
	return bucket, prefix, nil
}
