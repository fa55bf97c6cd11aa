// SPDX-License-Identifier: MIT

package storage

import (
	"fmt"
	"strings"
	"sync"
)

var (
	memMu     sync.Mutex
	memStores = make(map[string]Backend)
)

// FromURI creates (or, for mem://, reuses) the backend for a base URI.
// Bare and relative paths are coerced to file:// first.
func FromURI(base string, s3opts S3Options) (Backend, error) {
	uri, err := CoerceBase(base)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(uri, "file://"):
		b, err := NewLocal(localPathFromURI(uri))
		if err != nil {
			return nil, err
		}
		return instrument(b), nil
	case strings.HasPrefix(uri, "s3://"):
		b, err := NewS3(uri, s3opts)
		if err != nil {
			return nil, err
		}
		return instrument(b), nil
	case strings.HasPrefix(uri, "mem://"):
		// Shared per name so writer and reader in one process see the
		// same store.
		memMu.Lock()
		defer memMu.Unlock()
		b, ok := memStores[uri]
		if !ok {
			b = NewMemory()
			memStores[uri] = b
		}
		return instrument(b), nil
	default:
		return nil, fmt.Errorf("unsupported base URI scheme in %q", uri)
	}
}
