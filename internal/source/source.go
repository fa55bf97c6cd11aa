// SPDX-License-Identifier: MIT

// Package source turns configured dataset sources into tables. Each
// source knows how to pull one dataset and reports a fingerprint of
// the query it ran so snapshots record what produced them.
package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/table"
)

// Source produces one dataset table per fetch.
type Source interface {
	// Name returns the dataset name this source feeds.
	Name() string

	// Fetch pulls the full dataset. The returned fingerprint is a
	// stable hash of the query or location the data came from, and
	// ends up in the snapshot manifest.
	Fetch(ctx context.Context) (*table.Table, string, error)
}

// Registry holds the configured sources keyed by dataset name.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry builds a registry from source configuration. Duplicate
// dataset names are rejected by config validation before this runs.
func NewRegistry(cfgs []config.SourceConfig) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(cfgs))}
	for _, sc := range cfgs {
		src, err := fromConfig(sc)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		r.sources[sc.Name] = src
		r.order = append(r.order, sc.Name)
	}
	sort.Strings(r.order)
	return r, nil
}

func fromConfig(sc config.SourceConfig) (Source, error) {
	switch sc.Kind {
	case "rest":
		return newRESTSource(sc)
	case "sql":
		return newSQLSource(sc)
	case "csv":
		return newCSVSource(sc)
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// Register adds a source directly, bypassing configuration. Used for
// derived datasets built in code and for tests.
func (r *Registry) Register(s Source) error {
	if r.sources == nil {
		r.sources = make(map[string]Source)
	}
	if _, dup := r.sources[s.Name()]; dup {
		return fmt.Errorf("duplicate dataset %q", s.Name())
	}
	r.sources[s.Name()] = s
	r.order = append(r.order, s.Name())
	sort.Strings(r.order)
	return nil
}

// Names returns the registered dataset names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the source for a dataset name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Only narrows the registry to the named datasets. Unknown names are
// an error so typos fail loudly instead of silently skipping work.
func (r *Registry) Only(names []string) (*Registry, error) {
	sub := &Registry{sources: make(map[string]Source, len(names))}
	for _, name := range names {
		s, ok := r.sources[name]
		if !ok {
			return nil, fmt.Errorf("unknown dataset %q (known: %v)", name, r.Names())
		}
		if _, dup := sub.sources[name]; dup {
			continue
		}
		sub.sources[name] = s
		sub.order = append(sub.order, name)
	}
	sort.Strings(sub.order)
	return sub, nil
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.sources)
}
