// SPDX-License-Identifier: MIT

// Package config loads snapsvc configuration with the precedence
// ENV > YAML file > defaults.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AppConfig is the fully resolved application configuration.
type AppConfig struct {
	// Snapshot storage
	BaseURI string // file://, s3:// or mem:// root for snapshots
	DataDir string // local working dir (catalog, blob cache, auto config)

	// API server
	APIListenAddr  string
	APIToken       string
	TrustedProxies string
	AllowedOrigins []string

	// Metrics
	MetricsEnabled bool
	MetricsAddr    string

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int

	// Logging
	LogLevel   string
	LogService string

	// Readiness
	ReadyStrict bool

	// Reader cache
	RedisAddr    string        // optional redis for manifest/date lookups
	CacheTTL     time.Duration // TTL for reader lookups
	BlobCacheDir string        // badger cache for remote snapshot payloads, "" disables

	// Catalog
	CatalogPath string // sqlite database file

	// Writer
	ScheduleTime      string // "HH:MM" local time for the daily run, "" disables
	InitialRun        bool
	WriterConcurrency int

	// S3 credentials (used when BaseURI is s3://)
	S3 S3Config

	// Telemetry
	Telemetry TelemetryConfig

	// Dataset sources
	Sources []SourceConfig

	// Version is stamped from the binary
	Version string
}

// S3Config holds object store connection settings.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// TelemetryConfig holds OTLP tracing settings.
type TelemetryConfig struct {
	Enabled      bool
	Endpoint     string
	ExporterType string // "http", "grpc" or "noop"
	Environment  string
	SamplingRate float64
}

// SourceConfig describes a single dataset source. Kind selects which fields
// apply.
type SourceConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // rest | sql | csv

	// rest
	URL          string  `yaml:"url,omitempty"`
	RecordsField string  `yaml:"recordsField,omitempty"`
	PageParam    string  `yaml:"pageParam,omitempty"`
	TokenEnv     string  `yaml:"tokenEnv,omitempty"`
	RatePerSec   float64 `yaml:"ratePerSec,omitempty"`
	IDColumn     string  `yaml:"idColumn,omitempty"`
	IDWidth      int     `yaml:"idWidth,omitempty"`

	// sql
	DBPath    string `yaml:"dbPath,omitempty"`
	Query     string `yaml:"query,omitempty"`
	QueryFile string `yaml:"queryFile,omitempty"`

	// csv
	Path string `yaml:"path,omitempty"`
}

var datasetNameRe = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]*$`)

// ValidDatasetName reports whether name is a legal dataset slug.
func ValidDatasetName(name string) bool {
	return datasetNameRe.MatchString(name)
}

var scheduleRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// Validate checks the final configuration for internal consistency.
func Validate(cfg AppConfig) error {
	if strings.TrimSpace(cfg.BaseURI) == "" {
		return fmt.Errorf("base URI is empty: set SNAPSVC_BASE_URI or storage.baseUri")
	}
	if cfg.ScheduleTime != "" && !scheduleRe.MatchString(cfg.ScheduleTime) {
		return fmt.Errorf("invalid schedule time %q (expected HH:MM)", cfg.ScheduleTime)
	}
	if cfg.RateLimitEnabled && cfg.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limiting enabled but RPS is %d", cfg.RateLimitRPS)
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}
	if cfg.WriterConcurrency < 0 {
		return fmt.Errorf("writer concurrency must not be negative")
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if !ValidDatasetName(src.Name) {
			return fmt.Errorf("invalid dataset name %q", src.Name)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate dataset %q", src.Name)
		}
		seen[src.Name] = struct{}{}

		switch src.Kind {
		case "rest":
			if src.URL == "" {
				return fmt.Errorf("dataset %q: rest source requires url", src.Name)
			}
		case "sql":
			if src.DBPath == "" {
				return fmt.Errorf("dataset %q: sql source requires dbPath", src.Name)
			}
			if src.Query == "" && src.QueryFile == "" {
				return fmt.Errorf("dataset %q: sql source requires query or queryFile", src.Name)
			}
		case "csv":
			if src.Path == "" {
				return fmt.Errorf("dataset %q: csv source requires path", src.Name)
			}
		default:
			return fmt.Errorf("dataset %q: unknown source kind %q", src.Name, src.Kind)
		}
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.ExporterType {
		case "http", "grpc", "noop":
		default:
			return fmt.Errorf("unknown telemetry exporter %q", cfg.Telemetry.ExporterType)
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry sampling rate %v out of range [0,1]", cfg.Telemetry.SamplingRate)
		}
	}

	return nil
}
