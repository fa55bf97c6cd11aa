// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envLookup(key string) (string, bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	return os.LookupEnv(key)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: defaults -> parse file (strict) -> apply env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}
	l.setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)

	// Ensure DataDir is absolute to prevent path surprises further down.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	if cfg.CatalogPath == "" {
		cfg.CatalogPath = filepath.Join(cfg.DataDir, "catalog.db")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.BaseURI = "file://./data/snapshots"
	cfg.DataDir = "./data"
	cfg.APIListenAddr = ":8080"
	cfg.MetricsEnabled = false
	cfg.MetricsAddr = ":9090"
	cfg.RateLimitEnabled = true
	cfg.RateLimitRPS = 10
	cfg.RateLimitBurst = 20
	cfg.LogLevel = "info"
	cfg.LogService = "snapsvc"
	cfg.CacheTTL = 5 * time.Minute
	cfg.WriterConcurrency = 4
	cfg.Telemetry = TelemetryConfig{
		Enabled:      false,
		ExporterType: "noop",
		Environment:  "development",
		SamplingRate: 1.0,
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, file *FileConfig) {
	if file == nil {
		return
	}
	if file.Storage.BaseURI != "" {
		cfg.BaseURI = file.Storage.BaseURI
	}
	if file.Storage.DataDir != "" {
		cfg.DataDir = file.Storage.DataDir
	}
	if file.Storage.BlobCacheDir != "" {
		cfg.BlobCacheDir = file.Storage.BlobCacheDir
	}
	if file.Storage.CatalogPath != "" {
		cfg.CatalogPath = file.Storage.CatalogPath
	}
	if file.API.ListenAddr != "" {
		cfg.APIListenAddr = file.API.ListenAddr
	}
	if file.API.TrustedProxies != "" {
		cfg.TrustedProxies = file.API.TrustedProxies
	}
	if len(file.API.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append([]string(nil), file.API.AllowedOrigins...)
	}
	if file.API.RateLimit.Enabled != nil {
		cfg.RateLimitEnabled = *file.API.RateLimit.Enabled
	}
	if file.API.RateLimit.RPS > 0 {
		cfg.RateLimitRPS = file.API.RateLimit.RPS
	}
	if file.API.RateLimit.Burst > 0 {
		cfg.RateLimitBurst = file.API.RateLimit.Burst
	}
	if file.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *file.Metrics.Enabled
	}
	if file.Metrics.ListenAddr != "" {
		cfg.MetricsAddr = file.Metrics.ListenAddr
	}
	if file.Log.Level != "" {
		cfg.LogLevel = file.Log.Level
	}
	if file.Log.Service != "" {
		cfg.LogService = file.Log.Service
	}
	if file.Cache.RedisAddr != "" {
		cfg.RedisAddr = file.Cache.RedisAddr
	}
	if file.Cache.TTL > 0 {
		cfg.CacheTTL = file.Cache.TTL
	}
	if file.Writer.Schedule != "" {
		cfg.ScheduleTime = file.Writer.Schedule
	}
	if file.Writer.InitialRun != nil {
		cfg.InitialRun = *file.Writer.InitialRun
	}
	if file.Writer.Concurrency > 0 {
		cfg.WriterConcurrency = file.Writer.Concurrency
	}
	if file.S3.Endpoint != "" {
		cfg.S3.Endpoint = file.S3.Endpoint
	}
	if file.S3.Region != "" {
		cfg.S3.Region = file.S3.Region
	}
	if file.S3.UseSSL != nil {
		cfg.S3.UseSSL = *file.S3.UseSSL
	}
	if file.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *file.Telemetry.Enabled
	}
	if file.Telemetry.Endpoint != "" {
		cfg.Telemetry.Endpoint = file.Telemetry.Endpoint
	}
	if file.Telemetry.ExporterType != "" {
		cfg.Telemetry.ExporterType = file.Telemetry.ExporterType
	}
	if file.Telemetry.Environment != "" {
		cfg.Telemetry.Environment = file.Telemetry.Environment
	}
	if file.Telemetry.SamplingRate != nil {
		cfg.Telemetry.SamplingRate = *file.Telemetry.SamplingRate
	}
	if len(file.Sources) > 0 {
		cfg.Sources = append([]SourceConfig(nil), file.Sources...)
	}
}

// mergeEnvConfig applies environment overrides (highest priority).
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.BaseURI = l.envString("SNAPSVC_BASE_URI", cfg.BaseURI)
	cfg.DataDir = l.envString("SNAPSVC_DATA", cfg.DataDir)
	cfg.APIListenAddr = l.envString("SNAPSVC_LISTEN", cfg.APIListenAddr)
	cfg.APIToken = l.envString("SNAPSVC_API_TOKEN", cfg.APIToken)
	cfg.TrustedProxies = l.envString("SNAPSVC_TRUSTED_PROXIES", cfg.TrustedProxies)
	cfg.MetricsEnabled = l.envBool("SNAPSVC_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = l.envString("SNAPSVC_METRICS_ADDR", cfg.MetricsAddr)
	cfg.RateLimitEnabled = l.envBool("SNAPSVC_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPS = l.envInt("SNAPSVC_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = l.envInt("SNAPSVC_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.LogLevel = l.envString("SNAPSVC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("SNAPSVC_LOG_SERVICE", cfg.LogService)
	cfg.ReadyStrict = l.envBool("SNAPSVC_READY_STRICT", cfg.ReadyStrict)
	cfg.RedisAddr = l.envString("SNAPSVC_REDIS_ADDR", cfg.RedisAddr)
	cfg.CacheTTL = l.envDuration("SNAPSVC_CACHE_TTL", cfg.CacheTTL)
	cfg.BlobCacheDir = l.envString("SNAPSVC_BLOB_CACHE_DIR", cfg.BlobCacheDir)
	cfg.CatalogPath = l.envString("SNAPSVC_CATALOG_PATH", cfg.CatalogPath)
	cfg.ScheduleTime = l.envString("SNAPSVC_SCHEDULE", cfg.ScheduleTime)
	cfg.InitialRun = l.envBool("SNAPSVC_INITIAL_RUN", cfg.InitialRun)
	cfg.WriterConcurrency = l.envInt("SNAPSVC_WRITER_CONCURRENCY", cfg.WriterConcurrency)

	cfg.S3.Endpoint = l.envString("SNAPSVC_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.AccessKey = l.envString("SNAPSVC_S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = l.envString("SNAPSVC_S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.Region = l.envString("SNAPSVC_S3_REGION", cfg.S3.Region)
	cfg.S3.UseSSL = l.envBool("SNAPSVC_S3_USE_SSL", cfg.S3.UseSSL)

	cfg.Telemetry.Enabled = l.envBool("SNAPSVC_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString("SNAPSVC_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.ExporterType = l.envString("SNAPSVC_OTEL_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Environment = l.envString("SNAPSVC_OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("SNAPSVC_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	if origins, ok := l.envLookup("SNAPSVC_ALLOWED_ORIGINS"); ok && strings.TrimSpace(origins) != "" {
		parts := strings.Split(origins, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if v := strings.TrimSpace(p); v != "" {
				out = append(out, v)
			}
		}
		cfg.AllowedOrigins = out
	}
}
