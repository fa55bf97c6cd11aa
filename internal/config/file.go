// SPDX-License-Identifier: MIT

package config

import "time"

// FileConfig mirrors the YAML configuration file. Pointers distinguish
// "absent" from zero values for booleans and rates.
type FileConfig struct {
	Storage struct {
		BaseURI      string `yaml:"baseUri,omitempty"`
		DataDir      string `yaml:"dataDir,omitempty"`
		BlobCacheDir string `yaml:"blobCacheDir,omitempty"`
		CatalogPath  string `yaml:"catalogPath,omitempty"`
	} `yaml:"storage,omitempty"`

	API struct {
		ListenAddr     string   `yaml:"listenAddr,omitempty"`
		TrustedProxies string   `yaml:"trustedProxies,omitempty"`
		AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
		RateLimit      struct {
			Enabled *bool `yaml:"enabled,omitempty"`
			RPS     int   `yaml:"rps,omitempty"`
			Burst   int   `yaml:"burst,omitempty"`
		} `yaml:"rateLimit,omitempty"`
	} `yaml:"api,omitempty"`

	Metrics struct {
		Enabled    *bool  `yaml:"enabled,omitempty"`
		ListenAddr string `yaml:"listenAddr,omitempty"`
	} `yaml:"metrics,omitempty"`

	Log struct {
		Level   string `yaml:"level,omitempty"`
		Service string `yaml:"service,omitempty"`
	} `yaml:"log,omitempty"`

	Cache struct {
		RedisAddr string        `yaml:"redisAddr,omitempty"`
		TTL       time.Duration `yaml:"ttl,omitempty"`
	} `yaml:"cache,omitempty"`

	Writer struct {
		Schedule    string `yaml:"schedule,omitempty"`
		InitialRun  *bool  `yaml:"initialRun,omitempty"`
		Concurrency int    `yaml:"concurrency,omitempty"`
	} `yaml:"writer,omitempty"`

	S3 struct {
		Endpoint string `yaml:"endpoint,omitempty"`
		Region   string `yaml:"region,omitempty"`
		UseSSL   *bool  `yaml:"useSsl,omitempty"`
	} `yaml:"s3,omitempty"`

	Telemetry struct {
		Enabled      *bool    `yaml:"enabled,omitempty"`
		Endpoint     string   `yaml:"endpoint,omitempty"`
		ExporterType string   `yaml:"exporter,omitempty"`
		Environment  string   `yaml:"environment,omitempty"`
		SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	} `yaml:"telemetry,omitempty"`

	Sources []SourceConfig `yaml:"sources,omitempty"`
}
