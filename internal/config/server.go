// SPDX-License-Identifier: MIT

package config

import (
	"strings"
	"time"
)

// ServerConfig holds HTTP server runtime configuration.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxHeaderBytes:  1 << 20,
	}
}

// ParseServerConfig resolves server config with explicit precedence:
// ENV > AppConfig (YAML + merged defaults) > registry default.
func ParseServerConfig(cfg AppConfig) ServerConfig {
	base := defaultServerConfig()

	listen := strings.TrimSpace(ParseString("SNAPSVC_LISTEN", ""))
	if listen == "" {
		if strings.TrimSpace(cfg.APIListenAddr) != "" {
			listen = cfg.APIListenAddr
		} else {
			listen = base.ListenAddr
		}
	}

	maxHeaderBytes := ParseInt("SNAPSVC_SERVER_MAX_HEADER_BYTES", base.MaxHeaderBytes)
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = base.MaxHeaderBytes
	}

	shutdownTimeout := ParseDuration("SNAPSVC_SERVER_SHUTDOWN_TIMEOUT", base.ShutdownTimeout)
	if shutdownTimeout < 3*time.Second {
		shutdownTimeout = 3 * time.Second
	}

	return ServerConfig{
		ListenAddr:      listen,
		ReadTimeout:     ParseDuration("SNAPSVC_SERVER_READ_TIMEOUT", base.ReadTimeout),
		WriteTimeout:    ParseDuration("SNAPSVC_SERVER_WRITE_TIMEOUT", base.WriteTimeout),
		IdleTimeout:     ParseDuration("SNAPSVC_SERVER_IDLE_TIMEOUT", base.IdleTimeout),
		ShutdownTimeout: shutdownTimeout,
		MaxHeaderBytes:  maxHeaderBytes,
	}
}
