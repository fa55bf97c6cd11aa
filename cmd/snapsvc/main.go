// SPDX-License-Identifier: MIT

// Command snapsvc runs the snapshot service daemon: the read API,
// the scheduled writer and the catalog kept in sync with storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datakettle/snapsvc/internal/api"
	"github.com/datakettle/snapsvc/internal/cache"
	"github.com/datakettle/snapsvc/internal/cache/blob"
	"github.com/datakettle/snapsvc/internal/catalog"
	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/daemon"
	"github.com/datakettle/snapsvc/internal/health"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/reader"
	"github.com/datakettle/snapsvc/internal/source"
	"github.com/datakettle/snapsvc/internal/storage"
	"github.com/datakettle/snapsvc/internal/telemetry"
	"github.com/datakettle/snapsvc/internal/writer"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("snapsvc %s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		mainLog := log.WithComponent("main")
		mainLog.Error().
			Err(err).
			Str(log.FieldEvent, "daemon.fatal").
			Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	// .env is best effort: a missing file is fine, everything else is
	// surfaced once logging is up.
	dotenvErr := config.LoadDotenv("")

	cfg, err := config.NewLoader(configPath, version).Load()
	if err != nil {
		log.Configure(log.Config{Service: "snapsvc", Version: version})
		return fmt.Errorf("load config: %w", err)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})
	logger := log.WithComponent("main")
	if dotenvErr != nil {
		logger.Warn().Err(dotenvErr).Msg("dotenv load failed")
	}
	logger.Info().
		Str(log.FieldEvent, "daemon.start").
		Str("base_uri", cfg.BaseURI).
		Int("sources", len(cfg.Sources)).
		Msg("starting snapshot service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := telemetry.NewProvider(ctx, cfg.Telemetry, "snapsvc", version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	registry, err := source.NewRegistry(cfg.Sources)
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}

	base, err := storage.CoerceBase(cfg.BaseURI)
	if err != nil {
		return err
	}
	s3opts := storage.S3Options(cfg.S3)
	backend, err := storage.FromURI(base, s3opts)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog %s: %w", cfg.CatalogPath, err)
	}

	readerCache := cache.NewMemoryCache(10 * time.Minute)
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr}, log.WithComponent("cache"))
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("redis unavailable, using in-memory cache")
		} else {
			readerCache = rc
		}
	}

	var blobs *blob.Store
	if cfg.BlobCacheDir != "" {
		blobs, err = blob.Open(cfg.BlobCacheDir, 7*24*time.Hour)
		if err != nil {
			return fmt.Errorf("open blob cache %s: %w", cfg.BlobCacheDir, err)
		}
	}

	rd := reader.New(backend, reader.Options{
		Cache:    readerCache,
		CacheTTL: cfg.CacheTTL,
		Blobs:    blobs,
	})

	var app *daemon.App
	runPass := func(ctx context.Context, only []string) (*writer.Result, error) {
		reg := registry
		if len(only) > 0 {
			sub, err := registry.Only(only)
			if err != nil {
				return nil, err
			}
			reg = sub
		}
		res, err := writer.Run(ctx, writer.Options{
			Registry:    reg,
			BaseURI:     cfg.BaseURI,
			S3:          s3opts,
			Version:     version,
			Catalog:     cat,
			Concurrency: cfg.WriterConcurrency,
		})
		if err == nil && res.Failed() > 0 {
			err = fmt.Errorf("%d dataset(s) failed", res.Failed())
		}
		if app != nil {
			app.RecordRun(err)
		}
		return res, err
	}

	hm := health.NewManager(version, cfg.ReadyStrict)
	hm.RegisterChecker(health.NewStorageChecker(backend))
	hm.RegisterChecker(health.NewCatalogChecker(cat))

	srv := api.New(api.Deps{
		Config:  cfg,
		Reader:  rd,
		Catalog: cat,
		Health:  hm,
		Refresh: runPass,
	})

	deps := daemon.Deps{APIHandler: srv.Router()}
	if cfg.MetricsEnabled {
		deps.MetricsAddr = cfg.MetricsAddr
		deps.MetricsHandler = promhttp.Handler()
	}
	manager, err := daemon.NewManager(config.ParseServerConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("init server manager: %w", err)
	}

	manager.RegisterShutdownHook("telemetry", tracer.Shutdown)
	if closer, ok := readerCache.(io.Closer); ok {
		manager.RegisterShutdownHook("cache", func(context.Context) error {
			return closer.Close()
		})
	}
	if blobs != nil {
		manager.RegisterShutdownHook("blob_cache", func(context.Context) error {
			return blobs.Close()
		})
	}
	manager.RegisterShutdownHook("storage", func(context.Context) error {
		return backend.Close()
	})
	manager.RegisterShutdownHook("catalog", func(context.Context) error {
		return cat.Close()
	})

	var scheduler *daemon.Scheduler
	if cfg.ScheduleTime != "" {
		scheduler, err = daemon.NewScheduler(cfg.ScheduleTime, func(ctx context.Context) error {
			_, err := runPass(ctx, nil)
			return err
		})
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
	}

	reindex := func(ctx context.Context) error {
		res, err := cat.Reindex(ctx, backend)
		if err != nil {
			return err
		}
		logger.Info().
			Str(log.FieldEvent, "catalog.reindex").
			Int("indexed", res.Indexed).
			Int("removed", res.Removed).
			Int("skipped", res.Skipped).
			Msg("catalog reindexed")
		return nil
	}

	// Local bases can be written to out of band, so keep the catalog
	// in sync via the filesystem watcher. Remote bases rely on the
	// writer path and explicit reindex.
	var watcher *daemon.Watcher
	if root, ok := storage.LocalPath(base); ok {
		watcher = daemon.NewWatcher(root, reindex)
	}

	if err := reindex(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial reindex failed")
	}

	app = daemon.NewApp(manager, scheduler, watcher, func(ctx context.Context) error {
		_, err := runPass(ctx, nil)
		return err
	})
	hm.RegisterChecker(health.NewLastRunChecker(app.LastRun))

	if cfg.InitialRun {
		if _, err := runPass(ctx, nil); err != nil {
			logger.Error().Err(err).
				Str(log.FieldEvent, "run.initial.failed").
				Msg("initial snapshot run failed")
		}
	}

	return app.Run(ctx)
}
