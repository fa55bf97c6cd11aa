// SPDX-License-Identifier: MIT

// snapctl is the operator CLI for the snapshot service.
//
// Usage:
//
//	snapctl write [-only a,b] [-date YYYY-MM-DD] [-list-datasets]
//	snapctl datasets
//	snapctl dates <dataset>
//	snapctl latest <dataset>
//	snapctl cat <dataset> [date]
//	snapctl reindex
//	snapctl verify [-full]
//
// Exit codes:
//   - 0: success
//   - 1: operation failed
//   - 2: usage error
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/datakettle/snapsvc/internal/catalog"
	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/reader"
	"github.com/datakettle/snapsvc/internal/snapshot"
	"github.com/datakettle/snapsvc/internal/source"
	"github.com/datakettle/snapsvc/internal/storage"
	"github.com/datakettle/snapsvc/internal/writer"
)

var version = "dev"

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: snapctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  write      fetch all configured datasets and publish a snapshot")
	fmt.Fprintln(os.Stderr, "  datasets   list datasets with published snapshots")
	fmt.Fprintln(os.Stderr, "  dates      list published dates for a dataset")
	fmt.Fprintln(os.Stderr, "  latest     show the latest snapshot manifest for a dataset")
	fmt.Fprintln(os.Stderr, "  cat        print a snapshot as JSON lines")
	fmt.Fprintln(os.Stderr, "  reindex    rebuild the catalog from storage")
	fmt.Fprintln(os.Stderr, "  verify     check the catalog database for corruption")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "write":
		err = cmdWrite(ctx, os.Args[2:])
	case "datasets":
		err = cmdDatasets(ctx, os.Args[2:])
	case "dates":
		err = cmdDates(ctx, os.Args[2:])
	case "latest":
		err = cmdLatest(ctx, os.Args[2:])
	case "cat":
		err = cmdCat(ctx, os.Args[2:])
	case "reindex":
		err = cmdReindex(ctx, os.Args[2:])
	case "verify":
		err = cmdVerify(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("snapctl %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env and the optional YAML config the same way the
// daemon does, so CLI and daemon agree on the base URI and sources.
func loadConfig(configPath string) (config.AppConfig, error) {
	_ = config.LoadDotenv("")
	cfg, err := config.NewLoader(configPath, version).Load()
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{Level: "warn", Service: "snapctl", Version: version})
	return cfg, nil
}

func openReader(cfg config.AppConfig, base string) (*reader.Reader, error) {
	if base == "" {
		base = cfg.BaseURI
	}
	return reader.Open(base, storage.S3Options(cfg.S3), reader.Options{})
}

func cmdWrite(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	base := fs.String("base", "", "override snapshot base URI")
	date := fs.String("date", "", "snapshot date (YYYY-MM-DD), default today UTC")
	only := fs.String("only", "", "comma separated dataset names to publish")
	listDatasets := fs.Bool("list-datasets", false, "list configured datasets and exit")
	noCatalog := fs.Bool("no-catalog", false, "skip catalog indexing")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	registry, err := source.NewRegistry(cfg.Sources)
	if err != nil {
		return err
	}
	if *listDatasets {
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	}
	if reg := splitCSV(*only); len(reg) > 0 {
		registry, err = registry.Only(reg)
		if err != nil {
			return err
		}
	}

	var cat *catalog.Catalog
	if !*noCatalog && cfg.CatalogPath != "" {
		cat, err = catalog.Open(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("open catalog: %w", err)
		}
		defer func() { _ = cat.Close() }()
	}

	baseURI := cfg.BaseURI
	if *base != "" {
		baseURI = *base
	}
	res, err := writer.Run(ctx, writer.Options{
		Registry:    registry,
		BaseURI:     baseURI,
		S3:          storage.S3Options(cfg.S3),
		Date:        *date,
		Version:     version,
		Catalog:     cat,
		Concurrency: cfg.WriterConcurrency,
	})
	if err != nil {
		return err
	}
	res.Render(os.Stdout)
	if res.Failed() > 0 {
		return fmt.Errorf("%d dataset(s) failed", res.Failed())
	}
	return nil
}

func cmdDatasets(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("datasets", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	base := fs.String("base", "", "override snapshot base URI")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rd, err := openReader(cfg, *base)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()

	names, err := rd.ListDatasets(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func cmdDates(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dates", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	base := fs.String("base", "", "override snapshot base URI")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: snapctl dates <dataset>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rd, err := openReader(cfg, *base)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()

	dates, err := rd.ListDates(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Println(d)
	}
	return nil
}

func cmdLatest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("latest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	base := fs.String("base", "", "override snapshot base URI")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: snapctl latest <dataset>")
	}
	dataset := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rd, err := openReader(cfg, *base)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()

	date, err := rd.LatestDate(ctx, dataset)
	if err != nil {
		return err
	}
	m, err := rd.LoadManifest(ctx, dataset, date)
	if err != nil {
		// Legacy flat snapshots have no manifest.
		m = &snapshot.Manifest{Dataset: dataset, ProducedFor: date}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func cmdCat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	base := fs.String("base", "", "override snapshot base URI")
	_ = fs.Parse(args)
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("usage: snapctl cat <dataset> [date]")
	}
	dataset := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	rd, err := openReader(cfg, *base)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()

	date := fs.Arg(1)
	if date == "" {
		date, err = rd.LatestDate(ctx, dataset)
		if err != nil {
			return err
		}
	}
	t, err := rd.Load(ctx, dataset, date)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range t.Rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func cmdReindex(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	base := fs.String("base", "", "override snapshot base URI")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.CatalogPath == "" {
		return fmt.Errorf("catalog path is not configured")
	}

	baseURI := cfg.BaseURI
	if *base != "" {
		baseURI = *base
	}
	coerced, err := storage.CoerceBase(baseURI)
	if err != nil {
		return err
	}
	backend, err := storage.FromURI(coerced, storage.S3Options(cfg.S3))
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	res, err := cat.Reindex(ctx, backend)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d, removed %d, skipped %d\n", res.Indexed, res.Removed, res.Skipped)
	return nil
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	full := fs.Bool("full", false, "run the thorough integrity check")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.CatalogPath == "" {
		return fmt.Errorf("catalog path is not configured")
	}

	mode := "quick"
	if *full {
		mode = "full"
	}
	problems, err := catalog.VerifyIntegrity(cfg.CatalogPath, mode)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p)
		}
		return fmt.Errorf("catalog failed %s integrity check", mode)
	}
	fmt.Printf("catalog %s: ok (%s check)\n", cfg.CatalogPath, mode)
	return nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
