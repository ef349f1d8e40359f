package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fleetcap/fleetcap/internal/capture"
	"github.com/fleetcap/fleetcap/internal/change"
	"github.com/fleetcap/fleetcap/internal/config"
	"github.com/fleetcap/fleetcap/internal/fingerprint"
	"github.com/fleetcap/fleetcap/internal/loader"
	"github.com/fleetcap/fleetcap/internal/store"
	"github.com/fleetcap/fleetcap/internal/template"
)

// newLoader wires a Loader from config, with an optional store path
// override from the command line.
func newLoader(cfg *config.Config, storePath string, archiveDays int) (*loader.Loader, *store.Store, error) {
	if storePath == "" {
		storePath = cfg.Core.StorePath
	}
	st, err := store.Open(storePath)
	if err != nil {
		return nil, nil, err
	}

	patterns, err := change.CompilePatterns(cfg.Change.SensitivePatterns, cfg.Change.CounterPatterns)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if archiveDays <= 0 {
		archiveDays = cfg.Loader.ArchiveDays
	}

	l := loader.New(st, loader.Options{
		Types:    capture.NewTypeSet(cfg.Capture.Types),
		Patterns: patterns,
		Engine: fingerprint.NewEngine(template.Builtin(), fingerprint.Weights{
			PerRecord:     cfg.Fingerprint.PerRecordBonus,
			RequiredField: cfg.Fingerprint.RequiredFieldBonus,
			VendorHint:    cfg.Fingerprint.VendorHintBonus,
			Minimum:       cfg.Fingerprint.MinimumScore,
		}),
		MinSuccessBytes: cfg.Loader.MinSuccessBytes,
		ArchiveDays:     archiveDays,
		SweepBatch:      cfg.Loader.SweepBatch,
		SnippetBytes:    cfg.Loader.SnippetBytes,
		BlobRoot:        filepath.Join(cfg.Core.DataDir, "blobs"),
		DiffRoot:        cfg.Core.DiffRoot,
	})
	return l, st, nil
}

func cmdLoadFingerprints(args []string) int {
	fs := flag.NewFlagSet("load-fingerprints", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "config file path")
		dir        = fs.String("dir", "", "fingerprint directory (default from config)")
		storePath  = fs.String("store", "", "store path override")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return exitFatal
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		return exitFatal
	}

	src := *dir
	if src == "" {
		src = cfg.Core.FingerprintRoot
	}

	l, st, err := newLoader(cfg, *storePath, 0)
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		return exitFatal
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := notifySignals(cancel)
	defer stop()

	loaded, failed, err := l.IngestFingerprintDir(ctx, src)
	if err != nil {
		log.Error().Err(err).Msg("fingerprint load aborted")
		if ctx.Err() != nil {
			return exitSignal
		}
		return exitFatal
	}

	fmt.Printf("fingerprints: %d loaded, %d failed\n", loaded, failed)
	if failed > 0 {
		return exitFailures
	}
	return exitOK
}

func cmdLoadCaptures(args []string) int {
	fs := flag.NewFlagSet("load-captures", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "config file path")
		dir         = fs.String("dir", "", "capture directory (default from config)")
		storePath   = fs.String("store", "", "store path override")
		typesFlag   = fs.String("types", "", "comma-separated capture types to load (default all)")
		archiveDays = fs.Int("archive-days", 0, "archive retention override in days")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return exitFatal
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		return exitFatal
	}

	src := *dir
	if src == "" {
		src = cfg.Core.CaptureRoot
	}
	var only []capture.Type
	for _, t := range splitList(*typesFlag) {
		only = append(only, capture.Type(t))
	}

	l, st, err := newLoader(cfg, *storePath, *archiveDays)
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		return exitFatal
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := notifySignals(cancel)
	defer stop()

	ingested, skipped, failed, err := l.IngestCaptureDir(ctx, src, only)
	if err != nil {
		log.Error().Err(err).Msg("capture load aborted")
		if ctx.Err() != nil {
			return exitSignal
		}
		return exitFatal
	}

	fmt.Printf("captures: %d ingested, %d skipped, %d failed\n", ingested, skipped, failed)
	if failed > 0 {
		return exitFailures
	}
	return exitOK
}

func cmdPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "config file path")
		storePath   = fs.String("store", "", "store path override")
		archiveDays = fs.Int("archive-days", 0, "archive retention override in days")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return exitFatal
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		return exitFatal
	}

	l, st, err := newLoader(cfg, *storePath, *archiveDays)
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		return exitFatal
	}
	defer st.Close()

	n, err := l.Sweep()
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		return exitFatal
	}
	fmt.Printf("pruned %d archived capture rows\n", n)
	return exitOK
}
