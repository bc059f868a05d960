package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"rsshub/internal/config"
	"rsshub/internal/fetcher"
	"rsshub/internal/ingest"
	"rsshub/internal/model"
	"rsshub/internal/scheduler"
	"rsshub/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.SourcesFile != "" {
		if err := seedSources(ctx, store, cfg.SourcesFile, log); err != nil {
			log.Error("seed sources", "path", cfg.SourcesFile, "error", err)
			os.Exit(1)
		}
	}

	pipeline := ingest.New(store, fetcher.New(http.DefaultClient), log)

	sched := scheduler.New(store, pipeline, log)
	sched.SetTickInterval(time.Duration(cfg.SweepIntervalMinutes) * time.Minute)
	sched.SetWorkers(cfg.FetchWorkers)

	log.Info("starting rsshub", "sweep_minutes", cfg.SweepIntervalMinutes)

	sched.Run(ctx)

	log.Info("rsshub stopped")
}

// seedSources upserts the YAML-declared sources into the registry.
func seedSources(ctx context.Context, store storage.Storage, path string, log *slog.Logger) error {
	seeds, err := config.LoadSeedSources(path)
	if err != nil {
		return err
	}

	for _, seed := range seeds {
		existing, err := store.GetSourceByURL(ctx, seed.URL)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if existing != nil {
			existing.Name = seed.Name
			existing.Description = seed.Description
			existing.FrequencyMinutes = seed.FrequencyMinutes
			if err := store.UpdateSource(ctx, existing); err != nil {
				return err
			}
			continue
		}
		src := &model.Source{
			Name:             seed.Name,
			URL:              seed.URL,
			Description:      seed.Description,
			FrequencyMinutes: seed.FrequencyMinutes,
			Status:           model.SourceActive,
		}
		if err := store.CreateSource(ctx, src); err != nil {
			return err
		}
		log.Info("seeded source", "name", src.Name, "url", src.URL)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
