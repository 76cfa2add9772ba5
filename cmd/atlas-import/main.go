package main

import (
	"context"
	"flag"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-flood-risk/internal/atlas"
	"github.com/mr1hm/go-flood-risk/internal/config"
	"github.com/mr1hm/go-flood-risk/internal/logging"
	"github.com/mr1hm/go-flood-risk/internal/repository"
)

func main() {
	file := flag.String("file", "", "path to the flood-hazard atlas CSV")
	watch := flag.Bool("watch", false, "re-import whenever the file changes")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *file == "" {
		logging.Fatalf("-file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.DB.Driver, cfg.DB.Path, cfg.DB.DSN)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	importer := atlas.NewImporter(store, logger)
	if _, err := importer.ImportFile(ctx, *file); err != nil {
		if !*watch {
			logging.Fatalf("atlas import failed: %v", err)
		}
		slog.Error("initial atlas import failed", "error", err)
	}

	if !*watch {
		return
	}

	slog.Info("watching atlas for changes", "path", *file)
	err = atlas.Watch(ctx, *file, 500*time.Millisecond, logger, func(ctx context.Context) error {
		_, err := importer.ImportFile(ctx, *file)
		return err
	})
	if err != nil {
		logging.Fatalf("atlas watch failed: %v", err)
	}
	slog.Info("atlas watcher stopped")
}
