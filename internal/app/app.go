// Package app wires configuration, storage and the notebook service for the
// server and CLI entry points.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"labtree/internal/config"
	"labtree/internal/envelope"
	"labtree/internal/extractor"
	"labtree/internal/fingerprint"
	"labtree/internal/notebook"
	"labtree/internal/record"
	"labtree/internal/storage"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Notebook *notebook.Notebook
	Markdown *extractor.Markdown
}

// Open opens the database, runs migrations and builds the notebook service.
// A failing S3 setup only disables s3:// fingerprinting.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := slog.Default()

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database initialized", "path", cfg.DBPath)

	registry, err := extractor.LoadRegistry(cfg.ExtractorsConfig)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("Extractors loaded", "extensions", registry.Extensions())

	addresser := fingerprint.NewAddresser(fingerprint.NewHTTPFetcher(&http.Client{Timeout: 5 * time.Minute}))
	s3Fetcher, err := fingerprint.NewS3Fetcher(ctx, fingerprint.S3Config{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		PathStyle:       cfg.S3PathStyle,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretKey,
	})
	if err != nil {
		logger.Warn("S3 fingerprinting disabled", "error", err)
	} else {
		addresser.Register("s3", s3Fetcher)
	}

	nb := notebook.New(storage.NewDocRepo(db), storage.NewScanRepo(db), notebook.Options{
		BasePath:   cfg.BasePath,
		Files:      record.NewFiles(cfg.MarkerSuffix),
		Builder:    envelope.NewBuilder(cfg.User),
		Hasher:     addresser,
		Extractors: registry,
	})

	return &App{
		Config:   cfg,
		DB:       db,
		Notebook: nb,
		Markdown: extractor.NewMarkdown(),
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
