package main

import (
	"context"
	_ "embed"
	"log"
	"log/slog"
	nethttp "net/http"

	"labtree/internal/app"
	"labtree/internal/config"
	"labtree/internal/http"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API reconciles an on-disk laboratory notebook tree with its document database.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: labtree API
//   description: |
//     Creates projects, steps, tasks and data records, scans project
//     directories against the database and audits database consistency.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

//go:embed index.html
var indexHTML string

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()
	slog.Info("Notebook ready", "base_path", cfg.BasePath, "user", cfg.User)

	router := http.NewRouter(&http.Deps{
		Notebook:  a.Notebook,
		DB:        a.DB,
		BasePath:  cfg.BasePath,
		Renderer:  a.Markdown,
		IndexHTML: indexHTML,
	})

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
