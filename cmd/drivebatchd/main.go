// drivebatchd is the drive-report intake service: an HTTP API for uploading
// diagnostic report batches plus an embedded queue worker that parses them.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platterworks/drivebatch/batchsrv"
	"github.com/platterworks/drivebatch/dbopen"
)

func main() {
	cfgPath := "drivebatch.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg := batchsrv.DefaultConfig()
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, err := batchsrv.LoadConfig(cfgPath)
		if err != nil {
			slog.Error("config", "path", cfgPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if len(os.Args) > 1 {
		// An explicitly named config file must exist.
		slog.Error("config not found", "path", cfgPath)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := batchsrv.New(cfg, db, logger)
	if err != nil {
		slog.Error("init service", "error", err)
		os.Exit(1)
	}

	go svc.RunWorker(ctx)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
