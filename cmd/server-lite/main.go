// The lite server runs standalone: no Postgres, no Redis, matches in memory
// and the audit trail in SQLite. Intended for demos, development and small
// single-instance deployments.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/emergency-match-server/internal/config"
	"github.com/emergency-match-server/internal/setup"
)

func main() {
	cfg := config.LoadLiteConfig()
	logger := setup.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Infof("Starting emergency match server (lite) on port %d", cfg.HTTPPort)

	app, err := setup.BuildLiteApp(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to assemble application: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}
