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
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := setup.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.WithField("addr", cfg.Server.Host).Infof("Starting emergency match server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := setup.BuildApp(ctx, configManager, logger)
	if err != nil {
		log.Fatalf("Failed to assemble application: %v", err)
	}
	defer app.Close()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	// Start server
	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}
