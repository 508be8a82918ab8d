// Package setup assembles the application: it wires configuration into the
// stores, clients and services and hands back a ready-to-run server.
package setup

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emergency-match-server/internal/api"
	"github.com/emergency-match-server/internal/audit"
	"github.com/emergency-match-server/internal/config"
	"github.com/emergency-match-server/internal/database"
	"github.com/emergency-match-server/internal/domain"
	"github.com/emergency-match-server/internal/repository"
	"github.com/emergency-match-server/internal/service"
	"github.com/emergency-match-server/pkg/external"
)

// App is the assembled application with everything that needs closing.
type App struct {
	Server  *api.Server
	log     *logrus.Logger
	closers []io.Closer
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases all resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close resource")
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewLogger builds the application logger from logging configuration.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.ToLower(format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// BuildApp wires the full production deployment: Postgres match store,
// Redis guard and summary cache, the configured provider chain and the
// audit backend.
func BuildApp(ctx context.Context, manager *config.Manager, logger *logrus.Logger) (*App, error) {
	cfg := manager.GetConfig()
	app := &App{log: logger}

	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	app.closers = append(app.closers, closerFunc(func() error {
		db.Close()
		return nil
	}))

	if cfg.Database.MigrationsPath != "" {
		runner, err := database.NewMigrationRunner(cfg.Database.URL(), cfg.Database.MigrationsPath, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("creating migration runner: %w", err)
		}
		if err := runner.Up(ctx); err != nil {
			runner.Close()
			app.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		runner.Close()
	}

	redisClient, err := external.NewRedisClient(cfg.Cache)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	app.closers = append(app.closers, redisClient)

	recorder, err := buildAuditRecorder(cfg, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	store := repository.NewPostgresMatchStore(db.Pool, logger)
	gateway := external.NewNotifyGatewayClient(cfg.Notifications)
	source := external.NewDonorDirectoryClient(cfg.DonorSearch)

	providers := buildProviderChain(cfg.Providers, logger)

	pipeline := service.NewRankingPipeline(
		logger,
		providers,
		service.NewHeuristicRanker(nil),
		cfg.Providers.CallTimeout,
		cfg.Providers.MaxSummarize,
	)

	escalator := service.NewNotificationEscalator(
		logger, gateway, store, recorder,
		cfg.Escalation.Wave2Delay, cfg.Escalation.DispatchTimeout,
	)

	monitor, err := service.NewResponseMonitor(
		logger, store, redisClient, gateway, escalator,
		cfg.Escalation.WatchWindow, cfg.Escalation.ResubscribeDelay,
	)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("creating response monitor: %w", err)
	}

	orchestrator := service.NewMatchOrchestrator(logger, source, pipeline, store, escalator, monitor)

	app.Server = api.NewServer(logger, orchestrator, store, redisClient, cfg.Server, cfg.Logging.Level == "debug")

	logger.WithFields(logrus.Fields{
		"providers": len(providers),
		"audit":     cfg.Audit.Backend,
	}).Info("Application assembled")

	return app, nil
}

// BuildLiteApp wires the standalone deployment: in-memory match store and
// notified guard, SQLite audit trail, and at most the Ollama provider.
func BuildLiteApp(cfg *config.LiteConfig, logger *logrus.Logger) (*App, error) {
	app := &App{log: logger}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	auditStore, err := audit.NewSQLiteStore(cfg.AuditDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	app.closers = append(app.closers, auditStore)

	store := repository.NewMemoryMatchStore()
	guard := repository.NewMemoryNotifiedGuard()

	gateway := external.NewNotifyGatewayClient(domain.NotificationsConfig{
		BaseURL: cfg.NotifyURL,
		Timeout: 5 * time.Second,
	})
	source := external.NewDonorDirectoryClient(domain.DonorSearchConfig{
		BaseURL: cfg.DonorSearchURL,
		Timeout: 5 * time.Second,
	})

	var providers []domain.RankingProvider
	if cfg.OllamaBaseURL != "" {
		ollama := external.NewOllamaClient(domain.ProviderConfig{
			Enabled: true,
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.OllamaModel,
			Timeout: cfg.OllamaTimeout,
		})
		providers = append(providers, external.NewResilientProvider(ollama, domain.ProviderConfig{}, logger))
	}

	pipeline := service.NewRankingPipeline(logger, providers, service.NewHeuristicRanker(nil), cfg.OllamaTimeout, 0)

	escalator := service.NewNotificationEscalator(logger, gateway, store, auditStore, cfg.Wave2Delay, 0)

	monitor, err := service.NewResponseMonitor(logger, store, guard, gateway, escalator, cfg.WatchWindow, 0)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("creating response monitor: %w", err)
	}

	orchestrator := service.NewMatchOrchestrator(logger, source, pipeline, store, escalator, monitor)

	app.Server = api.NewServer(logger, orchestrator, store, nil, domain.ServerConfig{
		Host:         "0.0.0.0",
		Port:         cfg.HTTPPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}, cfg.LogLevel == "debug")

	logger.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"providers": len(providers),
	}).Info("Lite application assembled")

	return app, nil
}

// buildProviderChain creates the enabled providers in fixed fallback order,
// each wrapped with a circuit breaker and rate limiter.
func buildProviderChain(cfg domain.ProvidersConfig, logger *logrus.Logger) []domain.RankingProvider {
	var providers []domain.RankingProvider

	if cfg.OpenAI.Enabled {
		providers = append(providers, external.NewResilientProvider(external.NewOpenAIClient(cfg.OpenAI), cfg.OpenAI, logger))
	}
	if cfg.Gemini.Enabled {
		providers = append(providers, external.NewResilientProvider(external.NewGeminiClient(cfg.Gemini), cfg.Gemini, logger))
	}
	if cfg.Ollama.Enabled {
		providers = append(providers, external.NewResilientProvider(external.NewOllamaClient(cfg.Ollama), cfg.Ollama, logger))
	}

	return providers
}

func buildAuditRecorder(cfg *domain.Config, app *App) (audit.Recorder, error) {
	switch cfg.Audit.Backend {
	case "postgres":
		url := cfg.Audit.PostgresURL
		if url == "" {
			url = cfg.Database.URL()
		}
		store, err := audit.NewPostgresStoreFromURL(url)
		if err != nil {
			return nil, fmt.Errorf("opening postgres audit store: %w", err)
		}
		app.closers = append(app.closers, store)
		return store, nil
	case "sqlite":
		store, err := audit.NewSQLiteStore(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite audit store: %w", err)
		}
		app.closers = append(app.closers, store)
		return store, nil
	default:
		return audit.NopRecorder{}, nil
	}
}
