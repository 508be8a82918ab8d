// Package config provides configuration management for the matching server.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no Postgres or Redis: matches live in memory and the audit
// trail goes to SQLite.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Ranking provider (only Ollama makes sense without API key management)
	OllamaBaseURL string        // Optional: Ollama endpoint, empty disables it
	OllamaModel   string        // Ollama model name
	OllamaTimeout time.Duration // Per-call timeout

	// External services
	DonorSearchURL string // Donor directory endpoint
	NotifyURL      string // Push gateway endpoint

	// Escalation timing
	Wave2Delay  time.Duration // Delay before the critical second wave
	WatchWindow time.Duration // How long to monitor donor responses

	// HTTP settings
	HTTPPort int // HTTP port

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".emergency-match")

	return &LiteConfig{
		DataDir:        dataDir,
		OllamaModel:    "llama3",
		OllamaTimeout:  15 * time.Second,
		DonorSearchURL: "http://localhost:9100",
		NotifyURL:      "http://localhost:9200",
		Wave2Delay:     2 * time.Minute,
		WatchWindow:    30 * time.Minute,
		HTTPPort:       8080,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	// Data directory
	if v := os.Getenv("EMERGENCY_MATCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Ollama
	cfg.OllamaBaseURL = os.Getenv("EMERGENCY_MATCH_OLLAMA_URL")
	if v := os.Getenv("EMERGENCY_MATCH_OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("EMERGENCY_MATCH_OLLAMA_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OllamaTimeout = d
		}
	}

	// External services
	if v := os.Getenv("EMERGENCY_MATCH_DONOR_SEARCH_URL"); v != "" {
		cfg.DonorSearchURL = v
	}
	if v := os.Getenv("EMERGENCY_MATCH_NOTIFY_URL"); v != "" {
		cfg.NotifyURL = v
	}

	// Escalation timing
	if v := os.Getenv("EMERGENCY_MATCH_WAVE2_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Wave2Delay = d
		}
	}
	if v := os.Getenv("EMERGENCY_MATCH_WATCH_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WatchWindow = d
		}
	}

	// HTTP
	if v := os.Getenv("EMERGENCY_MATCH_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	// Logging
	if v := os.Getenv("EMERGENCY_MATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("EMERGENCY_MATCH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// AuditDBPath returns the path to the audit SQLite database.
func (c *LiteConfig) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}
