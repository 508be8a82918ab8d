package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/emergency-match-server/internal/domain"
)

// Manager loads and validates the application configuration using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/emergency-match-server/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("EMERGENCY_MATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.rate_limit", 50)
	viper.SetDefault("server.rate_burst", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "emergency_match")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 25)
	viper.SetDefault("database.min_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.conn_max_idle_time", "30m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Ranking provider defaults
	viper.SetDefault("providers.call_timeout", "8s")
	viper.SetDefault("providers.max_summarize", 15)

	viper.SetDefault("providers.openai.enabled", false)
	viper.SetDefault("providers.openai.base_url", "https://api.openai.com")
	viper.SetDefault("providers.openai.model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.timeout", "10s")
	viper.SetDefault("providers.openai.rate_limit", 5)
	viper.SetDefault("providers.openai.rate_burst", 10)

	viper.SetDefault("providers.gemini.enabled", false)
	viper.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("providers.gemini.model", "gemini-1.5-flash")
	viper.SetDefault("providers.gemini.timeout", "10s")
	viper.SetDefault("providers.gemini.rate_limit", 5)
	viper.SetDefault("providers.gemini.rate_burst", 10)

	viper.SetDefault("providers.ollama.enabled", false)
	viper.SetDefault("providers.ollama.base_url", "http://localhost:11434")
	viper.SetDefault("providers.ollama.model", "llama3")
	viper.SetDefault("providers.ollama.timeout", "15s")
	viper.SetDefault("providers.ollama.rate_limit", 0)

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.summary_ttl", "10m")
	viper.SetDefault("cache.notified_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Escalation defaults
	viper.SetDefault("escalation.wave2_delay", "2m")
	viper.SetDefault("escalation.dispatch_timeout", "10s")
	viper.SetDefault("escalation.resubscribe_delay", "2s")
	viper.SetDefault("escalation.watch_window", "30m")

	// Donor search defaults
	viper.SetDefault("donor_search.base_url", "http://localhost:9100")
	viper.SetDefault("donor_search.timeout", "5s")

	// Notification gateway defaults
	viper.SetDefault("notifications.base_url", "http://localhost:9200")
	viper.SetDefault("notifications.timeout", "5s")

	// Audit defaults
	viper.SetDefault("audit.backend", "postgres")
	viper.SetDefault("audit.sqlite_path", "./data/audit.db")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetProvidersConfig returns the ranking provider chain configuration
func (m *Manager) GetProvidersConfig() *domain.ProvidersConfig {
	return &m.config.Providers
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate database configuration
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	// Enabled providers need a reachable endpoint and, except Ollama, a key
	if config.Providers.OpenAI.Enabled {
		if config.Providers.OpenAI.BaseURL == "" {
			return fmt.Errorf("OpenAI base URL is required when enabled")
		}
		if config.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("OpenAI API key is required when enabled")
		}
	}
	if config.Providers.Gemini.Enabled {
		if config.Providers.Gemini.BaseURL == "" {
			return fmt.Errorf("Gemini base URL is required when enabled")
		}
		if config.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("Gemini API key is required when enabled")
		}
	}
	if config.Providers.Ollama.Enabled && config.Providers.Ollama.BaseURL == "" {
		return fmt.Errorf("Ollama base URL is required when enabled")
	}

	// Validate cache configuration
	if config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required")
	}

	// Validate external service endpoints
	if config.DonorSearch.BaseURL == "" {
		return fmt.Errorf("donor search base URL is required")
	}
	if config.Notifications.BaseURL == "" {
		return fmt.Errorf("notification gateway base URL is required")
	}

	// Validate audit backend
	switch config.Audit.Backend {
	case "postgres", "sqlite", "none":
	default:
		return fmt.Errorf("invalid audit backend: %s", config.Audit.Backend)
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
