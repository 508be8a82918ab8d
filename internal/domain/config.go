package domain

import (
	"fmt"
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Escalation    EscalationConfig    `mapstructure:"escalation"`
	DonorSearch   DonorSearchConfig   `mapstructure:"donor_search"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// URL renders the connection string consumed by pgx and the migration runner.
func (dc DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.Username, dc.Password, dc.Host, dc.Port, dc.Database, dc.SSLMode)
}

// ProvidersConfig holds the ranking provider chain configuration. Order
// config decides which providers join the chain; the chain order itself is
// fixed (OpenAI, Gemini, Ollama) with the heuristic as terminal fallback.
type ProvidersConfig struct {
	CallTimeout  time.Duration  `mapstructure:"call_timeout"`
	MaxSummarize int            `mapstructure:"max_summarize"`
	OpenAI       ProviderConfig `mapstructure:"openai"`
	Gemini       ProviderConfig `mapstructure:"gemini"`
	Ollama       ProviderConfig `mapstructure:"ollama"`
}

// ProviderConfig represents a single ranking provider's client configuration
type ProviderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
}

// CacheConfig represents redis configuration for the notified-once guard and
// the summary read cache
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	SummaryTTL  time.Duration `mapstructure:"summary_ttl"`
	NotifiedTTL time.Duration `mapstructure:"notified_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// EscalationConfig represents notification escalation and monitoring timing
type EscalationConfig struct {
	Wave2Delay       time.Duration `mapstructure:"wave2_delay"`
	DispatchTimeout  time.Duration `mapstructure:"dispatch_timeout"`
	ResubscribeDelay time.Duration `mapstructure:"resubscribe_delay"`
	WatchWindow      time.Duration `mapstructure:"watch_window"`
}

// DonorSearchConfig represents the external donor directory service
type DonorSearchConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationsConfig represents the external push gateway
type NotificationsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuditConfig represents the wave dispatch audit log backend
type AuditConfig struct {
	Backend     string `mapstructure:"backend"` // "postgres" or "sqlite"
	PostgresURL string `mapstructure:"postgres_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
