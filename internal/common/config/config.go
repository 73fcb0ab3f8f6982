// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Transport TransportConfig `mapstructure:"transport"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PipelineConfig holds the worker-loop settings.
type PipelineConfig struct {
	Concurrency      int `mapstructure:"concurrency"`        // in-flight sends per job
	MaxJobsPerPass   int `mapstructure:"max_jobs_per_pass"`  // jobs claimed per ProcessDueJobs call
	TimeBudget       int `mapstructure:"time_budget"`        // milliseconds
	PollInterval     int `mapstructure:"poll_interval"`      // milliseconds between passes
	LockTimeout      int `mapstructure:"lock_timeout"`       // milliseconds before a processing job is stale
	ItemLeaseTimeout int `mapstructure:"item_lease_timeout"` // milliseconds before a processing item is stale
	RatePerMinute    int `mapstructure:"rate_per_minute"`    // per-campaign send limit, 0 disables
}

// TransportConfig selects and configures the outbound mail provider.
type TransportConfig struct {
	Provider  string `mapstructure:"provider"` // "smtp" or "ses"
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
	} `mapstructure:"smtp"`

	SES struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"ses"`
}

// TrackingConfig holds the signed-URL settings for open/click/unsubscribe.
type TrackingConfig struct {
	BaseURL string `mapstructure:"base_url"` // public endpoint prefix for tracking routes
	Secret  string `mapstructure:"secret"`   // HMAC key, never logged
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
