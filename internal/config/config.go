package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"product-pricing-service/internal/pricing"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
// `required:"true"` makes an environment variable mandatory.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`      // debug enables scheduler traces
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Automation AutomationConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port               string        `envconfig:"HTTP_SERVER_PORT" default:"8000"`
	TimeoutRead        time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite       time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle        time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
	CORSAllowedOrigins []string      `envconfig:"HTTP_CORS_ALLOWED_ORIGINS" default:"*"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host        string `envconfig:"POSTGRES_HOST" required:"true"`
	Port        string `envconfig:"POSTGRES_PORT" default:"5432"`
	User        string `envconfig:"POSTGRES_USER" required:"true"`
	Password    string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	DBName      string `envconfig:"POSTGRES_DBNAME" required:"true"`
	SSLMode     string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	AutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`
}

// AutomationConfig holds the initial settings of the price scheduler.
type AutomationConfig struct {
	Interval     time.Duration `envconfig:"AUTOMATION_INTERVAL" default:"10s"`
	MinFactor    float64       `envconfig:"AUTOMATION_MIN_FACTOR" default:"0.8"`
	MaxFactor    float64       `envconfig:"AUTOMATION_MAX_FACTOR" default:"1.2"`
	CycleTimeout time.Duration `envconfig:"AUTOMATION_CYCLE_TIMEOUT" default:"30s"`
	AutoStart    bool          `envconfig:"AUTOMATION_AUTO_START" default:"false"`
}

// DSN builds a postgres:// URL, understood by both lib/pq and golang-migrate.
func (pc *PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pc.User, pc.Password),
		Host:     net.JoinHostPort(pc.Host, pc.Port),
		Path:     "/" + pc.DBName,
		RawQuery: url.Values{"sslmode": []string{pc.SSLMode}}.Encode(),
	}
	return u.String()
}

// Validate checks the values envconfig cannot express as tags.
func (c *Config) Validate() error {
	var errs []error
	if c.Automation.Interval <= 0 {
		errs = append(errs, fmt.Errorf("AUTOMATION_INTERVAL must be positive, got %s", c.Automation.Interval))
	}
	band := pricing.Band{MinFactor: c.Automation.MinFactor, MaxFactor: c.Automation.MaxFactor}
	if err := band.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("AUTOMATION_MIN_FACTOR/AUTOMATION_MAX_FACTOR [%v, %v]: %w",
			c.Automation.MinFactor, c.Automation.MaxFactor, err))
	}
	if c.Automation.CycleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("AUTOMATION_CYCLE_TIMEOUT must be positive, got %s", c.Automation.CycleTimeout))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Load reads the configuration from environment variables and validates it.
// It should be called once during application startup.
func Load() (*Config, error) {
	log.Println("Loading service configuration...")
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil { // No prefix for env vars
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Avoid logging the DSN, it carries the password.
	log.Printf("Configuration loaded successfully for APP_ENV: %s", cfg.AppEnv)
	return &cfg, nil
}
