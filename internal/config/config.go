package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "radixinsight"
	defaultServicePort  = 3000
	defaultVersion      = "0.1.0"
	defaultEnv          = "development"
	defaultLoggingLevel = "info"

	defaultStoreHost    = "localhost"
	defaultStorePort    = 5432
	defaultStoreUser    = "postgres"
	defaultStoreDB      = "radixinsight"
	defaultStoreSSLMode = "disable"
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5

	defaultRedisAddress = "localhost:6379"

	defaultMaxBatch = 1000
	defaultMaxLimit = 1000

	defaultFlowTTLMS        = 1800000
	defaultReaperIntervalMS = 60000

	defaultIngestDeadlineMS = 3000
	defaultQueryDeadlineMS  = 10000
	defaultHeavyDeadlineMS  = 30000
)

// Production is the server.env value that suppresses internal error detail
// in client-facing messages.
const Production = "production"

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
	Flow     FlowConfig     `yaml:"flow"`
	Deadline DeadlineConfig `yaml:"deadline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"RADIX_PORT" yaml:"port"`
	Env     string `env:"RADIX_ENV"  yaml:"env"`
	Debug   bool   `env:"APP_DEBUG"  yaml:"debug"`
}

// StoreConfig holds the analytics store (PostgreSQL) configuration.
type StoreConfig struct {
	Endpoint     string `env:"RADIX_STORE_HOST"     yaml:"endpoint"`
	Port         int    `env:"RADIX_STORE_PORT"     yaml:"port"`
	User         string `env:"RADIX_STORE_USER"     yaml:"user"`
	Password     string `env:"RADIX_STORE_PASSWORD" yaml:"password"`
	Database     string `env:"RADIX_STORE_DB"       yaml:"database"`
	SSLMode      string `env:"RADIX_STORE_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (s *StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Endpoint, s.Port, s.User, s.Password, s.Database, s.SSLMode,
	)
}

// MigrateURL returns the PostgreSQL URL used by golang-migrate.
func (s *StoreConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Endpoint, s.Port, s.Database, s.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// JWTSecret signs and validates bearer tokens for query endpoints.
	JWTSecret string `env:"RADIX_JWT_SECRET" yaml:"jwt_secret"`
}

// IngestConfig holds ingestion limits.
type IngestConfig struct {
	MaxBatch int `yaml:"max_batch"`
}

// QueryConfig holds query limits.
type QueryConfig struct {
	MaxLimit int `yaml:"max_limit"`
}

// FlowConfig holds flow tracker configuration. Durations are configured in
// milliseconds (flow.ttl_ms).
type FlowConfig struct {
	TTLMS            int `env:"RADIX_FLOW_TTL_MS" yaml:"ttl_ms"`
	ReaperIntervalMS int `yaml:"reaper_interval_ms"`
}

// TTL is the idle horizon after which an active flow is reaped.
func (f *FlowConfig) TTL() time.Duration {
	return time.Duration(f.TTLMS) * time.Millisecond
}

// ReaperInterval is the period between idle sweeps.
func (f *FlowConfig) ReaperInterval() time.Duration {
	return time.Duration(f.ReaperIntervalMS) * time.Millisecond
}

// DeadlineConfig holds per-operation-class deadlines in milliseconds
// (deadline.ingest_ms, deadline.query_ms, deadline.heavy_query_ms).
type DeadlineConfig struct {
	IngestMS     int `yaml:"ingest_ms"`
	QueryMS      int `yaml:"query_ms"`
	HeavyQueryMS int `yaml:"heavy_query_ms"`
}

// Ingest is the deadline for track and flow mutation operations.
func (d *DeadlineConfig) Ingest() time.Duration {
	return time.Duration(d.IngestMS) * time.Millisecond
}

// Query is the deadline for standard query operations.
func (d *DeadlineConfig) Query() time.Duration {
	return time.Duration(d.QueryMS) * time.Millisecond
}

// HeavyQuery is the deadline for funnel and retention queries.
func (d *DeadlineConfig) HeavyQuery() time.Duration {
	return time.Duration(d.HeavyQueryMS) * time.Millisecond
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setStoreDefaults(&cfg.Store)
	setLimitDefaults(cfg)
	setFlowDefaults(&cfg.Flow)
	setDeadlineDefaults(&cfg.Deadline)

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLoggingLevel
	}
}

// setServiceDefaults applies default values to ServiceConfig.
func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.Env == "" {
		svc.Env = defaultEnv
	}
}

// setStoreDefaults applies default values to StoreConfig.
func setStoreDefaults(store *StoreConfig) {
	if store.Endpoint == "" {
		store.Endpoint = defaultStoreHost
	}
	if store.Port == 0 {
		store.Port = defaultStorePort
	}
	if store.User == "" {
		store.User = defaultStoreUser
	}
	if store.Database == "" {
		store.Database = defaultStoreDB
	}
	if store.SSLMode == "" {
		store.SSLMode = defaultStoreSSLMode
	}
	if store.MaxOpenConns == 0 {
		store.MaxOpenConns = defaultMaxOpenConns
	}
	if store.MaxIdleConns == 0 {
		store.MaxIdleConns = defaultMaxIdleConns
	}
}

// setLimitDefaults applies default ingestion and query limits.
func setLimitDefaults(cfg *Config) {
	if cfg.Ingest.MaxBatch == 0 {
		cfg.Ingest.MaxBatch = defaultMaxBatch
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = defaultMaxLimit
	}
}

// setFlowDefaults applies default values to FlowConfig.
func setFlowDefaults(flow *FlowConfig) {
	if flow.TTLMS == 0 {
		flow.TTLMS = defaultFlowTTLMS
	}
	if flow.ReaperIntervalMS == 0 {
		flow.ReaperIntervalMS = defaultReaperIntervalMS
	}
}

// setDeadlineDefaults applies default per-operation deadlines.
func setDeadlineDefaults(d *DeadlineConfig) {
	if d.IngestMS == 0 {
		d.IngestMS = defaultIngestDeadlineMS
	}
	if d.QueryMS == 0 {
		d.QueryMS = defaultQueryDeadlineMS
	}
	if d.HeavyQueryMS == 0 {
		d.HeavyQueryMS = defaultHeavyDeadlineMS
	}
}

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s %s", e.Field, e.Message)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Auth.JWTSecret == "" {
		return &ValidationError{Field: "auth.jwt_secret", Message: "is required"}
	}
	if c.Service.Env != defaultEnv && c.Service.Env != Production {
		return &ValidationError{Field: "server.env", Message: "must be development or production"}
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Service.Env == Production
}
