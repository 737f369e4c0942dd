// Package config provides environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration values for the application.
// Required fields will cause startup failure if not provided.
// Optional fields have sensible defaults.
type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Env         string `envconfig:"ENV" default:"development"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"query-gateway"`

	// OpenTelemetry
	OTELEnabled          bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELExporterEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELExporterInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"false"`

	// HTTP request handling
	// MaxRequestSize is the maximum request body size in bytes. Default: 1MB.
	MaxRequestSize int64 `envconfig:"MAX_REQUEST_SIZE" default:"1048576"`

	// RateLimitRPS is the per-client HTTP admission rate, enforced at the
	// transport edge (independent of the per-resource C3 limiter below).
	RateLimitRPS int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	TrustProxy   bool `envconfig:"TRUST_PROXY" default:"false"`

	// Internal Server
	InternalPort        int    `envconfig:"INTERNAL_PORT" default:"8081"`
	InternalBindAddress string `envconfig:"INTERNAL_BIND_ADDRESS" default:"127.0.0.1"`

	// Server Timeouts
	HTTPReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	HTTPWriteTimeout      time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	HTTPIdleTimeout       time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	HTTPReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	HTTPMaxHeaderBytes    int           `envconfig:"HTTP_MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout       time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// Databases: names of registered target databases. Each name's
	// connection string is read separately from DB_<NAME>_URL (see
	// DatabaseConfigs), since envconfig cannot template a variable prefix.
	Databases []string `envconfig:"DATABASES" required:"true"`

	DBPoolMaxConns    int32         `envconfig:"DB_POOL_MAX_CONNS" default:"25"`
	DBPoolMinConns    int32         `envconfig:"DB_POOL_MIN_CONNS" default:"5"`
	DBPoolMaxLifetime time.Duration `envconfig:"DB_POOL_MAX_LIFETIME" default:"1h"`
	DBQueryTimeout    time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"5s"`

	// LLM (SQL generation)
	LLMProviderURL    string        `envconfig:"LLM_PROVIDER_URL" required:"true"`
	LLMAPIKey         string        `envconfig:"LLM_API_KEY"`
	LLMModel          string        `envconfig:"LLM_MODEL" default:"gpt-4"`
	LLMTimeout        time.Duration `envconfig:"LLM_TIMEOUT" default:"10s"`
	LLMMaxTokens      int           `envconfig:"LLM_MAX_TOKENS" default:"1024"`
	LLMScoringEnabled bool          `envconfig:"LLM_SCORING_ENABLED" default:"true"`

	// Security (SQL validator)
	SecurityMaxRows int `envconfig:"SECURITY_MAX_ROWS" default:"1000"`
	// SecurityMaxJoins caps the number of distinct tables a single SELECT
	// may reference, not the number of JOIN keywords: a comma-style
	// "FROM a, b, c" join is counted the same as an explicit JOIN.
	SecurityMaxJoins int `envconfig:"SECURITY_MAX_JOINS" default:"5"`
	// SecurityRequireWhereClauseTables names the tables for which a SELECT
	// referencing them must carry a WHERE clause; it is not a blanket
	// switch over every query.
	SecurityRequireWhereClauseTables []string `envconfig:"SECURITY_REQUIRE_WHERE_CLAUSE"`
	SecurityAllowDataModification    bool     `envconfig:"SECURITY_ALLOW_DATA_MODIFICATION" default:"false"`
	SecurityBlockedFunctions         []string `envconfig:"SECURITY_BLOCKED_FUNCTIONS" default:"pg_sleep,dblink,lo_import,lo_export,pg_read_file,pg_write_file,pg_ls_dir,pg_read_binary_file"`
	// SecurityBlockedSchemas and SecurityBlockedTables accept shell-style
	// glob patterns (e.g. "tmp_*"), not just literal names.
	SecurityBlockedSchemas []string `envconfig:"SECURITY_BLOCKED_SCHEMAS" default:"pg_catalog,information_schema"`
	SecurityBlockedTables  []string `envconfig:"SECURITY_BLOCKED_TABLES"`
	// SecurityBlockedColumns is the legacy global blocklist, matched
	// against a column reference regardless of which table it qualifies.
	SecurityBlockedColumns []string `envconfig:"SECURITY_BLOCKED_COLUMNS"`
	// SecurityBlockedColumnsByTable maps a table name to a "|"-delimited
	// list of blocked columns (e.g. "users=password|ssn,accounts=balance").
	// envconfig's map support only templates string values, so the
	// per-table column list is packed into one string and split in
	// cmd/server/main.go's wiring, the same way DatabaseConfigs() does a
	// second explicit pass for what envconfig cannot template directly.
	SecurityBlockedColumnsByTable map[string]string `envconfig:"SECURITY_BLOCKED_COLUMNS_BY_TABLE"`
	SecurityAllowExplain          bool              `envconfig:"SECURITY_ALLOW_EXPLAIN" default:"false"`

	// Validation (question intake)
	ValidationMaxQuestionLength int `envconfig:"VALIDATION_MAX_QUESTION_LENGTH" default:"2000"`
	// ValidationMaxRetries bounds the generate-and-validate feedback loop:
	// the orchestrator makes at most ValidationMaxRetries+1 generation attempts.
	ValidationMaxRetries int `envconfig:"VALIDATION_MAX_RETRIES" default:"2"`

	// Cache (schema introspection)
	CacheSchemaTTL time.Duration `envconfig:"CACHE_SCHEMA_TTL" default:"5m"`

	// Result validation
	ResultValidationEnabled       bool `envconfig:"RESULT_VALIDATION_ENABLED" default:"true"`
	ResultValidationMinConfidence int  `envconfig:"RESULT_VALIDATION_MIN_CONFIDENCE" default:"60"`
	// ResultValidationSampleRows bounds how many rows are sent to the LLM
	// for scoring, independent of SecurityMaxRows.
	ResultValidationSampleRows int `envconfig:"RESULT_VALIDATION_SAMPLE_ROWS" default:"20"`

	// Per-resource admission control
	RateLimitDatabaseRPS   float64 `envconfig:"RATE_LIMIT_DATABASE_RPS" default:"50"`
	RateLimitDatabaseBurst int     `envconfig:"RATE_LIMIT_DATABASE_BURST" default:"10"`
	RateLimitLLMRPS        float64 `envconfig:"RATE_LIMIT_LLM_RPS" default:"5"`
	RateLimitLLMBurst      int     `envconfig:"RATE_LIMIT_LLM_BURST" default:"2"`

	// Resilience - Circuit Breaker
	CBMaxRequests      int           `envconfig:"CB_MAX_REQUESTS" default:"3"`
	CBInterval         time.Duration `envconfig:"CB_INTERVAL" default:"10s"`
	CBTimeout          time.Duration `envconfig:"CB_TIMEOUT" default:"30s"`
	CBFailureThreshold int           `envconfig:"CB_FAILURE_THRESHOLD" default:"5"`

	// Resilience - Retry
	RetryMaxAttempts  int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialDelay time.Duration `envconfig:"RETRY_INITIAL_DELAY" default:"100ms"`
	RetryMaxDelay     time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5s"`
	RetryMultiplier   float64       `envconfig:"RETRY_MULTIPLIER" default:"2.0"`

	// Resilience - Timeout
	TimeoutDefault     time.Duration `envconfig:"TIMEOUT_DEFAULT" default:"30s"`
	TimeoutDatabase    time.Duration `envconfig:"TIMEOUT_DATABASE" default:"5s"`
	TimeoutExternalAPI time.Duration `envconfig:"TIMEOUT_EXTERNAL_API" default:"10s"`

	// Resilience - Bulkhead
	BulkheadMaxConcurrent int `envconfig:"BULKHEAD_MAX_CONCURRENT" default:"10"`
	BulkheadMaxWaiting    int `envconfig:"BULKHEAD_MAX_WAITING" default:"100"`

	// Resilience - Graceful Shutdown
	ShutdownDrainPeriod time.Duration `envconfig:"SHUTDOWN_DRAIN_PERIOD" default:"30s"`
	ShutdownGracePeriod time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"5s"`

	// Health Check
	HealthCheckDBTimeout time.Duration `envconfig:"HEALTH_CHECK_DB_TIMEOUT" default:"2s"`
}

// DatabaseConfig is one registered target database.
type DatabaseConfig struct {
	Name string
	DSN  string
}

// DatabaseConfigs resolves each name in Databases to its connection
// string, read from DB_<UPPER_NAME>_URL. envconfig cannot template an
// env var name on a runtime-known list, so this is a second, explicit
// os.Getenv pass after the main Process() call.
func (c *Config) DatabaseConfigs() ([]DatabaseConfig, error) {
	dbs := make([]DatabaseConfig, 0, len(c.Databases))
	seen := make(map[string]bool, len(c.Databases))

	for _, name := range c.Databases {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("DATABASES contains an empty name")
		}
		if seen[name] {
			return nil, fmt.Errorf("DATABASES contains duplicate name %q", name)
		}
		seen[name] = true

		key := "DB_" + strings.ToUpper(name) + "_URL"
		dsn := strings.TrimSpace(os.Getenv(key))
		if dsn == "" {
			return nil, fmt.Errorf("%s is required (database %q listed in DATABASES)", key, name)
		}
		dbs = append(dbs, DatabaseConfig{Name: name, DSN: dsn})
	}

	return dbs, nil
}

// Redacted returns a safe string representation of the Config for logging.
func (c *Config) Redacted() string {
	safe := *c
	safe.LLMAPIKey = "[REDACTED]"
	return fmt.Sprintf("%+v", safe)
}

// Load reads configuration from environment variables.
// It returns an error if required fields are missing.
func Load() (*Config, error) {
	const op = "config.Load"

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := cfg.DatabaseConfigs(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return fmt.Errorf("DATABASES must list at least one database name")
	}

	if c.OTELEnabled && strings.TrimSpace(c.OTELExporterEndpoint) == "" {
		return fmt.Errorf("OTEL_ENABLED is true but OTEL_EXPORTER_OTLP_ENDPOINT is empty")
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: must be between 0 and 65535")
	}
	if c.InternalPort < 0 || c.InternalPort > 65535 {
		return fmt.Errorf("invalid INTERNAL_PORT: must be between 0 and 65535")
	}
	if c.InternalPort != 0 && c.InternalPort == c.Port {
		return fmt.Errorf("INTERNAL_PORT must differ from PORT")
	}
	if c.InternalBindAddress == "" {
		return fmt.Errorf("INTERNAL_BIND_ADDRESS cannot be empty")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("invalid SERVICE_NAME: must not be empty")
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))

	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("invalid ENV: must be one of development, staging, production, test")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: must be one of debug, info, warn, error")
	}

	if c.MaxRequestSize < 1 {
		return fmt.Errorf("invalid MAX_REQUEST_SIZE: must be greater than 0")
	}

	if c.RateLimitRPS < 1 {
		return fmt.Errorf("invalid RATE_LIMIT_RPS: must be greater than 0")
	}

	if strings.TrimSpace(c.LLMProviderURL) == "" {
		return fmt.Errorf("LLM_PROVIDER_URL is required")
	}
	if c.LLMMaxTokens < 1 {
		return fmt.Errorf("invalid LLM_MAX_TOKENS: must be greater than 0")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("invalid LLM_TIMEOUT: must be greater than 0")
	}

	if c.SecurityMaxRows < 1 {
		return fmt.Errorf("invalid SECURITY_MAX_ROWS: must be greater than 0")
	}
	if c.SecurityMaxJoins < 0 {
		return fmt.Errorf("invalid SECURITY_MAX_JOINS: must be non-negative")
	}

	if c.ValidationMaxQuestionLength < 1 {
		return fmt.Errorf("invalid VALIDATION_MAX_QUESTION_LENGTH: must be greater than 0")
	}
	if c.ValidationMaxRetries < 0 {
		return fmt.Errorf("invalid VALIDATION_MAX_RETRIES: must be non-negative")
	}

	if c.CacheSchemaTTL <= 0 {
		return fmt.Errorf("invalid CACHE_SCHEMA_TTL: must be greater than 0")
	}

	if c.ResultValidationMinConfidence < 0 || c.ResultValidationMinConfidence > 100 {
		return fmt.Errorf("invalid RESULT_VALIDATION_MIN_CONFIDENCE: must be between 0 and 100")
	}
	if c.ResultValidationSampleRows < 1 {
		return fmt.Errorf("invalid RESULT_VALIDATION_SAMPLE_ROWS: must be greater than 0")
	}

	if c.RateLimitDatabaseRPS <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_DATABASE_RPS: must be greater than 0")
	}
	if c.RateLimitDatabaseBurst < 1 {
		return fmt.Errorf("invalid RATE_LIMIT_DATABASE_BURST: must be greater than 0")
	}
	if c.RateLimitLLMRPS <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_LLM_RPS: must be greater than 0")
	}
	if c.RateLimitLLMBurst < 1 {
		return fmt.Errorf("invalid RATE_LIMIT_LLM_BURST: must be greater than 0")
	}

	// Database Pool Validation
	if c.DBPoolMaxConns < 1 {
		return fmt.Errorf("invalid DB_POOL_MAX_CONNS: must be greater than 0")
	}
	if c.DBPoolMinConns < 0 {
		return fmt.Errorf("invalid DB_POOL_MIN_CONNS: must be non-negative")
	}
	if c.DBPoolMinConns > c.DBPoolMaxConns {
		return fmt.Errorf("invalid DB_POOL_MIN_CONNS: must be less than or equal to DB_POOL_MAX_CONNS")
	}
	if c.DBPoolMaxLifetime <= 0 {
		return fmt.Errorf("invalid DB_POOL_MAX_LIFETIME: must be greater than 0")
	}

	// Server Timeouts Validation
	if c.DBQueryTimeout <= 0 {
		return fmt.Errorf("invalid DB_QUERY_TIMEOUT: must be greater than 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: must be greater than 0")
	}

	if c.ShutdownDrainPeriod <= 0 {
		return fmt.Errorf("invalid SHUTDOWN_DRAIN_PERIOD: must be greater than 0")
	}
	if c.ShutdownGracePeriod < 0 {
		return fmt.Errorf("invalid SHUTDOWN_GRACE_PERIOD: must be non-negative")
	}

	return nil
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
