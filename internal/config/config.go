// Package config resolves runtime settings from the environment and CLI flags.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guillermoBallester/querylens/internal/core/domain"
)

// Supported values for Driver and Transport.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = domain.DriverSQLite

	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

type Config struct {
	// Token signing.
	SecretKey        string
	SecretKeyring    bool   // read the secret from the OS keyring instead
	ReadOnlyKeyword  string // statements must start with this to be signed
	GroupBy          domain.GroupingMode
	CacheCapacity    int
	StackPolicyFile  string // optional path to policy YAML
	ExecutionEnabled bool

	// Database used for replays.
	Driver       string
	DatabaseURL  string // DSN for postgres, file path for sqlite
	MaxRows      int
	QueryTimeout time.Duration

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "http" (default) or "stdio"
	HTTPAddr        string
	HTTPBearerToken string // required when transport=http
	RateLimitRPS    float64
	RateLimitBurst  int
	InspectReplays  bool // inspect the queries each replay request runs

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled bool
	AuditLog    string // path to NDJSON audit log file
}

// ExecutionAvailable reports whether replay operations can run. It is
// resolved once; a missing database simply turns the feature off.
func (c *Config) ExecutionAvailable() bool {
	return c.ExecutionEnabled && c.DatabaseURL != ""
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	SecretKeyring    *bool
	ReadOnlyKeyword  *string
	GroupBy          *string
	CacheCapacity    *int
	StackPolicyFile  *string
	ExecutionEnabled *bool
	Driver           *string
	DatabaseURL      *string
	MaxRows          *int
	QueryTimeout     *time.Duration
	LogLevel         *string
	Transport        *string
	HTTPAddr         *string
	HTTPBearerToken  *string
	RateLimitRPS     *float64
	RateLimitBurst   *int
	InspectReplays   bool
	OTelEnabled      bool
	AuditLog         string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ReadOnlyKeyword:     domain.DefaultReadOnlyKeyword,
		GroupBy:             domain.GroupByStatement,
		CacheCapacity:       5,
		ExecutionEnabled:    true,
		Driver:              DriverPostgres,
		MaxRows:             100,
		QueryTimeout:        10 * time.Second,
		LogLevel:            slog.LevelInfo,
		Transport:           TransportHTTP,
		HTTPAddr:            ":8080",
		RateLimitRPS:        5,
		RateLimitBurst:      10,
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	cfg.SecretKey = os.Getenv("SECRET_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.StackPolicyFile = os.Getenv("STACK_POLICY_FILE")
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if v := os.Getenv("READ_ONLY_KEYWORD"); v != "" {
		cfg.ReadOnlyKeyword = v
	}
	if v := os.Getenv("GROUP_BY"); v != "" {
		cfg.GroupBy = domain.GroupingMode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("DRIVER"); v != "" {
		cfg.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	var err error
	if cfg.SecretKeyring, err = envBool("SECRET_KEYRING", cfg.SecretKeyring); err != nil {
		return err
	}
	if cfg.ExecutionEnabled, err = envBool("EXECUTION_ENABLED", cfg.ExecutionEnabled); err != nil {
		return err
	}
	if cfg.OTelEnabled, err = envBool("OTEL_ENABLED", cfg.OTelEnabled); err != nil {
		return err
	}
	if cfg.InspectReplays, err = envBool("INSPECT_REPLAYS", cfg.InspectReplays); err != nil {
		return err
	}
	if cfg.CacheCapacity, err = envPositiveInt("CACHE_CAPACITY", cfg.CacheCapacity); err != nil {
		return err
	}
	if cfg.MaxRows, err = envPositiveInt("MAX_ROWS", cfg.MaxRows); err != nil {
		return err
	}
	if cfg.RateLimitBurst, err = envPositiveInt("RATE_LIMIT_BURST", cfg.RateLimitBurst); err != nil {
		return err
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid RATE_LIMIT_RPS value %q: must be a positive number", v)
		}
		cfg.RateLimitRPS = f
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	return loadPoolEnvVars(cfg)
}

func envBool(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	return b, nil
}

func envPositiveInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("invalid %s value %q: must be a positive integer", name, v)
	}
	return n, nil
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.SecretKeyring != nil {
		cfg.SecretKeyring = *o.SecretKeyring
	}
	if o.ReadOnlyKeyword != nil {
		cfg.ReadOnlyKeyword = *o.ReadOnlyKeyword
	}
	if o.GroupBy != nil {
		cfg.GroupBy = domain.GroupingMode(strings.ToLower(strings.TrimSpace(*o.GroupBy)))
	}
	if o.CacheCapacity != nil {
		if *o.CacheCapacity <= 0 {
			return fmt.Errorf("invalid --cache-capacity value: must be a positive integer")
		}
		cfg.CacheCapacity = *o.CacheCapacity
	}
	if o.StackPolicyFile != nil {
		cfg.StackPolicyFile = *o.StackPolicyFile
	}
	if o.ExecutionEnabled != nil {
		cfg.ExecutionEnabled = *o.ExecutionEnabled
	}
	if o.Driver != nil {
		cfg.Driver = strings.ToLower(strings.TrimSpace(*o.Driver))
	}
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return fmt.Errorf("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}
	if o.RateLimitRPS != nil {
		if *o.RateLimitRPS <= 0 {
			return fmt.Errorf("invalid --rate-limit-rps value: must be a positive number")
		}
		cfg.RateLimitRPS = *o.RateLimitRPS
	}
	if o.RateLimitBurst != nil {
		if *o.RateLimitBurst <= 0 {
			return fmt.Errorf("invalid --rate-limit-burst value: must be a positive integer")
		}
		cfg.RateLimitBurst = *o.RateLimitBurst
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	cfg.InspectReplays = cfg.InspectReplays || o.InspectReplays

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.SecretKey == "" && !cfg.SecretKeyring {
		return fmt.Errorf("SECRET_KEY is required (or set SECRET_KEYRING=true to read it from the OS keyring)")
	}

	if strings.TrimSpace(cfg.ReadOnlyKeyword) == "" {
		return fmt.Errorf("READ_ONLY_KEYWORD must not be blank")
	}

	if !cfg.GroupBy.Valid() {
		return fmt.Errorf("invalid GROUP_BY value %q: must be %q or %q", cfg.GroupBy, domain.GroupByStatement, domain.GroupByRenderedSQL)
	}

	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid DRIVER value %q: must be %q or %q", cfg.Driver, DriverPostgres, DriverSQLite)
	}

	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", cfg.QueryTimeout)
	}

	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == TransportHTTP && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
