package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "decisiongate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DECISIONGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "DECISIONGATE_CORS_ORIGIN")
	setString(&cfg.Store.Driver, "DECISIONGATE_STORE_DRIVER")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DECISIONGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DECISIONGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DECISIONGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DECISIONGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DECISIONGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.IdempotencyBucket, "DECISIONGATE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.NATS.IdempotencyTTL, "DECISIONGATE_IDEMPOTENCY_TTL")
	setString(&cfg.Logging.Level, "DECISIONGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DECISIONGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DECISIONGATE_LOG_ASYNC")
	setInt64(&cfg.Cache.MaxSizeMB, "DECISIONGATE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.WorkflowTTL, "DECISIONGATE_CACHE_WORKFLOW_TTL")
	setFloat64(&cfg.Rate.RequestsPerSecond, "DECISIONGATE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "DECISIONGATE_RATE_BURST")
	setDuration(&cfg.Routing.PendingTTL, "DECISIONGATE_PENDING_TTL")
	setDuration(&cfg.Routing.SweepInterval, "DECISIONGATE_SWEEP_INTERVAL")
	setDuration(&cfg.Routing.HistoryRetention, "DECISIONGATE_HISTORY_RETENTION")
	setDuration(&cfg.Routing.PurgeInterval, "DECISIONGATE_PURGE_INTERVAL")
	setDuration(&cfg.Routing.StoreTimeout, "DECISIONGATE_STORE_TIMEOUT")
	setDuration(&cfg.Executor.RequestTimeout, "DECISIONGATE_EXECUTOR_TIMEOUT")
	setInt(&cfg.Executor.MaxFailures, "DECISIONGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Executor.BreakerTimeout, "DECISIONGATE_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "DECISIONGATE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set and within bounds.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Routing.PendingTTL <= 0 {
		return errors.New("routing.pending_ttl must be positive")
	}
	if cfg.Routing.SweepInterval <= 0 || cfg.Routing.SweepInterval > time.Minute {
		return errors.New("routing.sweep_interval must be in (0, 1m]")
	}
	if cfg.Routing.HistoryRetention <= 0 {
		return errors.New("routing.history_retention must be positive")
	}
	if cfg.Executor.MaxFailures < 1 {
		return errors.New("executor.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
