package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. Environment overrides are not applied; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// CALLISTO_SECTION_FIELD environment variable overrides on top, e.g.
// CALLISTO_RULES_PATH or CALLISTO_AUDIT_SQLITE_PATH. Environment variables
// always win over file values.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setInt("CALLISTO_ENGINE_MAX_CONDITION_DEPTH", &cfg.Engine.MaxConditionDepth)
	setInt("CALLISTO_ENGINE_MAX_CONCURRENT_RULES", &cfg.Engine.MaxConcurrentRules)
	setDuration("CALLISTO_ENGINE_RULE_TIMEOUT", &cfg.Engine.RuleTimeout)

	setString("CALLISTO_RULES_SOURCE", &cfg.Rules.Source)
	setString("CALLISTO_RULES_PATH", &cfg.Rules.Path)
	setBool("CALLISTO_RULES_WATCH", &cfg.Rules.Watch)
	setDuration("CALLISTO_RULES_DEBOUNCE_INTERVAL", &cfg.Rules.DebounceInterval)
	setString("CALLISTO_RULES_STORE", &cfg.Rules.Store)
	setString("CALLISTO_RULES_SQLITE_PATH", &cfg.Rules.SQLite.Path)

	setBool("CALLISTO_AUDIT_ENABLED", &cfg.Audit.Enabled)
	setString("CALLISTO_AUDIT_BACKEND", &cfg.Audit.Backend)
	setString("CALLISTO_AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)
	setInt("CALLISTO_AUDIT_ASYNC_BUFFER", &cfg.Audit.AsyncBuffer)
	setDuration("CALLISTO_AUDIT_WRITE_TIMEOUT", &cfg.Audit.WriteTimeout)
	setInt("CALLISTO_AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)
	setInt64("CALLISTO_AUDIT_RETENTION_MAX_RECORDS", &cfg.Audit.Retention.MaxRecords)
	setString("CALLISTO_AUDIT_RETENTION_PRUNE_SCHEDULE", &cfg.Audit.Retention.PruneSchedule)

	setDuration("CALLISTO_OUTBOUND_TIMEOUT", &cfg.Outbound.Timeout)
	setInt("CALLISTO_OUTBOUND_MAX_RETRIES", &cfg.Outbound.MaxRetries)
	setFloat("CALLISTO_OUTBOUND_RATE_PER_SECOND", &cfg.Outbound.RatePerSecond)
	setString("CALLISTO_OUTBOUND_EMAIL_GATEWAY_URL", &cfg.Outbound.EmailGatewayURL)
	setString("CALLISTO_OUTBOUND_SMS_GATEWAY_URL", &cfg.Outbound.SMSGatewayURL)

	setInt("CALLISTO_SERVICE_WORKERS", &cfg.Service.Workers)
	setInt("CALLISTO_SERVICE_EVENT_BUFFER", &cfg.Service.EventBuffer)

	setString("CALLISTO_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	setString("CALLISTO_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	setBool("CALLISTO_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	setString("CALLISTO_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	setString("CALLISTO_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	setDuration("CALLISTO_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("CALLISTO_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
}

func setString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setInt64(key string, dst *int64) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func setFloat(key string, dst *float64) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
