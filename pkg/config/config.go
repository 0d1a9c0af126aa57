package config

import "time"

// Config is the top-level service configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Rules     RulesConfig     `yaml:"rules"`
	Audit     AuditConfig     `yaml:"audit"`
	Outbound  OutboundConfig  `yaml:"outbound"`
	Service   ServiceConfig   `yaml:"service"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
}

// EngineConfig configures the rule engine core.
type EngineConfig struct {
	MaxConditionDepth  int           `yaml:"max_condition_depth"`
	MaxConcurrentRules int           `yaml:"max_concurrent_rules"`
	RuleTimeout        time.Duration `yaml:"rule_timeout"`
}

// RulesConfig configures where rules come from and how they persist.
type RulesConfig struct {
	// Source is the rule definition source: "file" or "store".
	Source string `yaml:"source"`

	// Path is the YAML rule file or directory for the file source.
	Path string `yaml:"path"`

	// Watch enables hot reload of the file source.
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces bursts of file change events.
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Store is the persistence backend: "memory" or "sqlite".
	Store string `yaml:"store"`

	// SQLite configures the sqlite rule store.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig holds rule store database settings.
type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig configures the execution audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLitePath is the audit database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// AsyncBuffer and WriteTimeout tune the async recorder.
	AsyncBuffer  int           `yaml:"async_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention prunes old records.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds audit retention policy.
type RetentionConfig struct {
	Days          int    `yaml:"days"`
	MaxRecords    int64  `yaml:"max_records"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// OutboundConfig configures outbound HTTP delivery for webhook, email and
// SMS actions.
type OutboundConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int64         `yaml:"burst"`

	// EmailGatewayURL and SMSGatewayURL are the delivery endpoints for the
	// send_email and send_sms actions. Empty disables the action.
	EmailGatewayURL string `yaml:"email_gateway_url"`
	SMSGatewayURL   string `yaml:"sms_gateway_url"`
}

// ServiceConfig configures the event processing loop.
type ServiceConfig struct {
	// Workers is the number of concurrent event processors.
	Workers int `yaml:"workers"`

	// EventBuffer is the trigger source channel buffer.
	EventBuffer int `yaml:"event_buffer"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
	RedactPHI *bool  `yaml:"redact_phi"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
	Path      string `yaml:"path"`
}

// ServerConfig configures the ops HTTP server (metrics + health probes).
type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}
