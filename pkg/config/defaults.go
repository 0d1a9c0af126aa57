package config

import "time"

// ApplyDefaults fills unset fields with defaults. Called by LoadConfig; call
// it directly when building a Config in code.
func ApplyDefaults(cfg *Config) {
	if cfg.Engine.MaxConditionDepth == 0 {
		cfg.Engine.MaxConditionDepth = 16
	}
	if cfg.Engine.MaxConcurrentRules == 0 {
		cfg.Engine.MaxConcurrentRules = 1
	}
	if cfg.Engine.RuleTimeout == 0 {
		cfg.Engine.RuleTimeout = 5 * time.Minute
	}

	if cfg.Rules.Source == "" {
		cfg.Rules.Source = "file"
	}
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = "rules/"
	}
	if cfg.Rules.DebounceInterval == 0 {
		cfg.Rules.DebounceInterval = 200 * time.Millisecond
	}
	if cfg.Rules.Store == "" {
		cfg.Rules.Store = "memory"
	}
	if cfg.Rules.SQLite.Path == "" {
		cfg.Rules.SQLite.Path = "data/rules.db"
	}
	if cfg.Rules.SQLite.BusyTimeout == 0 {
		cfg.Rules.SQLite.BusyTimeout = 5 * time.Second
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = "sqlite"
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = "data/audit.db"
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = 1000
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = 5 * time.Second
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = 90
	}
	if cfg.Audit.Retention.PruneSchedule == "" {
		cfg.Audit.Retention.PruneSchedule = "0 3 * * *"
	}

	if cfg.Outbound.Timeout == 0 {
		cfg.Outbound.Timeout = 30 * time.Second
	}
	if cfg.Outbound.MaxRetries == 0 {
		cfg.Outbound.MaxRetries = 2
	}
	if cfg.Outbound.Burst == 0 {
		cfg.Outbound.Burst = 10
	}

	if cfg.Service.Workers == 0 {
		cfg.Service.Workers = 1
	}
	if cfg.Service.EventBuffer == 0 {
		cfg.Service.EventBuffer = 256
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "callisto"
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = "engine"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":9090"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
}
