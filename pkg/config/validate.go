package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"revcycle-hq/callisto/pkg/telemetry/logging"
)

// ErrInvalidConfig wraps all validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks the configuration for internal consistency. It expects
// defaults to be applied first.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxConditionDepth <= 0 {
		return fmt.Errorf("%w: engine.max_condition_depth must be positive", ErrInvalidConfig)
	}
	if cfg.Engine.MaxConcurrentRules <= 0 {
		return fmt.Errorf("%w: engine.max_concurrent_rules must be positive", ErrInvalidConfig)
	}
	if cfg.Engine.RuleTimeout < 0 {
		return fmt.Errorf("%w: engine.rule_timeout cannot be negative", ErrInvalidConfig)
	}

	switch cfg.Rules.Source {
	case "file", "store":
	default:
		return fmt.Errorf("%w: rules.source must be \"file\" or \"store\", got %q",
			ErrInvalidConfig, cfg.Rules.Source)
	}
	if cfg.Rules.Source == "file" && cfg.Rules.Path == "" {
		return fmt.Errorf("%w: rules.path is required for the file source", ErrInvalidConfig)
	}
	switch cfg.Rules.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: rules.store must be \"memory\" or \"sqlite\", got %q",
			ErrInvalidConfig, cfg.Rules.Store)
	}
	if cfg.Rules.Store == "sqlite" && cfg.Rules.SQLite.Path == "" {
		return fmt.Errorf("%w: rules.sqlite.path is required for the sqlite store", ErrInvalidConfig)
	}

	switch cfg.Audit.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: audit.backend must be \"memory\" or \"sqlite\", got %q",
			ErrInvalidConfig, cfg.Audit.Backend)
	}
	if cfg.Audit.Backend == "sqlite" && cfg.Audit.SQLitePath == "" {
		return fmt.Errorf("%w: audit.sqlite_path is required for the sqlite backend", ErrInvalidConfig)
	}
	if cfg.Audit.AsyncBuffer <= 0 {
		return fmt.Errorf("%w: audit.async_buffer must be positive", ErrInvalidConfig)
	}
	if cfg.Audit.Retention.Days < 0 {
		return fmt.Errorf("%w: audit.retention.days cannot be negative", ErrInvalidConfig)
	}
	if cfg.Audit.Retention.MaxRecords < 0 {
		return fmt.Errorf("%w: audit.retention.max_records cannot be negative", ErrInvalidConfig)
	}
	if cfg.Audit.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Audit.Retention.PruneSchedule); err != nil {
			return fmt.Errorf("%w: audit.retention.prune_schedule: %v", ErrInvalidConfig, err)
		}
	}

	if cfg.Outbound.Timeout <= 0 {
		return fmt.Errorf("%w: outbound.timeout must be positive", ErrInvalidConfig)
	}
	if cfg.Outbound.MaxRetries < 0 {
		return fmt.Errorf("%w: outbound.max_retries cannot be negative", ErrInvalidConfig)
	}
	if cfg.Outbound.RatePerSecond < 0 {
		return fmt.Errorf("%w: outbound.rate_per_second cannot be negative", ErrInvalidConfig)
	}

	if cfg.Service.Workers <= 0 {
		return fmt.Errorf("%w: service.workers must be positive", ErrInvalidConfig)
	}
	if cfg.Service.EventBuffer < 0 {
		return fmt.Errorf("%w: service.event_buffer cannot be negative", ErrInvalidConfig)
	}

	if _, err := logging.ParseLevel(cfg.Telemetry.Logging.Level); err != nil {
		return fmt.Errorf("%w: telemetry.logging.level: %v", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseFormat(cfg.Telemetry.Logging.Format); err != nil {
		return fmt.Errorf("%w: telemetry.logging.format: %v", ErrInvalidConfig, err)
	}

	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("%w: server.listen_address is required", ErrInvalidConfig)
	}
	return nil
}
