package engine

import (
	"fmt"
	"time"
)

// Config contains configuration for the rule engine.
type Config struct {
	// MaxConditionDepth bounds condition tree nesting. Trees deeper than
	// this fail evaluation with ErrDepthExceeded instead of recursing
	// without limit. Default: 16.
	MaxConditionDepth int

	// MaxConcurrentRules bounds parallelism across rules within one
	// trigger batch. Actions within a rule always run sequentially.
	// Default: 1 (rules run strictly in priority order).
	MaxConcurrentRules int

	// RuleTimeout is the maximum time allowed for one rule's conditions
	// and actions together. Zero disables the per-rule deadline; delay
	// actions routinely run long, so the default is generous.
	// Default: 5 minutes.
	RuleTimeout time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConditionDepth:  16,
		MaxConcurrentRules: 1,
		RuleTimeout:        5 * time.Minute,
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if c.MaxConditionDepth <= 0 {
		return fmt.Errorf("%w: max condition depth must be positive", ErrInvalidConfig)
	}
	if c.MaxConcurrentRules <= 0 {
		return fmt.Errorf("%w: max concurrent rules must be positive", ErrInvalidConfig)
	}
	if c.RuleTimeout < 0 {
		return fmt.Errorf("%w: rule timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}
