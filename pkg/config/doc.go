// Package config defines the YAML configuration for the callisto service
// and its loading pipeline: parse file, apply defaults, apply CALLISTO_*
// environment overrides, validate.
package config
