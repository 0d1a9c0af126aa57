package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"revcycle-hq/callisto/pkg/rules"
)

// ruleDocument is the YAML shape of a rule file: either a list under a
// top-level "rules" key or a single rule document.
type ruleDocument struct {
	Rules []*rules.Rule `yaml:"rules"`
}

// FileSource loads rules from YAML files on disk. The path can be a single
// file or a directory; directories are walked recursively and every .yaml
// and .yml file is loaded.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a file-based rule source.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{path: path, logger: logger}
}

// LoadRules loads all rules from the configured path. In directory mode an
// invalid file is skipped with a warning so one bad rule cannot take the
// whole set down; a single-file source surfaces the error.
func (s *FileSource) LoadRules(_ context.Context) ([]*rules.Rule, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	var loaded []*rules.Rule
	if info.IsDir() {
		loaded, err = s.loadDirectory()
	} else {
		loaded, err = s.loadFile(s.path)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("loaded rules from source",
		slog.String("path", s.path),
		slog.Int("rule_count", len(loaded)))
	return loaded, nil
}

func (s *FileSource) loadDirectory() ([]*rules.Rule, error) {
	var loaded []*rules.Rule

	err := filepath.Walk(s.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		fileRules, err := s.loadFile(path)
		if err != nil {
			s.logger.Warn("failed to load rule file, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		loaded = append(loaded, fileRules...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %q: %w", s.path, err)
	}
	return loaded, nil
}

// loadFile parses one rule file, accepting both a "rules:" list and a
// single top-level rule document. Every rule is validated before it is
// accepted.
func (s *FileSource) loadFile(path string) ([]*rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}

	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %q: %w", path, err)
	}

	loaded := doc.Rules
	if len(loaded) == 0 {
		var single rules.Rule
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("failed to parse rule file %q: %w", path, err)
		}
		if single.ID == "" {
			return nil, fmt.Errorf("rule file %q contains no rules", path)
		}
		loaded = []*rules.Rule{&single}
	}

	for _, rule := range loaded {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule in %q: %w", path, err)
		}
	}

	s.logger.Debug("loaded rule file",
		slog.String("path", path),
		slog.Int("rule_count", len(loaded)))
	return loaded, nil
}

// Watch watches the path with fsnotify and calls onChange after a debounce
// window whenever a rule file is created, modified, renamed, or removed.
// Blocks until the context is cancelled.
func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := NewFileWatcher(nil, s.logger)
	if err != nil {
		return err
	}
	watcher.config.Path = s.path
	return watcher.Watch(ctx, onChange)
}

func isRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
