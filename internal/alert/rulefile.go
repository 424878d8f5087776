package alert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/socialeye/internal/models"
)

type ruleFile struct {
	Rules []*models.AlertRule `yaml:"rules"`
}

// LoadRuleFile reads rules from a YAML (or JSON) file holding either a
// top-level "rules" list or a bare list. Every rule must validate and ids
// must be unique.
func LoadRuleFile(path string) ([]*models.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' || trimmed[0] == '-' {
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
	} else {
		var f ruleFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		rules = f.Rules
	}

	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("rule %d is empty", i)
		}
		if err := ValidateRule(r); err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
	}
	return rules, nil
}

// ExportRuleFile writes rules in the format LoadRuleFile reads.
func ExportRuleFile(path string, rules []*models.AlertRule) error {
	data, err := yaml.Marshal(ruleFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// WatchRuleFile calls onChange with the reloaded rules each time path is
// written or replaced, until ctx is cancelled. A reload that fails to parse
// or validate is logged and onChange is not called.
func WatchRuleFile(ctx context.Context, path string, log logrus.FieldLogger, onChange func([]*models.AlertRule)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that save by rename are still seen.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	log = log.WithField("path", path)
	log.Info("watching rule file for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			rules, err := LoadRuleFile(path)
			if err != nil {
				log.WithError(err).Error("rule file reload failed, keeping previous rules")
				continue
			}
			log.WithField("rules", len(rules)).Info("rule file reloaded")
			onChange(rules)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("rule file watcher error")
		}
	}
}
