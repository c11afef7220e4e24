package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// blocklistFile is the shape of an optional user override file that
// extends (never replaces) the built-in and config-file blocked
// patterns with site-local rules, e.g. patterns matching an internal
// deploy tool the built-in list can't know about.
type blocklistFile struct {
	Patterns []string `yaml:"patterns"`
}

// LoadBlocklistOverride reads path as YAML and appends its patterns to
// c.Safety.BlockedPatterns, deduplicating against what's already
// present. A missing file is a no-op: the override is optional.
func (c *Config) LoadBlocklistOverride(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read blocklist override %s: %w", path, err)
	}

	var parsed blocklistFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("cannot parse blocklist override %s: %w", path, err)
	}

	seen := make(map[string]bool, len(c.Safety.BlockedPatterns))
	for _, p := range c.Safety.BlockedPatterns {
		seen[p] = true
	}
	for _, p := range parsed.Patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		c.Safety.BlockedPatterns = append(c.Safety.BlockedPatterns, p)
	}
	return nil
}
