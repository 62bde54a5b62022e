package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML layout of a user secrets file:
//
//	[allowlist]
//	regexes = ['^sk-test-']
//
//	[[rules]]
//	id = "internal-host"
//	pattern = 'corp-[a-z]+\.internal'
type fileConfig struct {
	Allowlist struct {
		Regexes []string `toml:"regexes"`
	} `toml:"allowlist"`
	Rules []struct {
		ID      string `toml:"id"`
		Pattern string `toml:"pattern"`
	} `toml:"rules"`
}

// MergeFile adds the rules and allow list entries of the TOML file at path
// to cfg. A missing file leaves cfg unchanged.
func MergeFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("decoding secrets file %s: %w", path, err)
	}

	for _, pattern := range fc.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("secrets file %s: invalid allowlist pattern %q: %w", path, pattern, err)
		}
	}
	for _, r := range fc.Rules {
		if r.ID == "" || r.Pattern == "" {
			return fmt.Errorf("secrets file %s: rule requires id and pattern", path)
		}
		cfg.Rules = append(cfg.Rules, Rule{ID: r.ID, Pattern: r.Pattern})
	}
	cfg.AllowList = append(cfg.AllowList, fc.Allowlist.Regexes...)
	return nil
}
