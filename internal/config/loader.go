package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "CHURNBOARD_"
	envFileVar = "CHURNBOARD_CONFIG"
)

var validDrivers = map[string]bool{"memory": true, "sqlite3": true, "pgx": true}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML or TOML by extension) if CHURNBOARD_CONFIG is set
//  3. env (prefix CHURNBOARD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CHURNBOARD_QUEUE_SIZE -> queue_size; underscores are kept so keys
	// match the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrLoadConfig, ErrFileFormat, path)
	}
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if !validDrivers[c.DatabaseDriver] {
		return fmt.Errorf("%w: unknown database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.DatabaseDriver != "memory" && c.DatabaseDSN == "" {
		return fmt.Errorf("%w: database_dsn is required for %s", ErrInvalidConfig, c.DatabaseDriver)
	}
	if c.HighProbThreshold < 0 || c.HighProbThreshold > 1 {
		return fmt.Errorf("%w: high_prob_threshold must be within [0,1]", ErrInvalidConfig)
	}
	if c.DefaultListLimit <= 0 || c.MaxListLimit < c.DefaultListLimit {
		return fmt.Errorf("%w: list limits must satisfy 0 < default_list_limit <= max_list_limit", ErrInvalidConfig)
	}
	size, err := units.RAMInBytes(c.MaxBodySize)
	if err != nil || size <= 0 {
		return fmt.Errorf("%w: max_body_size %q", ErrInvalidConfig, c.MaxBodySize)
	}
	c.MaxBodyBytes = size
	return nil
}
