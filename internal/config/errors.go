package config

import "errors"

// Sentinel error kinds returned by Load.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	// ErrFileFormat is wrapped together with ErrLoadConfig when
	// CHURNBOARD_CONFIG names a file that is neither YAML nor TOML.
	ErrFileFormat = errors.New("unsupported config file format")
)
