package config

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInvalidConfig marks a configuration that loaded but fails
	// validation (missing credentials, non-positive page size).
	ErrInvalidConfig = errors.New("invalid config")

	// ErrLoadConfig marks a failure reading the file or env layers.
	ErrLoadConfig = errors.New("load config failed")
)
