package config

import "errors"

// ErrLoadConfig marks a config file or environment that could not be read or parsed.
// ErrInvalidConfig marks a configuration that loaded but failed validation;
// commands map it to a configuration exit status.
var (
	ErrLoadConfig    = errors.New("load config failed")
	ErrInvalidConfig = errors.New("invalid config")
)
