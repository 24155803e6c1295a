package schema

import (
	"errors"
	"time"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// StateDir holds the workspace snapshot. Empty disables persistence.
	StateDir string
	// DefaultTitle is used for tabs not bound to a file.
	DefaultTitle string
	// RequestTimeout bounds each backend call made by the service.
	RequestTimeout time.Duration
	// ResetContextOnCreate resets the backend execution context for new notebooks.
	ResetContextOnCreate bool
}

// DefaultRequestTimeout is the default per-call backend timeout.
const DefaultRequestTimeout = 30 * time.Second

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = DefaultTitle
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RequestTimeout < 0 {
		return ServiceConfig{}, errors.New("request timeout must be positive")
	}
	return cfg, nil
}
