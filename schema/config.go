package schema

import (
	"os"
	"strings"
)

// ServiceConfig defines defaults for the core service.
type ServiceConfig struct {
	// DefaultWorkingDirectory is used when a session is created without one.
	DefaultWorkingDirectory string
	// Credential is handed to the backend for sessions created by front ends.
	Credential string
}

// NormalizeServiceConfig applies defaults.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	cfg.DefaultWorkingDirectory = strings.TrimSpace(cfg.DefaultWorkingDirectory)
	if cfg.DefaultWorkingDirectory == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.DefaultWorkingDirectory = home
	}
	return cfg, nil
}
