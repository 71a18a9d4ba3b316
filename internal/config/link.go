// Package config provides secure link configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// LinkConfig holds configuration for signing partner secure-link tokens.
type LinkConfig struct {
	Secret          string
	ExpirationHours int
}

// NewLinkConfig creates a new link configuration from environment variables.
// It reads SECURE_LINK_SECRET (required) and SECURE_LINK_EXPIRATION_HOURS (default: 168).
func NewLinkConfig() (*LinkConfig, error) {
	secret := os.Getenv("SECURE_LINK_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("SECURE_LINK_SECRET is required but not set")
	}

	expirationStr := os.Getenv("SECURE_LINK_EXPIRATION_HOURS")
	if expirationStr == "" {
		expirationStr = "168" // one week
	}

	expirationHours, err := strconv.Atoi(expirationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SECURE_LINK_EXPIRATION_HOURS: %v", err)
	}

	config := &LinkConfig{
		Secret:          secret,
		ExpirationHours: expirationHours,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// normalize validates the configuration.
func (c *LinkConfig) normalize() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("SECURE_LINK_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("SECURE_LINK_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
