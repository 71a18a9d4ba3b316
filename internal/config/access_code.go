package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
)

// AccessCodeConfig holds configuration for hashing secure-link access codes.
type AccessCodeConfig struct {
	BcryptCost int
	Pepper     string // optional global secret appended before hashing
}

// NewAccessCodeConfig creates a new access code configuration from environment variables.
// It reads ACCESS_CODE_BCRYPT_COST (default: 12) and optionally ACCESS_CODE_PEPPER.
func NewAccessCodeConfig() (*AccessCodeConfig, error) {
	costStr := os.Getenv("ACCESS_CODE_BCRYPT_COST")
	if costStr == "" {
		costStr = "12"
	}

	cost, err := strconv.Atoi(costStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCESS_CODE_BCRYPT_COST: %v", err)
	}

	config := &AccessCodeConfig{
		BcryptCost: cost,
		Pepper:     os.Getenv("ACCESS_CODE_PEPPER"),
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// normalize validates the configuration.
func (c *AccessCodeConfig) normalize() error {
	if c.BcryptCost < 10 || c.BcryptCost > 14 {
		return fmt.Errorf("bcrypt cost out of range: %d (must be 10-14)", c.BcryptCost)
	}
	return nil
}

// HashAccessCode hashes an access code using bcrypt (with optional pepper).
func (c *AccessCodeConfig) HashAccessCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code+c.Pepper), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash access code: %w", err)
	}
	return string(hash), nil
}

// VerifyAccessCode verifies an access code against a stored hash (with optional pepper).
func (c *AccessCodeConfig) VerifyAccessCode(code, storedHash string) bool {
	if code == "" || storedHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(code+c.Pepper))
	return err == nil
}
