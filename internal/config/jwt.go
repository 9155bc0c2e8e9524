package config

import (
	"fmt"
	"time"
)

// DefaultOperatorTokenTTL is used when operator-token is run without --ttl.
const DefaultOperatorTokenTTL = 24 * time.Hour

// JWTConfig holds configuration for operator token signing and validation.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// JWT returns the operator token configuration. ttl <= 0 selects the default.
// It fails when no operator secret is configured.
func (c ServerConfig) JWT(ttl time.Duration) (*JWTConfig, error) {
	if ttl <= 0 {
		ttl = DefaultOperatorTokenTTL
	}
	cfg := &JWTConfig{Secret: c.OperatorSecret, Expiration: ttl}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("config error: 'server.operator_secret' is not set (%s_SERVER_OPERATOR_SECRET)", EnvPrefix)
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("config error: 'server.operator_secret' must be at least 16 bytes")
	}
	if c.Expiration < time.Minute {
		return fmt.Errorf("config error: operator token lifetime must be at least 1 minute, got %s", c.Expiration)
	}
	return nil
}
