package config

import (
	"fmt"
	"time"
)

const minJWTSecretLen = 16

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", minJWTSecretLen)
	}
	if c.Auth.TokenTTL < time.Minute {
		return fmt.Errorf("auth.token_ttl must be at least 1m, got %s", c.Auth.TokenTTL)
	}
	if (c.Auth.GitHubClientID == "") != (c.Auth.GitHubClientSecret == "") {
		return fmt.Errorf("auth.github_client_id and auth.github_client_secret must be set together")
	}

	if c.Media.Dir == "" {
		return fmt.Errorf("media.dir is required")
	}
	if c.Media.MaxImageBytes <= 0 {
		return fmt.Errorf("media.max_image_bytes must be positive")
	}
	if c.Media.ThumbWidth < 0 || c.Media.ThumbHeight < 0 {
		return fmt.Errorf("media thumbnail dimensions must not be negative")
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitRequests <= 0 || c.Security.LoginRateLimit <= 0 {
			return fmt.Errorf("security rate limits must be positive")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
