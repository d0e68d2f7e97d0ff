// Package config loads server configuration in three layers: built-in
// defaults, an optional YAML file, then environment variables. Later layers
// win.
//
// The environment names the server has always read (PORT, DB_PATH,
// JWT_SECRET, GITHUB_*) map onto the nested keys, so existing deployments
// keep working without a config file.
package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Media    MediaConfig    `koanf:"media"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// BaseURL prefixes short links, e.g. "https://foodgram.example".
	// Empty means links are built from the request host.
	BaseURL         string        `koanf:"base_url"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	// JWTSecret signs session tokens. When empty the server generates a
	// random one at startup, so tokens do not survive a restart.
	JWTSecret          string        `koanf:"jwt_secret"`
	TokenTTL           time.Duration `koanf:"token_ttl"`
	CookieSecure       bool          `koanf:"cookie_secure"`
	GitHubClientID     string        `koanf:"github_client_id"`
	GitHubClientSecret string        `koanf:"github_client_secret"`
	GitHubCallbackURL  string        `koanf:"github_callback_url"`
}

// GitHubEnabled reports whether GitHub sign-in routes should be registered.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type MediaConfig struct {
	Dir           string `koanf:"dir"`
	URLPrefix     string `koanf:"url_prefix"`
	MaxImageBytes int    `koanf:"max_image_bytes"`
	ThumbWidth    int    `koanf:"thumb_width"`
	ThumbHeight   int    `koanf:"thumb_height"`
}

type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	// LoginRateLimit applies per IP to the token and registration endpoints,
	// within the same window.
	LoginRateLimit int `koanf:"login_rate_limit"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// Default returns the built-in settings, the lowest configuration layer.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/foodgram.db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Media: MediaConfig{
			Dir:           "data/media",
			URLPrefix:     "/media/",
			MaxImageBytes: 4 << 20,
			ThumbWidth:    800,
			ThumbHeight:   800,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
			LoginRateLimit:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
