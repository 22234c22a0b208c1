// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Data      DataConfig      `envconfig:"DATA"`
	Reload    ReloadConfig    `envconfig:"RELOAD"`
	Database  DatabaseConfig  `envconfig:"DATABASE"`
	Rate      RateLimitConfig `envconfig:"RATE_LIMIT"`
	Security  SecurityConfig  `envconfig:"SECURITY"`
	Logging   LoggingConfig   `envconfig:"LOG"`
	WebSocket WebSocketConfig `envconfig:"WS"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `split_words:"true" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `split_words:"true" default:"8000"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `split_words:"true" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, websocket friendly)
	WriteTimeout time.Duration `split_words:"true" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `split_words:"true" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `split_words:"true" default:"60s"`
}

// DataConfig holds dataset source settings.
type DataConfig struct {
	// BaseDir is the directory every source path is resolved against (default: .)
	BaseDir string `split_words:"true" default:"."`

	// DefaultFile is loaded at startup (default: data/Spotify_Songs_2024.csv)
	DefaultFile string `split_words:"true" default:"data/Spotify_Songs_2024.csv"`

	// UpdateFile is used by POST /api/update-data when no file_path is given
	UpdateFile string `split_words:"true" default:"data/Spotify_Songs_2024_new.csv"`

	// MaxFileSize is the largest source file accepted, in bytes (default: 100MB)
	MaxFileSize int64 `split_words:"true" default:"104857600"`

	// ArtistBlacklist lists artist names that are aggregator channels, not artists.
	ArtistBlacklist []string `split_words:"true" default:"MUSIC LAB JPN,LOVE BGM JPN,sped up 8282,DJ MIX NON-STOP CHANNEL,WORK OUT GYM - DJ MIX"`
}

// ReloadConfig holds dataset reload settings.
type ReloadConfig struct {
	// Interval is how often the source file is checked for changes (default: 0, disabled)
	Interval time.Duration `split_words:"true" default:"0s"`

	// MaxConcurrent is the maximum number of loads running at once (default: 2)
	MaxConcurrent int `split_words:"true" default:"2"`

	// MaxWaitTime is how long a reload waits for a slot (default: 10s)
	MaxWaitTime time.Duration `split_words:"true" default:"10s"`

	// Timeout bounds a single load (default: 2m)
	Timeout time.Duration `split_words:"true" default:"2m"`
}

// DatabaseConfig holds the optional audit database settings.
// When URL is empty, reload history is kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	URL string `split_words:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `split_words:"true" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `split_words:"true" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `split_words:"true" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `split_words:"true" default:"30m"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `split_words:"true" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 300)
	RequestsPerMinute int `split_words:"true" default:"300"`

	// Burst is the number of requests allowed above the sustained rate (default: 50)
	Burst int `split_words:"true" default:"50"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `split_words:"true"`

	// AllowedOrigins is the CORS allow list (default: *)
	AllowedOrigins []string `split_words:"true" default:"*"`

	// RequireAPIKey protects the update endpoint with X-API-Key (default: false)
	RequireAPIKey bool `split_words:"true" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `split_words:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `split_words:"true" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `split_words:"true" default:"text"`
}

// WebSocketConfig holds settings for the dataset notification stream.
type WebSocketConfig struct {
	// PingPeriod is how often idle clients are pinged (default: 30s)
	PingPeriod time.Duration `split_words:"true" default:"30s"`

	// WriteWait bounds a single write to a client (default: 10s)
	WriteWait time.Duration `split_words:"true" default:"10s"`

	// SendBuffer is the per-client outbound queue length (default: 16)
	SendBuffer int `split_words:"true" default:"16"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// RequestsPerSecond converts the per-minute rate into the limiter's unit.
func (c *RateLimitConfig) RequestsPerSecond() float64 {
	return float64(c.RequestsPerMinute) / 60
}
