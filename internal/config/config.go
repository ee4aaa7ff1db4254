package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string

	// REST API
	APIBaseURL  string
	HTTPTimeout time.Duration
	// TokenRefreshLead is how far ahead of the token's exp claim a
	// proactive refresh runs
	TokenRefreshLead time.Duration

	// Broadcast (push) transport
	BroadcastAppKey    string
	BroadcastHost      string
	BroadcastPort      int
	BroadcastScheme    string
	BroadcastAuthPath  string
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// Event reconciliation
	RecencyCapacity int

	// Local diagnostics endpoint (/healthz, /metrics); empty disables it
	DiagAddr string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", "http://127.0.0.1:8000/api"), "/"),
		HTTPTimeout:        getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		TokenRefreshLead:   getEnvAsDuration("TOKEN_REFRESH_LEAD", time.Minute),
		BroadcastAppKey:    getEnv("BROADCAST_APP_KEY", ""),
		BroadcastHost:      getEnv("BROADCAST_HOST", "127.0.0.1"),
		BroadcastPort:      getEnvAsInt("BROADCAST_PORT", 8080),
		BroadcastScheme:    strings.ToLower(getEnv("BROADCAST_SCHEME", "http")),
		BroadcastAuthPath:  getEnv("BROADCAST_AUTH_PATH", "/api/broadcasting/auth"),
		ReconnectBaseDelay: getEnvAsDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:  getEnvAsDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		RecencyCapacity:    getEnvAsInt("RECENCY_CAPACITY", 1024),
		DiagAddr:           getEnv("DIAG_ADDR", ""),
	}
}

// SocketURL builds the websocket endpoint for the broadcast transport.
func (c *Config) SocketURL() string {
	scheme := "ws"
	if c.BroadcastScheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/app/%s", scheme, c.BroadcastHost, c.BroadcastPort, c.BroadcastAppKey)
}

// AuthURL builds the channel authorization endpoint.
func (c *Config) AuthURL() string {
	return fmt.Sprintf("%s://%s%s", c.BroadcastScheme, apiHost(c.APIBaseURL), c.BroadcastAuthPath)
}

func apiHost(baseURL string) string {
	rest := baseURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
