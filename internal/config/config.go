package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultChannel is the broadcast channel shared by every relay instance.
const DefaultChannel = "dab.dialog-events-v1"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Shared store and broadcast medium
	Redis RedisConfig

	// Retry and subscription behaviour
	Retry RetryConfig

	// Ticket protocol
	Ticket TicketConfig

	// JWT configuration
	JWT JWTConfig

	// Remote authorization
	Authz AuthzConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// CORS for browser producers
	CORS CORSConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig holds the shared store configuration
type RedisConfig struct {
	URL         string
	Channel     string
	DialTimeout time.Duration
}

// RetryConfig holds the retry policy and subscription settings
type RetryConfig struct {
	MaxRetries           int
	InitialBackoff       time.Duration
	SubscribeMaxAttempts int
	SubscribeAckTimeout  time.Duration
}

// TicketConfig holds connection ticket settings
type TicketConfig struct {
	TTL       time.Duration
	SingleUse bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// AuthzConfig holds the policy service client configuration.
// An empty URL allows every ticket request.
type AuthzConfig struct {
	URL     string
	Timeout time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	TicketRPS         float64 // Stricter limit for ticket issuance
	TicketBurst       int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	AuthTimeout     time.Duration
	SendBuffer      int
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv reads the configuration from the process environment without validating it.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:         os.Getenv("REDIS_URL"),
			Channel:     getEnvOrDefault("REDIS_CHANNEL", DefaultChannel),
			DialTimeout: getDurationOrDefault("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Retry: RetryConfig{
			MaxRetries:           getIntOrDefault("RETRY_MAX_RETRIES", 3),
			InitialBackoff:       getDurationOrDefault("RETRY_INITIAL_BACKOFF", 10*time.Millisecond),
			SubscribeMaxAttempts: getIntOrDefault("SUBSCRIBE_MAX_ATTEMPTS", 3),
			SubscribeAckTimeout:  getDurationOrDefault("SUBSCRIBE_ACK_TIMEOUT", 5*time.Second),
		},
		Ticket: TicketConfig{
			TTL:       getDurationOrDefault("TICKET_TTL", 6*time.Hour),
			SingleUse: getBoolOrDefault("TICKET_SINGLE_USE", false),
		},
		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			Issuer:   os.Getenv("JWT_ISSUER"),
			Audience: os.Getenv("JWT_AUDIENCE"),
		},
		Authz: AuthzConfig{
			URL:     os.Getenv("AUTHZ_URL"),
			Timeout: getDurationOrDefault("AUTHZ_TIMEOUT", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
			TicketRPS:         getFloatOrDefault("RATE_LIMIT_TICKET_RPS", 2),
			TicketBurst:       getIntOrDefault("RATE_LIMIT_TICKET_BURST", 5),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 15*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 30*time.Second),
			AuthTimeout:     getDurationOrDefault("WS_AUTH_TIMEOUT", 30*time.Second),
			SendBuffer:      getIntOrDefault("WS_SEND_BUFFER", 64),
		},
		CORS: CORSConfig{
			AllowedOrigins: getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "notification-relay"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Redis.URL == "" {
		errs = append(errs, "REDIS_URL is required")
	}

	if c.Redis.Channel == "" {
		errs = append(errs, "REDIS_CHANNEL must not be empty")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "RETRY_MAX_RETRIES cannot be negative")
	}

	if c.Retry.SubscribeMaxAttempts < 1 {
		errs = append(errs, "SUBSCRIBE_MAX_ATTEMPTS must be at least 1")
	}

	if c.Ticket.TTL <= 0 {
		errs = append(errs, "TICKET_TTL must be positive")
	}

	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		errs = append(errs, "WS_PONG_WAIT must be greater than WS_PING_INTERVAL")
	}

	if c.WebSocket.AuthTimeout <= 0 {
		errs = append(errs, "WS_AUTH_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, Redis: %s, Channel: %s, JWT: [REDACTED], Authz: %s, RateLimit: %v, TicketSingleUse: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Redis.URL),
		c.Redis.Channel,
		c.Authz.URL,
		c.RateLimit.Enabled,
		c.Ticket.SingleUse,
		c.App.Environment,
	)
}

// redactURL redacts the credentials of a connection URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.LastIndex(url, "@"); idx > 0 {
		if scheme := strings.Index(url, "://"); scheme > 0 && scheme < idx {
			return url[:scheme+3] + "[REDACTED]" + url[idx:]
		}
		return "[REDACTED]" + url[idx:]
	}
	return url
}
