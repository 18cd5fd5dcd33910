// Package config loads gateway configuration from environment variables,
// following the defaults and variable names the gateway's environment
// contract specifies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// GatewayConfig holds everything the gateway needs to start listening,
// verify tokens, and reach the bus.
type GatewayConfig struct {
	JWTSecret string

	GatewayHost string
	GatewayPort int

	NATSURL string

	TLSCertPath string
	TLSKeyPath  string
	TLSMinVersion string

	LogLevel string
}

// WebSocketPort is the WebSocket listener port: the WebTransport port plus one.
func (c *GatewayConfig) WebSocketPort() int {
	return c.GatewayPort + 1
}

// Load builds a GatewayConfig from the process environment, applying the
// documented defaults for everything but JWT_SECRET.
func Load() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		JWTSecret:     getEnv("JWT_SECRET", ""),
		GatewayHost:   getEnv("GATEWAY_HOST", "0.0.0.0"),
		GatewayPort:   getEnvInt("GATEWAY_PORT", 4433),
		NATSURL:       getEnv("NATS_URL", "localhost:4222"),
		TLSCertPath:   getEnv("TLS_CERT_PATH", ""),
		TLSKeyPath:    getEnv("TLS_KEY_PATH", ""),
		TLSMinVersion: getEnv("TLS_MIN_VERSION", "1.3"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the config is internally consistent, aggregating
// every problem it finds rather than stopping at the first one.
func (c *GatewayConfig) Validate() error {
	var problems []string

	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	}

	if c.GatewayHost == "" {
		problems = append(problems, "GATEWAY_HOST must not be empty")
	}

	if c.GatewayPort <= 0 || c.GatewayPort > 65534 {
		problems = append(problems, fmt.Sprintf("GATEWAY_PORT %d is out of range (must leave room for +1)", c.GatewayPort))
	}

	if c.NATSURL == "" {
		problems = append(problems, "NATS_URL must not be empty")
	}

	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		problems = append(problems, "TLS_CERT_PATH and TLS_KEY_PATH must both be set or both be empty")
	}

	switch c.TLSMinVersion {
	case "1.2", "1.3":
	default:
		problems = append(problems, fmt.Sprintf("TLS_MIN_VERSION %q must be \"1.2\" or \"1.3\"", c.TLSMinVersion))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
