// Package config provides configuration management for the portfolio tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Polymarket PolymarketConfig
	Polygon    PolygonConfig
	Refresh    RefreshConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// RedisConfig holds Redis configuration for the durable store area
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PolymarketConfig holds Polymarket data API configuration
type PolymarketConfig struct {
	APIBase        string
	RequestsPerSec float64
	Timeout        time.Duration
}

// PolygonConfig holds the Polygon RPC configuration for the USDC balance read
type PolygonConfig struct {
	RPCURL       string
	USDCContract string
	USDCDecimals int
}

// RefreshConfig holds refresh worker configuration
type RefreshConfig struct {
	Wallet       string
	PollInterval time.Duration
	FetchTrades  bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
		},
		Polymarket: PolymarketConfig{
			APIBase:        getEnv("POLYMARKET_API_BASE", "https://data-api.polymarket.com"),
			RequestsPerSec: getEnvAsFloat("POLYMARKET_REQUESTS_PER_SEC", 5),
			Timeout:        getEnvAsDuration("POLYMARKET_TIMEOUT", 15*time.Second),
		},
		Polygon: PolygonConfig{
			RPCURL:       getEnv("POLYGON_RPC_URL", "https://polygon-rpc.com/"),
			USDCContract: getEnv("USDC_CONTRACT", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
			USDCDecimals: getEnvAsInt("USDC_DECIMALS", 6),
		},
		Refresh: RefreshConfig{
			Wallet:       getEnv("WALLET_ADDRESS", ""),
			PollInterval: getEnvAsDuration("POLL_INTERVAL", 5*time.Minute),
			FetchTrades:  getEnvAsBool("FETCH_TRADES", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
