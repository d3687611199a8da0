package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/maneesh/packfile/internal/codec"
	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServiceName string
	LogLevel    string

	// Packing defaults, overridden by command line flags
	Compression    int
	MemoryBuffer   bool
	SkipCompressed bool
	SkipMinSize    int64

	// Tracing configuration; empty endpoint disables export
	OTLPEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		ServiceName: getEnv("PACKFILE_SERVICE_NAME", "packfile"),
		LogLevel:    getEnv("PACKFILE_LOG_LEVEL", "info"),

		Compression:    getEnvAsInt("PACKFILE_COMPRESSION", 0),
		MemoryBuffer:   getEnvAsBool("PACKFILE_MEMORY_BUFFER", true),
		SkipCompressed: getEnvAsBool("PACKFILE_SKIP_COMPRESSED", false),
		SkipMinSize:    int64(getEnvAsInt("PACKFILE_SKIP_MIN_SIZE", 512)),

		OTLPEndpoint: getEnv("PACKFILE_OTLP_ENDPOINT", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if _, err := codec.ParseKind(c.Compression); err != nil {
		return fmt.Errorf("PACKFILE_COMPRESSION: %w", err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("PACKFILE_LOG_LEVEL: %w", err)
	}
	if c.SkipMinSize < 0 {
		return fmt.Errorf("PACKFILE_SKIP_MIN_SIZE: must not be negative, got %d", c.SkipMinSize)
	}
	return nil
}

// Level returns the parsed log level. Validate has already accepted it.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// TracingEnabled reports whether spans should be exported.
func (c *Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
