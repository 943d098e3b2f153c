package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/service/sqs"
)

// Config holds the process-level configuration for the sqstreams binary.
type Config struct {
	ConnectionString string
	ServiceID        string
	ProviderName     string
	// QueueCount is the number of physical queues streams are spread over.
	QueueCount int
	Fifo       bool
	// ContentDedup enables ContentBasedDeduplication on FIFO queues.
	ContentDedup bool
	FifoGroupID  string
	// Port is the listen port of the local emulator.
	Port     int
	LogLevel slog.Level
}

// NewConfig creates and returns a new Config instance, populating it from
// environment variables or using default values.
func NewConfig() *Config {
	return &Config{
		ConnectionString: getEnv("SQSTREAMS_CONNECTION_STRING", ""),
		ServiceID:        getEnv("SQSTREAMS_SERVICE_ID", "sqstreams"),
		ProviderName:     getEnv("SQSTREAMS_PROVIDER", "sqs"),
		QueueCount:       getEnvAsInt("SQSTREAMS_QUEUE_COUNT", 8),
		Fifo:             getEnvAsBool("SQSTREAMS_FIFO", false),
		ContentDedup:     getEnvAsBool("SQSTREAMS_CONTENT_DEDUP", false),
		FifoGroupID:      getEnv("SQSTREAMS_FIFO_GROUP_ID", DefaultFifoMessageGroupID),
		Port:             getEnvAsInt("SQSTREAMS_PORT", 8080),
		LogLevel:         getEnvAsLevel("SQSTREAMS_LOG_LEVEL", slog.LevelInfo),
	}
}

// Options builds provider Options from the process configuration.
func (c *Config) Options() *Options {
	opts := DefaultOptions()
	opts.ConnectionString = c.ConnectionString
	if c.FifoGroupID != "" {
		opts.FifoMessageGroupID = c.FifoGroupID
	}
	if c.Fifo {
		opts.QueueAttributes[sqs.QueueAttributeNameFifoQueue] = "true"
		if c.ContentDedup {
			opts.QueueAttributes[sqs.QueueAttributeNameContentBasedDeduplication] = "true"
			opts.FifoMessageDeduplicationIDGenerator = nil
		}
	}
	return opts
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvAsInt parses an environment variable as an integer.
// If the environment variable is not set, not a valid integer, or is empty,
// it returns the provided fallback value.
func getEnvAsInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvAsLevel(key string, fallback slog.Level) slog.Level {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(valueStr))); err != nil {
		return fallback
	}
	return level
}
