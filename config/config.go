package config

import (
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string

	// Database (optional event ledger)
	DatabaseURL string

	// Object storage
	AWSRegion     string
	StorageBucket string // empty selects the local filesystem store
	StoragePrefix string
	DataDir       string

	// Segment execution
	SegmentCommand     string
	DiagnosticsCommand string
	JobStatusCommand   string

	// Job polling
	PollInterval time.Duration
	PollDeadline time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		StorageBucket:      getEnv("STORAGE_BUCKET", ""),
		StoragePrefix:      getEnv("STORAGE_PREFIX", ""),
		DataDir:            getEnv("DATA_DIR", "./data"),
		SegmentCommand:     getEnv("SEGMENT_COMMAND", "run-segment"),
		DiagnosticsCommand: getEnv("DIAGNOSTICS_COMMAND", "compute-diagnostics"),
		JobStatusCommand:   getEnv("JOB_STATUS_COMMAND", "job-status"),
		PollInterval:       getDuration("POLL_INTERVAL", 90*time.Second),
		PollDeadline:       getDuration("POLL_DEADLINE", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
