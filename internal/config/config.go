package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"flexwta/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Paths    PathConfig
	Run      RunConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// DatabaseConfig holds the optional Postgres mirror settings. The
// filesystem stays the source of truth; the database is only enabled when
// DATABASE_URL is set.
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// PathConfig holds file system paths
type PathConfig struct {
	DataDir     string
	ArtifactDir string
	ResultDir   string
	StudyFile   string
}

// RunConfig holds the replication pipeline defaults. Values here seed the
// CLI flags; a flag set on the command line wins.
type RunConfig struct {
	Seed             int64
	Replicates       int
	InnerDraws       int
	BurnIn           int
	Workers          int
	ReplicateTimeout time.Duration
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Paths:    loadPathConfig(),
		Run:      loadRunConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	url := os.Getenv("DATABASE_URL")
	return DatabaseConfig{
		URL:     url,
		Enabled: url != "",
	}
}

func loadPathConfig() PathConfig {
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	return PathConfig{
		DataDir:     dataDir,
		ArtifactDir: getEnvOrDefault("ARTIFACT_DIR", dataDir+"/artifacts"),
		ResultDir:   getEnvOrDefault("RESULT_DIR", dataDir+"/results"),
		StudyFile:   getEnvOrDefault("STUDY_FILE", ""),
	}
}

func loadRunConfig() RunConfig {
	return RunConfig{
		Seed:             getEnvInt64OrDefault("RUN_SEED", 42),
		Replicates:       getEnvIntOrDefault("RUN_REPLICATES", 1000),
		InnerDraws:       getEnvIntOrDefault("RUN_INNER_DRAWS", 512),
		BurnIn:           getEnvIntOrDefault("RUN_BURN_IN", 15),
		Workers:          getEnvIntOrDefault("RUN_WORKERS", runtime.NumCPU()),
		ReplicateTimeout: time.Duration(getEnvIntOrDefault("RUN_REPLICATE_TIMEOUT_MS", 0)) * time.Millisecond,
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Paths.DataDir == "" {
		return errors.ConfigInvalid("data directory is required")
	}
	if config.Run.Replicates <= 0 {
		return errors.ConfigInvalid("RUN_REPLICATES must be positive")
	}
	if config.Run.InnerDraws <= 0 {
		return errors.ConfigInvalid("RUN_INNER_DRAWS must be positive")
	}
	if config.Run.BurnIn < 0 {
		return errors.ConfigInvalid("RUN_BURN_IN cannot be negative")
	}
	if config.Run.Workers <= 0 {
		return errors.ConfigInvalid("RUN_WORKERS must be positive")
	}
	if config.Run.ReplicateTimeout < 0 {
		return errors.ConfigInvalid("RUN_REPLICATE_TIMEOUT_MS cannot be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
