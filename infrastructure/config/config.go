// Package config loads application configuration from an optional YAML
// file overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Storage driver names accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"serverAddress"`
	Environment   string `yaml:"environment"`

	// Storage configuration
	StorageDriver string `yaml:"storageDriver"`
	DataDir       string `yaml:"dataDir"`

	// AWS configuration (dynamodb driver only)
	AWSRegion     string `yaml:"awsRegion"`
	DynamoDBTable string `yaml:"dynamodbTable"`

	// Logging
	LogLevel string `yaml:"logLevel"`

	// Feature flags
	EnableMetrics bool `yaml:"enableMetrics"`
	EnableCORS    bool `yaml:"enableCors"`
}

// LoadConfig reads CONFIG_FILE (when set) and then applies environment
// variables on top, so the environment always wins.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: ":8080",
		Environment:   "development",
		StorageDriver: DriverFile,
		DataDir:       defaultDataDir(),
		AWSRegion:     "us-west-2",
		DynamoDBTable: "codetrail",
		LogLevel:      "info",
		EnableMetrics: true,
		EnableCORS:    true,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ServerAddress = getEnv("SERVER_ADDRESS", cfg.ServerAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.StorageDriver = getEnv("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.DynamoDBTable = getEnv("DYNAMODB_TABLE", cfg.DynamoDBTable)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.EnableCORS = getEnvBool("ENABLE_CORS", cfg.EnableCORS)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig.
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverFile:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the file storage driver")
		}
	case DriverDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.codetrail"
	}
	return ".codetrail"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
