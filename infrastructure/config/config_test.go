package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, DriverFile, cfg.StorageDriver)
	assert.NotEmpty(t, cfg.DataDir)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"serverAddress: \":9000\"\nstorageDriver: memory\nlogLevel: debug\n",
	), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ServerAddress)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	// Environment overrides the file.
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "floppy")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidateDriverRequirements(t *testing.T) {
	cfg := &Config{StorageDriver: DriverFile}
	require.Error(t, cfg.Validate())

	cfg = &Config{StorageDriver: DriverDynamoDB}
	require.Error(t, cfg.Validate())

	cfg = &Config{StorageDriver: DriverMemory}
	require.NoError(t, cfg.Validate())
}
