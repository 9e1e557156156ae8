package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "flock.yml")

	// Write valid config
	validConfig := `version: "1.0"
instance: "test"
user_id: "8f14e45f-ceea-467f-9b5c-91c4f6cda9f1"
redis:
  addr: "localhost:6379"
discovery:
  salt: "super-secret"
  default_country_code: "44"
presence:
  online_window_s: 120
tracker:
  max_accuracy_m: 150
`
	err := os.WriteFile(configPath, []byte(validConfig), 0644)
	require.NoError(t, err)

	// Load and validate
	config, err := Load(configPath)
	require.NoError(t, err)
	assert.NotNil(t, config)
	assert.Equal(t, "1.0", config.Version)
	assert.Equal(t, "test", config.Instance)
	assert.Equal(t, "localhost:6379", config.Redis.Addr)
	assert.Equal(t, "super-secret", config.Discovery.Salt)
	assert.Equal(t, "44", config.Discovery.DefaultCountryCode)
	assert.Equal(t, 2*time.Minute, config.OnlineWindow())
	assert.Equal(t, 150, *config.Tracker.MaxAccuracyM)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/flock.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "flock.yml")

	// Write invalid YAML
	invalidYAML := `version: "1.0"
redis:
  - this is invalid
    yaml syntax
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	config, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func minimalConfig() *FlockConfig {
	return &FlockConfig{
		Version:  "1.0",
		Instance: "test",
		Redis:    RedisConfig{Addr: "localhost:6379"},
	}
}

func TestValidate_UnsupportedVersion(t *testing.T) {
	config := minimalConfig()
	config.Version = "2.0"

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version: 2.0")
}

func TestValidate_MissingInstance(t *testing.T) {
	config := minimalConfig()
	config.Instance = ""

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "instance is required")
}

func TestValidate_MissingRedisAddr(t *testing.T) {
	config := minimalConfig()
	config.Redis.Addr = ""

	err := config.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr is required")
}

func TestValidate_AppliesDefaults(t *testing.T) {
	config := minimalConfig()

	err := config.Validate()
	require.NoError(t, err)

	assert.Equal(t, "1", config.Discovery.DefaultCountryCode)
	assert.Equal(t, 5*time.Minute, config.OnlineWindow())
	assert.Equal(t, 30*time.Second, config.SweepInterval())
	assert.Equal(t, 200, *config.Tracker.MaxAccuracyM)
	assert.Equal(t, 5*time.Minute, config.MaxSampleAge())
	assert.Equal(t, 170*time.Second, config.GrantLifetime())
}

func TestValidate_SaltFromEnvironment(t *testing.T) {
	t.Setenv("FLOCK_DISCOVERY_SALT", "env-secret")

	config := minimalConfig()
	err := config.Validate()
	require.NoError(t, err)
	assert.Equal(t, "env-secret", config.Discovery.Salt)
}

func TestValidate_ExplicitSaltWinsOverEnvironment(t *testing.T) {
	t.Setenv("FLOCK_DISCOVERY_SALT", "env-secret")

	config := minimalConfig()
	config.Discovery = &DiscoveryConfig{Salt: "file-secret"}
	err := config.Validate()
	require.NoError(t, err)
	assert.Equal(t, "file-secret", config.Discovery.Salt)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FlockConfig)
		wantErr string
	}{
		{
			name:    "non-digit country code",
			mutate:  func(c *FlockConfig) { c.Discovery = &DiscoveryConfig{DefaultCountryCode: "+44"} },
			wantErr: "default_country_code must be digits",
		},
		{
			name: "non-positive online window",
			mutate: func(c *FlockConfig) {
				zero := 0
				c.Presence = &PresenceConfig{OnlineWindowS: &zero}
			},
			wantErr: "online_window_s must be > 0",
		},
		{
			name: "negative sweep interval",
			mutate: func(c *FlockConfig) {
				neg := -5
				c.Presence = &PresenceConfig{SweepIntervalS: &neg}
			},
			wantErr: "sweep_interval_s must be > 0",
		},
		{
			name: "non-positive accuracy gate",
			mutate: func(c *FlockConfig) {
				zero := 0
				c.Tracker = &TrackerConfig{MaxAccuracyM: &zero}
			},
			wantErr: "max_accuracy_m must be > 0",
		},
		{
			name:    "negative redis db",
			mutate:  func(c *FlockConfig) { c.Redis.DB = -1 },
			wantErr: "redis.db must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := minimalConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
