package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FlockConfig represents the top-level flock.yml configuration
type FlockConfig struct {
	Version   string           `yaml:"version"`
	Instance  string           `yaml:"instance"`
	UserID    string           `yaml:"user_id,omitempty"` // Local user's identity; required for friend-request status
	Redis     RedisConfig      `yaml:"redis"`
	Discovery *DiscoveryConfig `yaml:"discovery,omitempty"`
	Presence  *PresenceConfig  `yaml:"presence,omitempty"`
	Tracker   *TrackerConfig   `yaml:"tracker,omitempty"`
}

// RedisConfig specifies how to reach the backing Redis instance
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// DiscoveryConfig specifies contact-matching behavior
type DiscoveryConfig struct {
	Salt               string `yaml:"salt,omitempty"` // Hashing secret; falls back to FLOCK_DISCOVERY_SALT
	DefaultCountryCode string `yaml:"default_country_code,omitempty"`
}

// PresenceConfig specifies presence cache tuning
type PresenceConfig struct {
	OnlineWindowS  *int `yaml:"online_window_s,omitempty"`  // Seconds since last event before a friend reads offline (default: 300)
	SweepIntervalS *int `yaml:"sweep_interval_s,omitempty"` // Periodic staleness sweep interval (default: 30)
}

// TrackerConfig specifies background location tuning
type TrackerConfig struct {
	MaxAccuracyM   *int `yaml:"max_accuracy_m,omitempty"`     // Reject samples coarser than this (default: 200)
	MaxSampleAgeS  *int `yaml:"max_sample_age_s,omitempty"`   // Reject samples older than this (default: 300)
	GrantLifetimeS *int `yaml:"grant_lifetime_s,omitempty"`   // Background execution grant lifetime (default: 170)
}

// Validate performs strict validation on the configuration and applies
// defaults to omitted optional sections.
func (c *FlockConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: instance name, used as the Redis key namespace
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}

	// Required: redis address
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Apply default discovery config if missing
	if c.Discovery == nil {
		c.Discovery = &DiscoveryConfig{}
	}
	if c.Discovery.Salt == "" {
		c.Discovery.Salt = os.Getenv("FLOCK_DISCOVERY_SALT")
	}
	if c.Discovery.DefaultCountryCode == "" {
		c.Discovery.DefaultCountryCode = "1"
	}
	for _, r := range c.Discovery.DefaultCountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("discovery.default_country_code must be digits, got %q", c.Discovery.DefaultCountryCode)
		}
	}

	if c.Presence == nil {
		c.Presence = &PresenceConfig{}
	}
	if c.Presence.OnlineWindowS == nil {
		defaultWindow := 300
		c.Presence.OnlineWindowS = &defaultWindow
	}
	if c.Presence.SweepIntervalS == nil {
		defaultSweep := 30
		c.Presence.SweepIntervalS = &defaultSweep
	}
	if *c.Presence.OnlineWindowS <= 0 {
		return fmt.Errorf("presence.online_window_s must be > 0, got %d", *c.Presence.OnlineWindowS)
	}
	if *c.Presence.SweepIntervalS <= 0 {
		return fmt.Errorf("presence.sweep_interval_s must be > 0, got %d", *c.Presence.SweepIntervalS)
	}

	if c.Tracker == nil {
		c.Tracker = &TrackerConfig{}
	}
	if c.Tracker.MaxAccuracyM == nil {
		defaultAccuracy := 200
		c.Tracker.MaxAccuracyM = &defaultAccuracy
	}
	if c.Tracker.MaxSampleAgeS == nil {
		defaultAge := 300
		c.Tracker.MaxSampleAgeS = &defaultAge
	}
	if c.Tracker.GrantLifetimeS == nil {
		defaultGrant := 170
		c.Tracker.GrantLifetimeS = &defaultGrant
	}
	if *c.Tracker.MaxAccuracyM <= 0 {
		return fmt.Errorf("tracker.max_accuracy_m must be > 0, got %d", *c.Tracker.MaxAccuracyM)
	}
	if *c.Tracker.MaxSampleAgeS <= 0 {
		return fmt.Errorf("tracker.max_sample_age_s must be > 0, got %d", *c.Tracker.MaxSampleAgeS)
	}
	if *c.Tracker.GrantLifetimeS <= 0 {
		return fmt.Errorf("tracker.grant_lifetime_s must be > 0, got %d", *c.Tracker.GrantLifetimeS)
	}

	return nil
}

// OnlineWindow returns the presence online window as a duration.
func (c *FlockConfig) OnlineWindow() time.Duration {
	return time.Duration(*c.Presence.OnlineWindowS) * time.Second
}

// SweepInterval returns the presence sweep interval as a duration.
func (c *FlockConfig) SweepInterval() time.Duration {
	return time.Duration(*c.Presence.SweepIntervalS) * time.Second
}

// MaxSampleAge returns the tracker sample freshness limit as a duration.
func (c *FlockConfig) MaxSampleAge() time.Duration {
	return time.Duration(*c.Tracker.MaxSampleAgeS) * time.Second
}

// GrantLifetime returns the background grant lifetime as a duration.
func (c *FlockConfig) GrantLifetime() time.Duration {
	return time.Duration(*c.Tracker.GrantLifetimeS) * time.Second
}

// Load reads and validates flock.yml from the specified path
func Load(path string) (*FlockConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config FlockConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
