package config

import (
	"fmt"
	"os"
	"strconv"

	"gymsync/common/config"

	"gopkg.in/yaml.v3"
)

// Config is the gymsync service configuration. Values come from defaults,
// then the YAML file named by GYMSYNC_CONFIG, then environment variables.
type Config struct {
	Store struct {
		Backend string `yaml:"backend"` // memory, redis or postgres
		Prefix  string `yaml:"prefix"`  // redis key prefix
	} `yaml:"store"`

	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`

	Sync struct {
		Optimistic     bool   `yaml:"optimistic"`
		ConflictPolicy string `yaml:"conflict_policy"` // keep_local or rollback
	} `yaml:"sync"`

	// offline snapshot cache
	Cache struct {
		Backend string `yaml:"backend"` // none, memory, redis or sqlite
		Path    string `yaml:"path"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"cache"`

	Auth struct {
		BaseURL    string `yaml:"base_url"`
		APIKey     string `yaml:"api_key"`
		RetryCount int    `yaml:"retry_count"`
	} `yaml:"auth"`

	Notifications struct {
		Enabled     bool   `yaml:"enabled"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"notifications"`

	Metrics struct {
		Addr string `yaml:"addr"` // empty disables the endpoint
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load builds the configuration.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("GYMSYNC_CONFIG"))
}

// LoadFrom is Load with an explicit YAML file; an empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in defaults: an in-memory store and no
// external services.
func Default() *Config {
	cfg := &Config{}

	cfg.Store.Backend = "memory"
	cfg.Store.Prefix = "gym"

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "gym"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "gymsync"
	cfg.MQTT.QoS = 1

	cfg.Sync.Optimistic = true
	cfg.Sync.ConflictPolicy = "keep_local"

	cfg.Cache.Backend = "none"
	cfg.Cache.Path = "gymsync-cache.db"
	cfg.Cache.Prefix = "gym:cache"

	cfg.Auth.RetryCount = 2

	cfg.Notifications.TopicPrefix = "gym/notificaciones"

	cfg.Metrics.Addr = ":9090"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Prefix = getEnv("STORE_PREFIX", c.Store.Prefix)

	c.Database.LoadFromEnv("DB")
	c.Redis.LoadFromEnv("REDIS")
	c.MQTT.LoadFromEnv("MQTT")

	c.Sync.Optimistic = getEnvBool("SYNC_OPTIMISTIC", c.Sync.Optimistic)
	c.Sync.ConflictPolicy = getEnv("SYNC_CONFLICT_POLICY", c.Sync.ConflictPolicy)

	c.Cache.Backend = getEnv("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Path = getEnv("CACHE_PATH", c.Cache.Path)
	c.Cache.Prefix = getEnv("CACHE_PREFIX", c.Cache.Prefix)

	c.Auth.BaseURL = getEnv("AUTH_BASE_URL", c.Auth.BaseURL)
	c.Auth.APIKey = getEnv("AUTH_API_KEY", c.Auth.APIKey)
	if v, err := strconv.Atoi(getEnv("AUTH_RETRY_COUNT", "")); err == nil && v >= 0 {
		c.Auth.RetryCount = v
	}

	c.Notifications.Enabled = getEnvBool("NOTIFY_ENABLED", c.Notifications.Enabled)
	c.Notifications.TopicPrefix = getEnv("NOTIFY_TOPIC_PREFIX", c.Notifications.TopicPrefix)

	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects unknown backend and policy names.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	switch c.Sync.ConflictPolicy {
	case "keep_local", "rollback":
	default:
		return fmt.Errorf("unsupported conflict policy: %s", c.Sync.ConflictPolicy)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
