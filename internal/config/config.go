package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const minPepperLen = 16

// Config holds all configuration for the keyward server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Sweeper  SweeperConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// AuthConfig controls secret hashing and first-run bootstrap.
// SecretPepper is the server-side key mixed into every stored secret hash;
// rotating it invalidates all issued keys.
type AuthConfig struct {
	SecretPepper    string
	BootstrapSecret string
}

// SweeperConfig controls the background job that flips keys past their
// expiry to status=expired.
type SweeperConfig struct {
	Interval time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("KEYWARD_PORT", 8080),
			Env:  envString("KEYWARD_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			SecretPepper:    os.Getenv("KEYWARD_SECRET_PEPPER"),
			BootstrapSecret: os.Getenv("KEYWARD_BOOTSTRAP_SECRET"),
		},
		Sweeper: SweeperConfig{
			Interval: envDuration("KEYWARD_SWEEP_INTERVAL", time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.SecretPepper == "" {
		return fmt.Errorf("KEYWARD_SECRET_PEPPER is required")
	}
	if len(c.Auth.SecretPepper) < minPepperLen {
		return fmt.Errorf("KEYWARD_SECRET_PEPPER must be at least %d characters", minPepperLen)
	}

	if c.Sweeper.Interval < time.Second {
		return fmt.Errorf("KEYWARD_SWEEP_INTERVAL must be at least 1s, got %s", c.Sweeper.Interval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
