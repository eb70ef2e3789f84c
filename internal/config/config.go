// Package config holds all sigil configuration. Defaults come from
// Default(); FromEnv layers SIGIL_* environment overrides on top, which is
// the whole configuration surface — there is no config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all sigil configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Decay   DecayConfig
	Breaker BreakerConfig
	Signing SigningConfig
	DNA     DNAConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type StorageConfig struct {
	// Backend selects the driver: "memory", "badger", or "sqlite".
	Backend string
	// Path is the data directory (badger) or database file (sqlite).
	Path string
}

type DecayConfig struct {
	Interval  time.Duration
	Threshold float64
	HalfLife  time.Duration
}

type BreakerConfig struct {
	Timeout        time.Duration
	ErrorThreshold float64
	ResetTimeout   time.Duration
}

type SigningConfig struct {
	// Key is the inline HMAC secret; KeyFile points at a file containing
	// it. One of the two must be set.
	Key     string
	KeyFile string
}

type DNAConfig struct {
	// URL of the external DNAStore. Empty disables attestation.
	URL string
}

type MetricsConfig struct {
	// Token, when set, gates /metrics behind a bearer token.
	Token string
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37901,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "", // resolved at runtime via DefaultDataPath
		},
		Decay: DecayConfig{
			Interval:  60 * time.Second,
			Threshold: 0.05,
			HalfLife:  24 * time.Hour,
		},
		Breaker: BreakerConfig{
			Timeout:        3 * time.Second,
			ErrorThreshold: 50,
			ResetTimeout:   15 * time.Second,
		},
	}
}

// FromEnv returns Default overlaid with SIGIL_* environment variables.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("SIGIL_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("SIGIL_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("SIGIL_PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("SIGIL_STORAGE"); v != "" {
		switch v {
		case "memory", "badger", "sqlite":
			cfg.Storage.Backend = v
		default:
			return cfg, fmt.Errorf("SIGIL_STORAGE: unknown backend %q", v)
		}
	}
	if v := os.Getenv("SIGIL_DATA_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	if err := envDuration("SIGIL_DECAY_INTERVAL", &cfg.Decay.Interval); err != nil {
		return cfg, err
	}
	if err := envFloat("SIGIL_DECAY_THRESHOLD", &cfg.Decay.Threshold); err != nil {
		return cfg, err
	}
	if err := envDuration("SIGIL_DECAY_HALF_LIFE", &cfg.Decay.HalfLife); err != nil {
		return cfg, err
	}

	if err := envDuration("SIGIL_BREAKER_TIMEOUT", &cfg.Breaker.Timeout); err != nil {
		return cfg, err
	}
	if err := envFloat("SIGIL_BREAKER_ERROR_THRESHOLD", &cfg.Breaker.ErrorThreshold); err != nil {
		return cfg, err
	}
	if err := envDuration("SIGIL_BREAKER_RESET_TIMEOUT", &cfg.Breaker.ResetTimeout); err != nil {
		return cfg, err
	}

	cfg.Signing.Key = os.Getenv("SIGIL_SIGNING_KEY")
	cfg.Signing.KeyFile = os.Getenv("SIGIL_SIGNING_KEY_FILE")
	cfg.DNA.URL = os.Getenv("SIGIL_DNA_URL")
	cfg.Metrics.Token = os.Getenv("SIGIL_METRICS_TOKEN")

	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultDataPath returns the default data location: ~/.sigil
func DefaultDataPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return home + "/.sigil", nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = f
	return nil
}
