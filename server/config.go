package server

import (
	"fmt"
	"os"
	"time"

	"github.com/caffeineduck/runit/cache"
	"gopkg.in/yaml.v3"
)

// Isolation modes.
const (
	IsolationLocal     = "local"
	IsolationContainer = "container"
)

// Config holds the server settings. It can be read from a YAML file; zero
// values keep the defaults.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Dir is the project directory, holding runit.json.
	Dir string `yaml:"dir"`

	// Timeout bounds each loader or runner call.
	Timeout time.Duration `yaml:"timeout"`

	// Grace is how long in-flight requests may run after a shutdown signal.
	Grace time.Duration `yaml:"grace"`

	Workers      int           `yaml:"workers"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`

	// Isolation is "local" or "container".
	Isolation    string   `yaml:"isolation"`
	Image        string   `yaml:"image"`
	Network      string   `yaml:"network"`
	DockerBinary string   `yaml:"docker"`
	Mounts       []string `yaml:"mounts"`

	CacheTTL     time.Duration `yaml:"cache_ttl"`
	CacheEntries int           `yaml:"cache_entries"`

	// Watch evicts cached function tables as soon as files change.
	Watch bool `yaml:"watch"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// Expose is a relay API endpoint. When set, calls arrive over a
	// websocket to that relay instead of on Addr.
	Expose string `yaml:"expose"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         5000,
		Dir:          ".",
		Timeout:      30 * time.Second,
		Grace:        10 * time.Second,
		QueueTimeout: 10 * time.Second,
		Isolation:    IsolationLocal,
		Network:      "none",
		DockerBinary: "docker",
		CacheTTL:     cache.DefaultTTL,
		CacheEntries: cache.DefaultMaxEntries,
		MaxBodyBytes: 1 << 20,
	}
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Isolation {
	case IsolationLocal, IsolationContainer:
	default:
		return fmt.Errorf("invalid isolation %q: use %s or %s", c.Isolation, IsolationLocal, IsolationContainer)
	}
	if c.Expose != "" {
		if _, _, err := ExposeURLs(c.Expose, "0"); err != nil {
			return err
		}
	}
	if c.Timeout < 0 || c.Grace < 0 || c.QueueTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
