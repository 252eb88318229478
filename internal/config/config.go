// Package config loads the YAML-driven static bus map a cmd/esbd
// deployment starts a Controller from, in the same Load/defaulting style
// as the teacher's cellorg/internal/config, using gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tenzoki/esbus/internal/transport"
)

// Config is the top-level shape a cmd/esbd node loads from disk.
type Config struct {
	Identity string `yaml:"identity"`
	Debug    bool   `yaml:"debug"`
	Role     string `yaml:"role"` // "server" or "client"

	Buses []BusConfig `yaml:"buses"`

	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`

	AwaitTimeoutSeconds int `yaml:"await_timeout_seconds"`
}

// BusConfig describes one entry of the static bus map spec.md §2 requires
// ("the bus takes a static service map at construction"): an identifier
// and a locator the Controller dials or binds per Role.
type BusConfig struct {
	ID      string `yaml:"id"`
	Locator string `yaml:"locator"`
}

// RegistryConfig points at the embedded peer directory (internal/registry).
type RegistryConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures internal/logging's session logger.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Quiet bool   `yaml:"quiet"`
}

// Load reads and validates filename, applying the same kind of defaults as
// the teacher's config loader.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	if cfg.Identity == "" {
		return nil, fmt.Errorf("config: identity is required")
	}
	if cfg.Role == "" {
		cfg.Role = "server"
	}
	if cfg.Registry.Dir == "" {
		cfg.Registry.Dir = "./esbus-registry"
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "./esbus-logs"
	}
	if cfg.AwaitTimeoutSeconds == 0 {
		cfg.AwaitTimeoutSeconds = 300
	}

	if cfg.AwaitTimeoutSeconds < 0 {
		return nil, fmt.Errorf("config: await_timeout_seconds cannot be negative: %d", cfg.AwaitTimeoutSeconds)
	}
	if len(cfg.Buses) == 0 {
		return nil, fmt.Errorf("config: at least one bus is required")
	}
	for _, b := range cfg.Buses {
		if b.ID == "" {
			return nil, fmt.Errorf("config: bus with empty id")
		}
		if b.Locator == "" {
			return nil, fmt.Errorf("config: bus %q has no locator", b.ID)
		}
	}

	return &cfg, nil
}

// TransportRole parses Role into a transport.Role.
func (c *Config) TransportRole() (transport.Role, error) {
	switch strings.ToLower(c.Role) {
	case "server":
		return transport.RoleServer, nil
	case "client":
		return transport.RoleClient, nil
	default:
		return 0, fmt.Errorf("config: unknown role %q, want \"server\" or \"client\"", c.Role)
	}
}

// Locators returns the configured buses as a simple id -> locator map, the
// shape cmd/esbd builds its transport.Carrier map from.
func (c *Config) Locators() map[string]string {
	out := make(map[string]string, len(c.Buses))
	for _, b := range c.Buses {
		out[b.ID] = b.Locator
	}
	return out
}
