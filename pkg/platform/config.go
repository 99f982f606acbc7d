// Package platform wires the commerce router's components together:
// configuration, storage, profile lookup, the agent gateway, the session
// manager, the router, and the cleanup sweeper.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/mcp-commerce-router/pkg/auth"
	"github.com/txn2/mcp-commerce-router/pkg/profile"
	"github.com/txn2/mcp-commerce-router/pkg/session"
)

// Config holds the complete router configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Auth     AuthConfig      `yaml:"auth"`
	Database DatabaseConfig  `yaml:"database"`
	Gateway  GatewayConfig   `yaml:"gateway"`
	Profiles ProfilesConfig  `yaml:"profiles"`
	Sessions SessionsConfig  `yaml:"sessions"`
	Services []ServiceConfig `yaml:"services"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Transport string `yaml:"transport"` // "stdio", "http"
	Address   string `yaml:"address"`
}

// AuthConfig configures authentication for the HTTP transport.
type AuthConfig struct {
	APIKeys APIKeyAuthConfig `yaml:"api_keys"`
}

// APIKeyAuthConfig configures API key authentication.
type APIKeyAuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Keys    []auth.APIKey `yaml:"keys"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// GatewayConfig configures the backend agent endpoint.
type GatewayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ProfilesConfig configures the profile provider.
type ProfilesConfig struct {
	// Backend selects the provider: "postgres", "static", or "none".
	Backend string `yaml:"backend"`

	// Static holds inline profiles for the "static" backend.
	Static map[string]*profile.Profile `yaml:"static"`
}

// SessionsConfig configures session storage and lifecycle policy.
type SessionsConfig struct {
	// Backend selects the store: "postgres" or "memory".
	Backend string `yaml:"backend"`

	// TTL is the resumption window for an idle session.
	TTL time.Duration `yaml:"ttl"`

	// Retention is how long an idle session survives before the sweeper
	// evicts it.
	Retention time.Duration `yaml:"retention"`

	// SweepInterval is the time between sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ServiceConfig declares one routable backend service. Declaration order
// is the classifier's tie-break order.
type ServiceConfig struct {
	ID           string   `yaml:"id"`
	Description  string   `yaml:"description"`
	Keywords     []string `yaml:"keywords"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        []string `yaml:"tools"`
}

// Service converts the declaration to the session catalog entry.
func (c ServiceConfig) Service() session.Service {
	return session.Service{
		ID:           c.ID,
		Description:  c.Description,
		Keywords:     c.Keywords,
		SystemPrompt: c.SystemPrompt,
		Tools:        c.Tools,
	}
}

// LoadConfig reads, env-expands, and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration with the built-in service catalog
// and an in-memory session store, suitable for local development.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "mcp-commerce-router"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = "memory"
	}
	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = session.DefaultTTL
	}
	if cfg.Sessions.Retention == 0 {
		cfg.Sessions.Retention = session.DefaultRetention
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = session.DefaultSweepInterval
	}
	if cfg.Profiles.Backend == "" {
		cfg.Profiles.Backend = "none"
	}
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Server.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Sprintf("server.transport %q is not supported (stdio, http)", c.Server.Transport))
	}

	switch c.Sessions.Backend {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres session backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("sessions.backend %q is not supported (memory, postgres)", c.Sessions.Backend))
	}

	switch c.Profiles.Backend {
	case "none", "static":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres profile backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("profiles.backend %q is not supported (none, static, postgres)", c.Profiles.Backend))
	}

	if len(c.Services) == 0 {
		errs = append(errs, "at least one service must be configured")
	}
	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if svc.ID == "" {
			errs = append(errs, fmt.Sprintf("services[%d].id is required", i))
			continue
		}
		if seen[svc.ID] {
			errs = append(errs, fmt.Sprintf("services[%d].id %q is declared twice", i, svc.ID))
		}
		seen[svc.ID] = true
		if len(svc.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("services[%d] (%s) has no keywords", i, svc.ID))
		}
		if svc.SystemPrompt == "" {
			errs = append(errs, fmt.Sprintf("services[%d] (%s) has no system_prompt", i, svc.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ServiceCatalog returns the configured services in declaration order.
func (c *Config) ServiceCatalog() []session.Service {
	services := make([]session.Service, 0, len(c.Services))
	for _, svc := range c.Services {
		services = append(services, svc.Service())
	}
	return services
}
