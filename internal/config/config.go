package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"projectdesk/internal/domain"
)

// Sources a view can fetch from.
const (
	SourceHTTP     = "http"
	SourceSQLite   = "sqlite"
	SourceFixtures = "fixtures"
)

// Config models projectdesk.yml.
type Config struct {
	Source    string `yaml:"source"`
	Hydration string `yaml:"hydration"`
	Fetch     struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"fetch"`
	API struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	} `yaml:"api"`
	Fixtures struct {
		File string `yaml:"file"`
	} `yaml:"fixtures"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with pdesk config show > %s", path, filepath.Base(path))
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceHTTP, SourceSQLite, SourceFixtures:
	default:
		return fmt.Errorf("config.source must be one of http, sqlite, fixtures (got %q)", c.Source)
	}
	if _, ok := domain.ParseHydration(c.Hydration); !ok {
		return fmt.Errorf("config.hydration must be truthy or present (got %q)", c.Hydration)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("config.fetch.timeout must not be negative (0 disables it)")
	}
	if c.Source == SourceHTTP {
		if strings.TrimSpace(c.API.BaseURL) == "" {
			return fmt.Errorf("config.api.base_url is required for source http")
		}
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.api.base_url %q is not an absolute URL", c.API.BaseURL)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a level", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// HydrationMode returns the parsed hydration setting.
func (c *Config) HydrationMode() domain.Hydration {
	h, _ := domain.ParseHydration(c.Hydration)
	return h
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "projectdesk.yml")
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders c.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `source: fixtures
hydration: truthy

fetch:
  timeout: 10s

api:
  base_url: http://127.0.0.1:8080
  token: ""

fixtures:
  file: ""

log:
  level: info
  format: text
`
