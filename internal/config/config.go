// Package config loads pipeline configuration from a YAML file. Flags in
// cmd/ override individual fields after loading.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Subgraph  SubgraphConfig  `yaml:"subgraph"`
	Prices    PricesConfig    `yaml:"prices"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Output    OutputConfig    `yaml:"output"`
	State     StateConfig     `yaml:"state"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type SubgraphConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PricesConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Currency string        `yaml:"currency"`
	Timeout  time.Duration `yaml:"timeout"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

type PipelineConfig struct {
	Window     time.Duration `yaml:"window"`
	BatchSize  int           `yaml:"batch_size"`
	MaxResults int           `yaml:"max_results"`
	TopN       int           `yaml:"top_n"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// StateConfig selects the state backend: "file" (default) or "postgres".
type StateConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type WarehouseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics server
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Subgraph: SubgraphConfig{
			URL:     "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3",
			Timeout: 30 * time.Second,
		},
		Prices: PricesConfig{
			BaseURL:  "https://api.coingecko.com/api/v3",
			Currency: "usd",
			Timeout:  10 * time.Second,
			RateLimit: RateLimitConfig{
				MaxRequests: 10,
				Window:      time.Minute,
			},
		},
		Pipeline: PipelineConfig{
			Window:    time.Hour,
			BatchSize: 100,
		},
		Output: OutputConfig{
			Dir: "output",
		},
		State: StateConfig{
			Backend: "file",
			Path:    "pipeline_state.json",
		},
	}
}

// Load reads a YAML config file over the defaults. Fields absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Subgraph.URL == "" {
		return fmt.Errorf("config: subgraph.url is required")
	}
	switch c.State.Backend {
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("config: state.path is required for the file backend")
		}
	case "postgres":
		if c.State.PostgresDSN == "" {
			return fmt.Errorf("config: state.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown state backend %q", c.State.Backend)
	}
	if c.Warehouse.Enabled && c.Warehouse.DSN == "" {
		return fmt.Errorf("config: warehouse.dsn is required when the warehouse is enabled")
	}
	return nil
}
