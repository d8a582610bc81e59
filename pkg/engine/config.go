// Package engine wires the stores, provider, queue and services of trendsync
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/trendsync/pkg/api"
	"github.com/ethpandaops/trendsync/pkg/clickhouse"
	"github.com/ethpandaops/trendsync/pkg/postgres"
	"github.com/ethpandaops/trendsync/pkg/provider"
	"github.com/ethpandaops/trendsync/pkg/redis"
	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/ethpandaops/trendsync/pkg/scheduler"
	"github.com/ethpandaops/trendsync/pkg/tables"
	"github.com/ethpandaops/trendsync/pkg/tasks"
	"github.com/ethpandaops/trendsync/pkg/worker"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoTables is returned when no table is configured
	ErrNoTables = errors.New("at least one table is required")
	// ErrUnknownBackend is returned for a store backend other than clickhouse, postgres or memory
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Store backends
const (
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
	BackendMemory     = "memory"
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`

	// Store selects and configures the analytical store
	Store      StoreConfig       `yaml:"store"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Postgres   postgres.Config   `yaml:"postgres"`

	Redis redis.Config      `yaml:"redis"`
	Queue tasks.QueueConfig `yaml:"queue"`

	Provider provider.Config `yaml:"provider"`
	Harvest  HarvestConfig   `yaml:"harvest"`
	Tables   tables.Set      `yaml:"tables"`

	Server    api.Config       `yaml:"server"`
	Worker    worker.Config    `yaml:"worker"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// StoreConfig selects the store backend
type StoreConfig struct {
	Backend string `yaml:"backend" default:"clickhouse"`
}

// HarvestConfig holds the retry budgets of the pipeline
type HarvestConfig struct {
	// Fetch retries provider calls
	Fetch retry.Policy `yaml:"fetch"`
	// Load retries staging writes
	Load retry.Policy `yaml:"load"`
}

// LoadConfig reads path, applies defaults and resolves table keyword and geo files
// relative to the config file
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Tables.SetDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Tables.Load(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}

	switch c.Store.Backend {
	case BackendClickHouse:
		if err := c.ClickHouse.Validate(); err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	if len(c.Tables) == 0 {
		return ErrNoTables
	}

	if err := c.Tables.Validate(); err != nil {
		return err
	}

	if err := c.Server.Validate(); err != nil {
		return err
	}

	if err := c.Worker.Validate(); err != nil {
		return err
	}

	return c.Scheduler.Validate()
}

// Schedules maps each table to its broadcast cron expression
func (c *Config) Schedules() map[string]string {
	schedules := make(map[string]string, len(c.Tables))
	for _, t := range c.Tables {
		schedules[t.Name] = t.Schedule
	}

	return schedules
}

// Geos maps each table to its geography universe
func (c *Config) Geos() map[string][]string {
	geos := make(map[string][]string, len(c.Tables))
	for _, t := range c.Tables {
		geos[t.Name] = t.Geos
	}

	return geos
}
