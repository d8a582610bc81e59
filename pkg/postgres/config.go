package postgres

import (
	"errors"
	"time"
)

// ErrDSNRequired is returned when no connection string is configured
var ErrDSNRequired = errors.New("postgres dsn is required")

// Config configures the Postgres store
type Config struct {
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema" default:"public"`
	MaxOpenConns    int           `yaml:"maxOpenConns" default:"10"`
	MaxIdleConns    int           `yaml:"maxIdleConns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" default:"30m"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrDSNRequired
	}

	return nil
}

// SetDefaults fills zero values
func (c *Config) SetDefaults() {
	if c.Schema == "" {
		c.Schema = "public"
	}

	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}

	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}

	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}
