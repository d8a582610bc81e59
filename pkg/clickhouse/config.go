// Package clickhouse provides a ClickHouse HTTP client and the ClickHouse-backed table store
package clickhouse

import (
	"errors"
	"os"
	"time"
)

// Static errors for configuration validation
var (
	ErrURLRequired = errors.New("URL is required")
)

// Config contains ClickHouse connection settings
type Config struct {
	URL           string        `yaml:"url" validate:"required,url"`
	Database      string        `yaml:"database"`
	QueryTimeout  time.Duration `yaml:"queryTimeout"`
	InsertTimeout time.Duration `yaml:"insertTimeout"`
	Debug         bool          `yaml:"debug"`
	KeepAlive     time.Duration `yaml:"keepAlive"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}

	if c.InsertTimeout == 0 {
		c.InsertTimeout = 5 * time.Minute
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}

	if c.Database == "" {
		c.Database = "trends"
	}
}

// MapDatabase maps a logical database name to a physical database name.
// If TRENDSYNC_DATABASE_PREFIX is set it is prepended, otherwise the name is unchanged.
func (c *Config) MapDatabase(logicalName string) string {
	if prefix := os.Getenv("TRENDSYNC_DATABASE_PREFIX"); prefix != "" {
		return prefix + logicalName
	}

	return logicalName
}
