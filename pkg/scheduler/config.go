// Package scheduler triggers per-table broadcasts on cron schedules. Only the instance
// holding the Redis leader lease fires schedules.
package scheduler

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTickInterval is returned when the tick interval is not positive
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
	// ErrInvalidLease is returned when the lease does not outlive the renew interval
	ErrInvalidLease = errors.New("lease ttl must be greater than a positive renew interval")
)

// Config defines scheduler configuration
type Config struct {
	Enabled bool `yaml:"enabled" default:"false"`
	// TickInterval is how often the leader checks whether a schedule is due
	TickInterval     time.Duration `yaml:"tickInterval" default:"1s"`
	LeaseTTL         time.Duration `yaml:"leaseTTL" default:"10s"`
	RenewInterval    time.Duration `yaml:"renewInterval" default:"3s"`
	BroadcastTimeout time.Duration `yaml:"broadcastTimeout" default:"1m"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}

	if c.RenewInterval <= 0 || c.LeaseTTL <= c.RenewInterval {
		return ErrInvalidLease
	}

	return nil
}
