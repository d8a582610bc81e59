// Package tables describes the harvested tables: their kind, schema, window policy and inputs
package tables

import (
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/ethpandaops/trendsync/pkg/window"
	"github.com/robfig/cron/v3"
)

// Define static errors
var (
	// ErrNameRequired is returned when a table has no name
	ErrNameRequired = errors.New("table name is required")
	// ErrInvalidKind is returned for a kind other than region_snapshot or time_series
	ErrInvalidKind = errors.New("table kind must be 'region_snapshot' or 'time_series'")
	// ErrKeywordsRequired is returned when a table has no keywords
	ErrKeywordsRequired = errors.New("at least one keyword is required")
	// ErrInvalidBatchSize is returned when batchSize is not positive
	ErrInvalidBatchSize = errors.New("batchSize must be positive")
	// ErrInvalidSchedule is returned when schedule is not a cron expression
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrDuplicateTable is returned when two tables share a name
	ErrDuplicateTable = errors.New("duplicate table name")
	// ErrTableNotFound is returned when looking up an unknown table
	ErrTableNotFound = errors.New("table not found")
)

// Kind determines the provider query, row shape and default window policy
type Kind string

const (
	// KindRegionSnapshot is one value per (region, keyword) for each window
	KindRegionSnapshot Kind = "region_snapshot"
	// KindTimeSeries is one value per (date, keyword) inside each window
	KindTimeSeries Kind = "time_series"
)

// Validate checks the kind
func (k Kind) Validate() error {
	switch k {
	case KindRegionSnapshot, KindTimeSeries:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
}

// WindowConfig is the window policy of a table
type WindowConfig struct {
	Period string `yaml:"period" default:"7d"`
	Align  string `yaml:"align" default:"week"`
	// FallbackLookback bounds the first run of an empty table, empty means no fallback
	FallbackLookback string `yaml:"fallbackLookback"`
}

// Config is one harvested table
type Config struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind" default:"region_snapshot"`

	Window WindowConfig `yaml:"window"`
	// Key is the natural key used when reconciling, defaults per kind
	Key             []string `yaml:"key"`
	WatermarkColumn string   `yaml:"watermarkColumn" default:"start"`
	StagingPrefix   string   `yaml:"stagingPrefix" default:"_stage_"`

	Keywords     []string `yaml:"keywords"`
	KeywordsFile string   `yaml:"keywordsFile"`
	Geos         []string `yaml:"geos"`
	GeosFile     string   `yaml:"geosFile"`
	DefaultGeo   string   `yaml:"defaultGeo"`

	BatchSize   int    `yaml:"batchSize" default:"5"`
	Resolution  string `yaml:"resolution" default:"COUNTRY"`
	DropPartial bool   `yaml:"dropPartial"`

	// Schedule is a cron expression that triggers a broadcast, empty disables it
	Schedule string `yaml:"schedule"`
}

// SetDefaults fills tag defaults, then kind-specific key and lookback defaults
func (c *Config) SetDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to set defaults for table %q: %w", c.Name, err)
	}

	if len(c.Key) == 0 {
		c.Key = DefaultKey(c.Kind)
	}

	if c.Kind == KindTimeSeries && c.Window.FallbackLookback == "" {
		c.Window.FallbackLookback = "365d"
	}

	return nil
}

// Validate checks the table configuration. Keywords from files must be loaded first.
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}

	if err := c.Kind.Validate(); err != nil {
		return err
	}

	if len(c.Keywords) == 0 {
		return fmt.Errorf("%w: table %q", ErrKeywordsRequired, c.Name)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: table %q", ErrInvalidBatchSize, c.Name)
	}

	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("table %q: %w", c.Name, err)
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("%w for table %q: %v", ErrInvalidSchedule, c.Name, err)
		}
	}

	if err := c.Spec().Validate(); err != nil {
		return fmt.Errorf("table %q: %w", c.Name, err)
	}

	return nil
}

// Policy converts the window configuration
func (c *Config) Policy() (window.Policy, error) {
	period, err := window.ParsePeriod(c.Window.Period)
	if err != nil {
		return window.Policy{}, err
	}

	align := window.Align(c.Window.Align)
	if err := align.Validate(); err != nil {
		return window.Policy{}, err
	}

	var lookback time.Duration

	if c.Window.FallbackLookback != "" {
		lookback, err = window.ParsePeriod(c.Window.FallbackLookback)
		if err != nil {
			return window.Policy{}, fmt.Errorf("fallbackLookback: %w", err)
		}
	}

	return window.Policy{Period: period, Align: align, FallbackLookback: lookback}, nil
}

// Spec is the store-facing description of the table
func (c *Config) Spec() store.TableSpec {
	return store.TableSpec{
		Name:            c.Name,
		Staging:         c.StagingPrefix + c.Name,
		Columns:         Columns(c.Kind),
		Key:             append([]string(nil), c.Key...),
		WatermarkColumn: c.WatermarkColumn,
	}
}

// DefaultKey is the natural key for a kind. Region snapshots keep window bounds in the key
// so the same region in different windows never collides.
func DefaultKey(kind Kind) []string {
	if kind == KindTimeSeries {
		return []string{"keyword", "geo_code", "date"}
	}

	return []string{"keyword", "geo_name", "geo_code", "start", "end"}
}

// Columns is the stored schema for a kind
func Columns(kind Kind) []store.Column {
	if kind == KindTimeSeries {
		return []store.Column{
			{Name: "keyword", Type: store.TypeString},
			{Name: "geo_code", Type: store.TypeString},
			{Name: "date", Type: store.TypeDate},
			{Name: "value", Type: store.TypeFloat},
			{Name: "start", Type: store.TypeDate},
			{Name: "end", Type: store.TypeDate},
			{Name: store.BatchedAtColumn, Type: store.TypeTimestamp},
		}
	}

	return []store.Column{
		{Name: "keyword", Type: store.TypeString},
		{Name: "geo_code", Type: store.TypeString},
		{Name: "geo_name", Type: store.TypeString},
		{Name: "value", Type: store.TypeFloat},
		{Name: "start", Type: store.TypeDate},
		{Name: "end", Type: store.TypeDate},
		{Name: store.BatchedAtColumn, Type: store.TypeTimestamp},
	}
}

// Set is the configured list of tables
type Set []Config

// SetDefaults applies defaults to every table
func (s Set) SetDefaults() error {
	for i := range s {
		if err := s[i].SetDefaults(); err != nil {
			return err
		}
	}

	return nil
}

// Load reads keyword and geo files of every table relative to baseDir
func (s Set) Load(baseDir string) error {
	for i := range s {
		if err := s[i].Load(baseDir); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates every table and rejects duplicate names
func (s Set) Validate() error {
	seen := make(map[string]struct{}, len(s))

	for i := range s {
		if err := s[i].Validate(); err != nil {
			return err
		}

		if _, dup := seen[s[i].Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateTable, s[i].Name)
		}

		seen[s[i].Name] = struct{}{}
	}

	return nil
}

// Get returns the table named name
func (s Set) Get(name string) (*Config, error) {
	for i := range s {
		if s[i].Name == name {
			return &s[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
}

// Names lists table names in configuration order
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for i := range s {
		names = append(names, s[i].Name)
	}

	return names
}
