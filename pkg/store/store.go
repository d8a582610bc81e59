// Package store defines the analytical store capabilities the pipeline depends on
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// BatchedAtColumn is the tiebreak column stamped on every staged row
const BatchedAtColumn = "_batched_at"

// Define static errors
var (
	// ErrStoreWrite marks a write failure worth retrying
	ErrStoreWrite = errors.New("store write failed")
	// ErrPermanentWrite marks a write failure that retrying will not fix
	ErrPermanentWrite = errors.New("store write rejected")
	// ErrUnknownColumn is returned when a table references a column rows do not carry
	ErrUnknownColumn = errors.New("unknown column")
	// ErrUnknownColumnType is returned for a column type outside ColumnType
	ErrUnknownColumnType = errors.New("unknown column type")
	// ErrKeyNotInColumns is returned when a natural key column is missing from the schema
	ErrKeyNotInColumns = errors.New("natural key column not in schema")
	// ErrEmptyKey is returned when a table has no natural key
	ErrEmptyKey = errors.New("natural key must not be empty")
)

// Store is the analytical store seen by the pipeline
type Store interface {
	// Watermark returns MAX(column) of the canonical table, nil when the table is empty or absent
	Watermark(ctx context.Context, spec TableSpec) (*time.Time, error)
	// EnsureStaging creates the staging table when it does not exist
	EnsureStaging(ctx context.Context, spec TableSpec) error
	// LoadAppend appends rows to the staging table and returns the rows written
	LoadAppend(ctx context.Context, spec TableSpec, rows []Observation) (int64, error)
	// AtomicReplace rebuilds the canonical table from deduplicated staging content.
	// Readers never observe a partially replaced table.
	AtomicReplace(ctx context.Context, spec TableSpec) error
}

// ColumnType is the logical type of a column, mapped per backend
type ColumnType string

const (
	// TypeString is free text
	TypeString ColumnType = "string"
	// TypeFloat is a 64 bit float
	TypeFloat ColumnType = "float"
	// TypeDate is a calendar date
	TypeDate ColumnType = "date"
	// TypeTimestamp is a point in time, second precision
	TypeTimestamp ColumnType = "timestamp"
	// TypeBool is a boolean
	TypeBool ColumnType = "bool"
)

// Column is one column of a table schema
type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"type"`
}

// TableSpec names a canonical table, its staging table, schema and natural key
type TableSpec struct {
	Name            string
	Staging         string
	Columns         []Column
	Key             []string
	WatermarkColumn string
}

// Validate checks that the schema only names known columns and the key is part of it
func (s TableSpec) Validate() error {
	if len(s.Key) == 0 {
		return ErrEmptyKey
	}

	names := make([]string, 0, len(s.Columns))

	for _, c := range s.Columns {
		if !slices.Contains(observationColumns, c.Name) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, c.Name)
		}

		switch c.Type {
		case TypeString, TypeFloat, TypeDate, TypeTimestamp, TypeBool:
		default:
			return fmt.Errorf("%w: %q for column %q", ErrUnknownColumnType, c.Type, c.Name)
		}

		names = append(names, c.Name)
	}

	for _, k := range s.Key {
		if !slices.Contains(names, k) {
			return fmt.Errorf("%w: %q", ErrKeyNotInColumns, k)
		}
	}

	if s.WatermarkColumn != "" && !slices.Contains(names, s.WatermarkColumn) {
		return fmt.Errorf("%w: watermark column %q", ErrUnknownColumn, s.WatermarkColumn)
	}

	return nil
}

// ColumnNames returns the schema column names in order
func (s TableSpec) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}

	return names
}

// NonKeyColumns returns the schema columns that are not part of the natural key,
// excluding the batch stamp
func (s TableSpec) NonKeyColumns() []string {
	var out []string

	for _, c := range s.Columns {
		if c.Name == BatchedAtColumn || slices.Contains(s.Key, c.Name) {
			continue
		}

		out = append(out, c.Name)
	}

	return out
}

// HasBatchedAt reports whether the schema carries the batch stamp column
func (s TableSpec) HasBatchedAt() bool {
	for _, c := range s.Columns {
		if c.Name == BatchedAtColumn {
			return true
		}
	}

	return false
}
