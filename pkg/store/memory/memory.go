// Package memory provides an in-process Store used by tests and dry runs
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/trendsync/pkg/merge"
	"github.com/ethpandaops/trendsync/pkg/store"
)

// ErrStagingNotFound is returned when reconciling a table that was never staged
var ErrStagingNotFound = errors.New("staging table not found")

// Store keeps tables in memory. Canonical tables are swapped under a lock so readers
// never see a half-built table.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]store.Observation
}

// New creates an empty store
func New() *Store {
	return &Store{tables: make(map[string][]store.Observation)}
}

// Watermark returns the maximum watermark column value of the canonical table
func (s *Store) Watermark(_ context.Context, spec store.TableSpec) (*time.Time, error) {
	column := spec.WatermarkColumn
	if column == "" {
		column = "start"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[spec.Name]
	if !ok || len(rows) == 0 {
		return nil, nil
	}

	var latest *time.Time

	for _, row := range rows {
		v, err := row.Field(column)
		if err != nil {
			return nil, err
		}

		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a date", store.ErrUnknownColumn, column)
		}

		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}

	return latest, nil
}

// EnsureStaging creates the staging table if absent
func (s *Store) EnsureStaging(_ context.Context, spec store.TableSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[spec.Staging]; !ok {
		s.tables[spec.Staging] = []store.Observation{}
	}

	return nil
}

// LoadAppend appends rows to the staging table
func (s *Store) LoadAppend(_ context.Context, spec store.TableSpec, rows []store.Observation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[spec.Staging] = append(s.tables[spec.Staging], rows...)

	return int64(len(rows)), nil
}

// AtomicReplace rebuilds the canonical table from the compacted staging table
func (s *Store) AtomicReplace(_ context.Context, spec store.TableSpec) error {
	s.mu.RLock()
	staged, ok := s.tables[spec.Staging]
	snapshot := append([]store.Observation(nil), staged...)
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrStagingNotFound, spec.Staging)
	}

	compacted, err := merge.Compact(snapshot, spec.Key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tables[spec.Name] = compacted
	s.mu.Unlock()

	return nil
}

// Rows returns a copy of a table's rows
func (s *Store) Rows(table string) []store.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]store.Observation(nil), s.tables[table]...)
}

// Seed replaces a table's content, for tests
func (s *Store) Seed(table string, rows []store.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = append([]store.Observation(nil), rows...)
}

var _ store.Store = (*Store)(nil)
