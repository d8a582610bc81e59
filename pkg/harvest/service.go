package harvest

import (
	"context"
	"fmt"
	"sort"
)

// Service dispatches runs to per-table runners
type Service struct {
	runners      map[string]*Runner
	defaultTable string
}

// NewService indexes runners by table name. The first runner is the default table.
func NewService(runners ...*Runner) *Service {
	s := &Service{runners: make(map[string]*Runner, len(runners))}

	for i, r := range runners {
		name := r.Table().Name
		if i == 0 {
			s.defaultTable = name
		}

		s.runners[name] = r
	}

	return s
}

// DefaultTable is used by requests that do not name one
func (s *Service) DefaultTable() string {
	return s.defaultTable
}

// Tables lists the known tables
func (s *Service) Tables() []string {
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Runner returns the runner for table
func (s *Service) Runner(table string) (*Runner, error) {
	if table == "" {
		table = s.defaultTable
	}

	r, ok := s.runners[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	return r, nil
}

// Run runs one invocation against table, or the default table when empty
func (s *Service) Run(ctx context.Context, table string, req Request) (*Result, error) {
	r, err := s.Runner(table)
	if err != nil {
		return nil, err
	}

	return r.Run(ctx, req)
}
