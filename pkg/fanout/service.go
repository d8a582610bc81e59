package fanout

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTable is returned when broadcasting a table with no geographies configured
var ErrUnknownTable = errors.New("no geographies configured for table")

// SinkFactory returns the sink that feeds a table's harvest consumers
type SinkFactory func(table string) Sink

// Service broadcasts each table's configured geographies
type Service struct {
	dispatcher *Dispatcher
	geos       map[string][]string
	sinks      SinkFactory
}

// NewService creates a service. geos maps table name to its geography universe.
func NewService(dispatcher *Dispatcher, geos map[string][]string, sinks SinkFactory) *Service {
	return &Service{
		dispatcher: dispatcher,
		geos:       geos,
		sinks:      sinks,
	}
}

// Broadcast fans out the configured geographies of table
func (s *Service) Broadcast(ctx context.Context, table string) (Summary, error) {
	geos, ok := s.geos[table]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}

	return s.dispatcher.Broadcast(ctx, table, geos, s.sinks(table))
}
