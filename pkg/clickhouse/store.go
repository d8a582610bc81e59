package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02 15:04:05"

// Store is the ClickHouse implementation of store.Store
type Store struct {
	log      logrus.FieldLogger
	client   ClientInterface
	sql      *sqlRenderer
	database string
}

// NewStore creates a store writing into database
func NewStore(log logrus.FieldLogger, client ClientInterface, database string) (*Store, error) {
	renderer, err := newSQLRenderer()
	if err != nil {
		return nil, err
	}

	return &Store{
		log:      log.WithField("component", "clickhouse-store"),
		client:   client,
		sql:      renderer,
		database: database,
	}, nil
}

// Watermark returns max(watermark column) of the canonical table, nil when it is absent or empty
func (s *Store) Watermark(ctx context.Context, spec store.TableSpec) (*time.Time, error) {
	exists, err := s.tableExists(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, nil
	}

	column := spec.WatermarkColumn
	if column == "" {
		column = "start"
	}

	query, err := s.sql.watermark(s.database, spec, column)
	if err != nil {
		return nil, err
	}

	var row struct {
		Watermark *string `json:"watermark"`
	}

	if err := s.client.QueryOne(ctx, query, &row); err != nil {
		return nil, fmt.Errorf("failed to read watermark of %s: %w", spec.Name, err)
	}

	if row.Watermark == nil || *row.Watermark == "" {
		return nil, nil
	}

	return parseWatermark(*row.Watermark)
}

// EnsureStaging creates the staging table if it does not exist
func (s *Store) EnsureStaging(ctx context.Context, spec store.TableSpec) error {
	query, err := s.sql.createStaging(s.database, spec)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
	}

	if _, err := s.client.Execute(ctx, query); err != nil {
		return classify(fmt.Errorf("failed to create staging table %s: %w", spec.Staging, err))
	}

	return nil
}

// LoadAppend inserts rows into the staging table with JSONEachRow
func (s *Store) LoadAppend(ctx context.Context, spec store.TableSpec, rows []store.Observation) (int64, error) {
	records := make([]map[string]any, 0, len(rows))

	for _, row := range rows {
		record, err := row.Record(spec.Columns)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
		}

		records = append(records, record)
	}

	table := quoteIdent(s.database) + "." + quoteIdent(spec.Staging)

	if err := s.client.BulkInsert(ctx, table, records); err != nil {
		return 0, classify(fmt.Errorf("failed to append to %s: %w", spec.Staging, err))
	}

	return int64(len(records)), nil
}

// AtomicReplace swaps the canonical table for the deduplicated staging content in one
// CREATE OR REPLACE statement
func (s *Store) AtomicReplace(ctx context.Context, spec store.TableSpec) error {
	query, err := s.sql.replace(s.database, spec)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
	}

	if _, err := s.client.Execute(ctx, query); err != nil {
		return classify(fmt.Errorf("failed to replace %s: %w", spec.Name, err))
	}

	s.log.WithFields(logrus.Fields{
		"table":   spec.Name,
		"staging": spec.Staging,
	}).Debug("Replaced canonical table")

	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	query, err := s.sql.tableExists(s.database, table)
	if err != nil {
		return false, err
	}

	var row struct {
		N uint64 `json:"n,string"`
	}

	if err := s.client.QueryOne(ctx, query, &row); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}

	return row.N > 0, nil
}

func parseWatermark(s string) (*time.Time, error) {
	layout := "2006-01-02"
	if len(s) > len(layout) {
		layout = timestampLayout
	}

	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("unexpected watermark %q: %w", s, err)
	}

	return &t, nil
}

// classify marks client errors the server rejected as permanent and everything else as
// retryable
func classify(err error) error {
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.Status < http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
	}

	return fmt.Errorf("%w: %w", store.ErrStoreWrite, err)
}

var _ store.Store = (*Store)(nil)
