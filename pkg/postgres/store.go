// Package postgres implements the analytical store on PostgreSQL.
// Canonical tables are rebuilt into a sibling table and swapped in by rename inside a
// single transaction guarded by an advisory lock on the table name.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	backend = "postgres"

	// nextSuffix names the table the canonical content is rebuilt into before the swap
	nextSuffix = "__next"

	// undefinedTable is the SQLSTATE for a missing relation
	undefinedTable = "42P01"

	// maxParams keeps multi-row inserts under the protocol's bind parameter limit
	maxParams = 65535
)

// Store is the PostgreSQL implementation of store.Store
type Store struct {
	log    logrus.FieldLogger
	db     *sql.DB
	schema string
}

// Open connects to Postgres with cfg and verifies the connection
func Open(ctx context.Context, cfg *Config) (*sql.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewStore creates a store writing into schema
func NewStore(log logrus.FieldLogger, db *sql.DB, schema string) *Store {
	if schema == "" {
		schema = "public"
	}

	return &Store{
		log:    log.WithField("component", "postgres-store"),
		db:     db,
		schema: schema,
	}
}

// Close closes the underlying pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Watermark returns max(watermark column) of the canonical table, nil when it is absent or empty
func (s *Store) Watermark(ctx context.Context, spec store.TableSpec) (*time.Time, error) {
	column := spec.WatermarkColumn
	if column == "" {
		column = "start"
	}

	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", pq.QuoteIdentifier(column), s.qualified(spec.Name))

	started := time.Now()

	var watermark sql.NullTime

	err := s.db.QueryRowContext(ctx, query).Scan(&watermark)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == undefinedTable {
		s.record("watermark", nil, started)
		return nil, nil
	}

	s.record("watermark", err, started)

	if err != nil {
		return nil, fmt.Errorf("failed to read watermark of %s: %w", spec.Name, err)
	}

	if !watermark.Valid {
		return nil, nil
	}

	w := watermark.Time.UTC()

	return &w, nil
}

// EnsureStaging creates the staging table if it does not exist
func (s *Store) EnsureStaging(ctx context.Context, spec store.TableSpec) error {
	defs := make([]string, 0, len(spec.Columns))

	for _, c := range spec.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
		}

		defs = append(defs, pq.QuoteIdentifier(c.Name)+" "+typ)
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.qualified(spec.Staging), strings.Join(defs, ", "))

	started := time.Now()
	_, err := s.db.ExecContext(ctx, query)
	s.record("create", err, started)

	if err != nil {
		return classify(fmt.Errorf("failed to create staging table %s: %w", spec.Staging, err))
	}

	return nil
}

// LoadAppend inserts rows into the staging table with multi-row INSERT statements in one
// transaction
func (s *Store) LoadAppend(ctx context.Context, spec store.TableSpec, rows []store.Observation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([][]any, 0, len(rows))

	for _, row := range rows {
		v, err := row.Values(spec.Columns)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
		}

		values = append(values, v)
	}

	started := time.Now()
	err := s.insert(ctx, spec, values)
	s.record("insert", err, started)

	if err != nil {
		return 0, classify(fmt.Errorf("failed to append to %s: %w", spec.Staging, err))
	}

	return int64(len(values)), nil
}

func (s *Store) insert(ctx context.Context, spec store.TableSpec, values [][]any) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	perStatement := max(maxParams/len(spec.Columns), 1)

	for chunk := range slices.Chunk(values, perStatement) {
		query, args := insertStatement(s.qualified(spec.Staging), spec.ColumnNames(), chunk)

		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AtomicReplace rebuilds the canonical table from deduplicated staging content and swaps it
// in by rename. Concurrent replaces of the same table serialize on an advisory lock.
func (s *Store) AtomicReplace(ctx context.Context, spec store.TableSpec) error {
	started := time.Now()
	err := s.replace(ctx, spec)
	s.record("replace", err, started)

	if err != nil {
		return classify(fmt.Errorf("failed to replace %s: %w", spec.Name, err))
	}

	s.log.WithFields(logrus.Fields{
		"table":   spec.Name,
		"staging": spec.Staging,
	}).Debug("Replaced canonical table")

	return nil
}

func (s *Store) replace(ctx context.Context, spec store.TableSpec) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	next := spec.Name + nextSuffix

	statements := []struct {
		query string
		args  []any
	}{
		{query: "SELECT pg_advisory_xact_lock(hashtext($1))", args: []any{s.schema + "." + spec.Name}},
		{query: "DROP TABLE IF EXISTS " + s.qualified(next)},
		{query: rebuildStatement(s.qualified(next), s.qualified(spec.Staging), spec)},
		{query: "DROP TABLE IF EXISTS " + s.qualified(spec.Name)},
		{query: fmt.Sprintf("ALTER TABLE %s RENAME TO %s", s.qualified(next), pq.QuoteIdentifier(spec.Name))},
	}

	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) qualified(table string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(table)
}

func (s *Store) record(queryType string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	observability.RecordStoreQuery(backend, queryType, status, time.Since(started).Seconds())
}

// rebuildStatement keeps one row per natural key: the greatest _batched_at, remaining ties
// by the greatest non-key values
func rebuildStatement(target, staging string, spec store.TableSpec) string {
	key := quoteAll(spec.Key)

	order := append([]string{}, key...)
	if spec.HasBatchedAt() {
		order = append(order, pq.QuoteIdentifier(store.BatchedAtColumn)+" DESC")
	}

	for _, c := range spec.NonKeyColumns() {
		order = append(order, pq.QuoteIdentifier(c)+" DESC")
	}

	return fmt.Sprintf("CREATE TABLE %s AS SELECT DISTINCT ON (%s) %s FROM %s ORDER BY %s",
		target,
		strings.Join(key, ", "),
		strings.Join(quoteAll(spec.ColumnNames()), ", "),
		staging,
		strings.Join(order, ", "),
	)
}

func insertStatement(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder

	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(quoteAll(columns), ", "))

	args := make([]any, 0, len(rows)*len(columns))

	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteByte('(')

		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}

			args = append(args, v)
			fmt.Fprintf(&b, "$%d", len(args))
		}

		b.WriteByte(')')
	}

	return b.String(), args
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = pq.QuoteIdentifier(n)
	}

	return out
}

// columnType maps logical column types onto Postgres types
func columnType(t store.ColumnType) (string, error) {
	switch t {
	case store.TypeString:
		return "TEXT", nil
	case store.TypeFloat:
		return "DOUBLE PRECISION", nil
	case store.TypeDate:
		return "DATE", nil
	case store.TypeTimestamp:
		return "TIMESTAMP", nil
	case store.TypeBool:
		return "BOOLEAN", nil
	default:
		return "", fmt.Errorf("%w: %q", store.ErrUnknownColumnType, t)
	}
}

// classify marks statement errors the server rejected for syntax, schema or data reasons as
// permanent and everything else as retryable
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
		}
	}

	return fmt.Errorf("%w: %w", store.ErrStoreWrite, err)
}

var _ store.Store = (*Store)(nil)
