// Package staging appends normalized observations to a table's append-only staging log
package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/sirupsen/logrus"
)

// ErrLoadFailed is returned when the store refuses the append or the retry budget runs out
var ErrLoadFailed = errors.New("staging load failed")

// Receipt describes a completed append
type Receipt struct {
	Rows      int64
	BatchedAt time.Time
}

// Loader stamps rows with one batch time per call and appends them to staging
type Loader struct {
	log    logrus.FieldLogger
	store  store.Store
	policy retry.Policy
	now    func() time.Time
}

// NewLoader creates a loader. now defaults to time.Now.
func NewLoader(log logrus.FieldLogger, s store.Store, policy retry.Policy, now func() time.Time) *Loader {
	if now == nil {
		now = time.Now
	}

	if policy.Classify == nil {
		policy.Classify = Classify
	}

	return &Loader{
		log:    log.WithField("component", "staging"),
		store:  s,
		policy: policy,
		now:    now,
	}
}

// Classify treats store errors as transient unless marked permanent
func Classify(err error) retry.Class {
	if errors.Is(err, store.ErrPermanentWrite) || errors.Is(err, context.Canceled) {
		return retry.Permanent
	}

	return retry.Transient
}

// Append creates the staging table if needed and appends rows. Every row of one call
// carries the same BatchedAt, truncated to the second.
func (l *Loader) Append(ctx context.Context, spec store.TableSpec, rows []store.Observation) (Receipt, error) {
	batchedAt := l.now().UTC().Truncate(time.Second)

	stamped := make([]store.Observation, len(rows))
	for i, row := range rows {
		row.BatchedAt = batchedAt
		stamped[i] = row
	}

	policy := l.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		l.log.WithError(err).WithFields(logrus.Fields{
			"table":   spec.Staging,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Retrying staging load")
	}

	written, err := retry.Value(ctx, policy, func(ctx context.Context) (int64, error) {
		if err := l.store.EnsureStaging(ctx, spec); err != nil {
			return 0, err
		}

		return l.store.LoadAppend(ctx, spec, stamped)
	})
	if err != nil {
		observability.RecordError("staging", "load")
		return Receipt{}, fmt.Errorf("%w: %s: %w", ErrLoadFailed, spec.Staging, err)
	}

	observability.RecordRowsStaged(spec.Name, written)

	l.log.WithFields(logrus.Fields{
		"table":      spec.Staging,
		"rows":       written,
		"batched_at": batchedAt,
	}).Info("Appended rows to staging")

	return Receipt{Rows: written, BatchedAt: batchedAt}, nil
}
