package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/sirupsen/logrus"
)

// Reconciler replaces a canonical table with the deduplicated projection of its staging table
type Reconciler struct {
	store store.Store
	log   logrus.FieldLogger
}

// NewReconciler creates a reconciler backed by a store
func NewReconciler(log logrus.FieldLogger, s store.Store) *Reconciler {
	return &Reconciler{
		store: s,
		log:   log.WithField("component", "merge"),
	}
}

// Reconcile rebuilds spec.Name from spec.Staging. Running it twice without new staging
// rows leaves the canonical table unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, spec store.TableSpec) error {
	started := time.Now()

	if err := r.store.AtomicReplace(ctx, spec); err != nil {
		observability.RecordReconcile(spec.Name, "failed", time.Since(started).Seconds())
		return fmt.Errorf("reconcile %s: %w", spec.Name, err)
	}

	observability.RecordReconcile(spec.Name, "success", time.Since(started).Seconds())

	r.log.WithFields(logrus.Fields{
		"table":    spec.Name,
		"staging":  spec.Staging,
		"key":      spec.Key,
		"duration": time.Since(started),
	}).Info("Reconciled canonical table")

	return nil
}
