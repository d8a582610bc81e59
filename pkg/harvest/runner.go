package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/merge"
	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/provider"
	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/ethpandaops/trendsync/pkg/staging"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/ethpandaops/trendsync/pkg/tables"
	"github.com/ethpandaops/trendsync/pkg/window"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	// ErrStoreRequired is returned when Deps has no store
	ErrStoreRequired = errors.New("store is required")
	// ErrProviderRequired is returned when Deps has no provider
	ErrProviderRequired = errors.New("provider is required")
)

// Deps are everything a Runner needs
type Deps struct {
	Log         logrus.FieldLogger
	Store       store.Store
	Provider    provider.Provider
	Table       tables.Config
	FetchPolicy retry.Policy
	LoadPolicy  retry.Policy
	// Now defaults to time.Now
	Now func() time.Time
}

// Runner orchestrates plan, fetch, normalize, stage and reconcile for one table
type Runner struct {
	log        logrus.FieldLogger
	table      tables.Config
	spec       store.TableSpec
	store      store.Store
	planner    *window.Planner
	fetcher    *Fetcher
	loader     *staging.Loader
	reconciler *merge.Reconciler
	kind       provider.Kind
}

// NewRunner validates deps and builds the run pipeline for a table
func NewRunner(deps Deps) (*Runner, error) {
	if deps.Store == nil {
		return nil, ErrStoreRequired
	}

	if deps.Provider == nil {
		return nil, ErrProviderRequired
	}

	if deps.Log == nil {
		deps.Log = logrus.New()
	}

	if err := deps.Table.Validate(); err != nil {
		return nil, err
	}

	policy, err := deps.Table.Policy()
	if err != nil {
		return nil, err
	}

	planner, err := window.NewPlanner(policy, deps.Now)
	if err != nil {
		return nil, err
	}

	kind := provider.KindRegion
	if deps.Table.Kind == tables.KindTimeSeries {
		kind = provider.KindTimeSeries
	}

	log := deps.Log.WithField("table", deps.Table.Name)

	return &Runner{
		log:        log.WithField("component", "runner"),
		table:      deps.Table,
		spec:       deps.Table.Spec(),
		store:      deps.Store,
		planner:    planner,
		fetcher:    NewFetcher(log, deps.Provider, deps.FetchPolicy, deps.Table.Name),
		loader:     staging.NewLoader(log, deps.Store, deps.LoadPolicy, deps.Now),
		reconciler: merge.NewReconciler(log, deps.Store),
		kind:       kind,
	}, nil
}

// Table returns the table configuration
func (r *Runner) Table() tables.Config {
	return r.table
}

// Run executes one invocation. Any failure leaves the canonical table untouched
// and returns a nil result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	geo := r.table.DefaultGeo
	if req.Geo != nil {
		geo = *req.Geo
	}

	log := r.log.WithFields(logrus.Fields{
		"geo":    geo,
		"run_id": uuid.New().String(),
	})

	observability.RecordRunStart(r.table.Name)

	result, err := r.run(ctx, log, req, geo)
	if err != nil {
		observability.RecordRunComplete(r.table.Name, "failed", time.Since(started).Seconds())
		observability.RecordError("runner", Kind(err))

		log.WithError(err).WithFields(logrus.Fields{
			"state": StateFailed,
			"kind":  Kind(err),
		}).Error("Harvest run failed")

		return nil, err
	}

	observability.RecordRunComplete(r.table.Name, "success", time.Since(started).Seconds())

	log.WithFields(logrus.Fields{
		"state":         StateDone,
		"num_processed": result.NumProcessed,
		"duration":      time.Since(started),
	}).Info("Harvest run complete")

	return result, nil
}

func (r *Runner) run(ctx context.Context, log logrus.FieldLogger, req Request, geo string) (*Result, error) {
	log.WithField("state", StatePlanning).Debug("Planning windows")

	plan, err := r.plan(ctx, req)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"state":   StateFetching,
		"start":   plan.Start.Format(window.DateFormat),
		"end":     plan.End.Format(window.DateFormat),
		"windows": len(plan.Windows),
	}).Info("Fetching windows")

	rows, err := r.fetch(ctx, plan, geo)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Table:        r.table.Name,
		Start:        plan.Start,
		End:          plan.End,
		Geo:          geo,
		NumProcessed: int64(len(rows)),
	}

	if len(rows) == 0 {
		log.WithField("state", StateDone).Info("Provider returned no rows, nothing to load")
		return result, nil
	}

	log.WithFields(logrus.Fields{"state": StateLoading, "rows": len(rows)}).Info("Loading rows into staging")

	receipt, err := r.loader.Append(ctx, r.spec, rows)
	if err != nil {
		return nil, err
	}

	log.WithField("state", StateReconciling).Info("Reconciling canonical table")

	if err := r.reconciler.Reconcile(ctx, r.spec); err != nil {
		return nil, err
	}

	result.OutputRows = &receipt.Rows

	return result, nil
}

func (r *Runner) plan(ctx context.Context, req Request) (window.Plan, error) {
	if req.Start != nil && req.End != nil {
		return r.planner.Plan(req.Start, req.End, nil)
	}

	watermark, err := r.store.Watermark(ctx, r.spec)
	if err != nil {
		return window.Plan{}, fmt.Errorf("failed to read watermark: %w", err)
	}

	if watermark != nil {
		observability.RecordWatermark(r.table.Name, float64(watermark.Unix()))
	}

	return r.planner.Plan(nil, nil, watermark)
}

func (r *Runner) fetch(ctx context.Context, plan window.Plan, geo string) ([]Observation, error) {
	batches := Batch(r.table.Keywords, r.table.BatchSize)

	var rows []Observation

	for _, w := range plan.Windows {
		for _, batch := range batches {
			resp, err := r.fetcher.Fetch(ctx, provider.Request{
				Keywords:   batch,
				Window:     w,
				Geo:        geo,
				Resolution: r.table.Resolution,
				Kind:       r.kind,
			})
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", w, err)
			}

			normalized, err := Normalize(resp, NormalizeContext{
				Kind:        r.table.Kind,
				Window:      w,
				Geo:         geo,
				Keywords:    batch,
				DropPartial: r.table.DropPartial,
			})
			if err != nil {
				return nil, err
			}

			rows = append(rows, normalized...)
		}
	}

	return rows, nil
}
