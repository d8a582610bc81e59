package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/trendsync/pkg/observability"
	"github.com/ethpandaops/trendsync/pkg/provider"
	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/sirupsen/logrus"
)

// Fetcher calls the provider under a retry policy
type Fetcher struct {
	log      logrus.FieldLogger
	provider provider.Provider
	policy   retry.Policy
	table    string
}

// NewFetcher creates a fetcher for one table
func NewFetcher(log logrus.FieldLogger, p provider.Provider, policy retry.Policy, table string) *Fetcher {
	if policy.Classify == nil {
		policy.Classify = provider.Classify
	}

	return &Fetcher{
		log:      log.WithField("component", "fetcher"),
		provider: p,
		policy:   policy,
		table:    table,
	}
}

// Fetch returns the provider response. Permanent errors come back after one call;
// exhausting the transient budget yields ErrProviderExhausted.
func (f *Fetcher) Fetch(ctx context.Context, req provider.Request) (*provider.Response, error) {
	policy := f.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.RecordProviderRetry(f.table)

		f.log.WithError(err).WithFields(logrus.Fields{
			"table":   f.table,
			"window":  req.Window.String(),
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Provider call failed, backing off")
	}

	resp, err := retry.Value(ctx, policy, func(ctx context.Context) (*provider.Response, error) {
		resp, err := f.provider.Fetch(ctx, req)

		switch {
		case err == nil:
			observability.RecordProviderRequest(f.table, "success")
		case policy.Classify(err) == retry.Permanent:
			observability.RecordProviderRequest(f.table, "permanent")
		default:
			observability.RecordProviderRequest(f.table, "transient")
		}

		return resp, err
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, fmt.Errorf("%w: %w", ErrProviderExhausted, err)
		}

		return nil, err
	}

	return resp, nil
}
