package harvest

import (
	"context"
	"errors"

	"github.com/ethpandaops/trendsync/pkg/provider"
	"github.com/ethpandaops/trendsync/pkg/staging"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/ethpandaops/trendsync/pkg/tables"
	"github.com/ethpandaops/trendsync/pkg/window"
)

// Define static errors
var (
	// ErrProviderExhausted is returned when the provider kept failing transiently
	ErrProviderExhausted = errors.New("provider retries exhausted")
	// ErrUnknownTable is returned when a request names a table that is not configured
	ErrUnknownTable = errors.New("unknown table")
)

// Error kinds reported in logs and responses
const (
	KindInvalidRange      = "InvalidRange"
	KindNoWatermark       = "NoWatermark"
	KindUnknownTable      = "UnknownTable"
	KindProviderExhausted = "ProviderExhausted"
	KindProviderPermanent = "ProviderPermanent"
	KindProviderTransient = "ProviderTransient"
	KindLoadFailed        = "LoadFailed"
	KindStoreWrite        = "StoreWrite"
	KindCanceled          = "Canceled"
	KindInternal          = "Internal"
)

// Kind maps an error onto its taxonomy name
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, window.ErrInvalidRange):
		return KindInvalidRange
	case errors.Is(err, window.ErrNoWatermark):
		return KindNoWatermark
	case errors.Is(err, ErrUnknownTable), errors.Is(err, tables.ErrTableNotFound):
		return KindUnknownTable
	case errors.Is(err, ErrProviderExhausted):
		return KindProviderExhausted
	case errors.Is(err, provider.ErrPermanent):
		return KindProviderPermanent
	case errors.Is(err, provider.ErrTransient):
		return KindProviderTransient
	case errors.Is(err, staging.ErrLoadFailed):
		return KindLoadFailed
	case errors.Is(err, store.ErrStoreWrite), errors.Is(err, store.ErrPermanentWrite):
		return KindStoreWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
