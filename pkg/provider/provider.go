// Package provider defines the external popularity-signal source and an HTTP client for it
package provider

import (
	"context"
	"errors"

	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/ethpandaops/trendsync/pkg/window"
)

// Define static errors
var (
	// ErrTransient marks failures worth retrying: throttling, timeouts, 5xx
	ErrTransient = errors.New("provider transient error")
	// ErrPermanent marks failures that retrying cannot fix
	ErrPermanent = errors.New("provider permanent error")
	// ErrURLRequired is returned when the provider has no base URL
	ErrURLRequired = errors.New("provider url is required")
)

// Kind selects the provider query
type Kind string

const (
	// KindRegion asks for per-region values over the whole window
	KindRegion Kind = "region"
	// KindTimeSeries asks for per-date values inside the window
	KindTimeSeries Kind = "time_series"
)

// Request is one provider query for a keyword batch
type Request struct {
	Keywords []string
	Window   window.Window
	// Geo restricts the query; empty means global
	Geo string
	// Resolution is the region granularity, e.g. COUNTRY
	Resolution string
	Kind       Kind
}

// Row is one provider row. Region rows carry GeoCode/GeoName, time series rows carry Date.
type Row struct {
	GeoCode   string             `json:"geoCode,omitempty"`
	GeoName   string             `json:"geoName,omitempty"`
	Date      string             `json:"date,omitempty"`
	IsPartial bool               `json:"isPartial,omitempty"`
	Values    map[string]float64 `json:"values"`
}

// Response is the tabular provider result
type Response struct {
	Rows []Row `json:"rows"`
}

// Provider fetches popularity values for keywords
type Provider interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Provider
type Func func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f
func (f Func) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Classify maps provider errors onto retry classes. Unknown errors are transient.
func Classify(err error) retry.Class {
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return retry.Permanent
	}

	return retry.Transient
}
