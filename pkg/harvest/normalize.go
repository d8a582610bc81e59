package harvest

import (
	"fmt"

	"github.com/ethpandaops/trendsync/pkg/provider"
	"github.com/ethpandaops/trendsync/pkg/tables"
	"github.com/ethpandaops/trendsync/pkg/window"
)

// NormalizeContext is what a provider response does not carry about itself
type NormalizeContext struct {
	Kind        tables.Kind
	Window      window.Window
	Geo         string
	Keywords    []string
	DropPartial bool
}

// Normalize reshapes a provider response into one observation per (region|date, keyword).
// Keywords come out in request order; values for keywords that were not requested are ignored.
func Normalize(resp *provider.Response, nc NormalizeContext) ([]Observation, error) {
	if resp == nil || len(resp.Rows) == 0 {
		return []Observation{}, nil
	}

	switch nc.Kind {
	case tables.KindRegionSnapshot:
		return normalizeRegion(resp.Rows, nc), nil
	case tables.KindTimeSeries:
		return normalizeTimeSeries(resp.Rows, nc)
	default:
		return nil, fmt.Errorf("%w: %q", tables.ErrInvalidKind, nc.Kind)
	}
}

func normalizeRegion(rows []provider.Row, nc NormalizeContext) []Observation {
	out := make([]Observation, 0, len(rows)*len(nc.Keywords))

	for _, row := range rows {
		for _, kw := range nc.Keywords {
			value, ok := row.Values[kw]
			if !ok {
				continue
			}

			out = append(out, Observation{
				Keyword: kw,
				GeoCode: row.GeoCode,
				GeoName: row.GeoName,
				Value:   value,
				Start:   nc.Window.Start,
				End:     nc.Window.End,
			})
		}
	}

	return out
}

func normalizeTimeSeries(rows []provider.Row, nc NormalizeContext) ([]Observation, error) {
	out := make([]Observation, 0, len(rows)*len(nc.Keywords))

	for _, row := range rows {
		if nc.DropPartial && row.IsPartial {
			continue
		}

		date, err := window.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: row date: %v", provider.ErrPermanent, err)
		}

		for _, kw := range nc.Keywords {
			value, ok := row.Values[kw]
			if !ok {
				continue
			}

			out = append(out, Observation{
				Keyword: kw,
				GeoCode: nc.Geo,
				Value:   value,
				Date:    date,
				Start:   nc.Window.Start,
				End:     nc.Window.End,
			})
		}
	}

	return out, nil
}
