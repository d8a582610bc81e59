// Package harvest runs one table's fetch, stage and reconcile cycle
package harvest

import (
	"encoding/json"
	"time"

	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/ethpandaops/trendsync/pkg/window"
)

// Observation is one normalized (keyword, geo, period) value
type Observation = store.Observation

// State is a step of a run
type State string

// Run states
const (
	StatePlanning    State = "planning"
	StateFetching    State = "fetching"
	StateLoading     State = "loading"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Request is one invocation. Explicit bounds are only used when both are set.
type Request struct {
	Start *time.Time
	End   *time.Time
	Geo   *string
}

// Result summarizes a successful run. OutputRows is nil when nothing was fetched.
type Result struct {
	Table        string
	Start        time.Time
	End          time.Time
	Geo          string
	NumProcessed int64
	OutputRows   *int64
}

type resultJSON struct {
	Table        string `json:"table"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Geo          string `json:"geo,omitempty"`
	NumProcessed int64  `json:"numProcessed"`
	OutputRows   *int64 `json:"outputRows,omitempty"`
}

// MarshalJSON renders dates as YYYY-MM-DD
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Table:        r.Table,
		Start:        r.Start.Format(window.DateFormat),
		End:          r.End.Format(window.DateFormat),
		Geo:          r.Geo,
		NumProcessed: r.NumProcessed,
		OutputRows:   r.OutputRows,
	})
}
