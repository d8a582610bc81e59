package window

import (
	"fmt"
	"time"
)

// Policy controls how a table derives its harvest range when no explicit bounds are given
type Policy struct {
	// Period is the length of one window, a whole number of days
	Period time.Duration
	// Align snaps a watermark-derived start to its period boundary
	Align Align
	// FallbackLookback is used on the first run when no watermark exists.
	// Zero means a missing watermark is a caller error.
	FallbackLookback time.Duration
}

// Plan is the output of Planner.Plan
type Plan struct {
	// Start is the first window's start
	Start time.Time
	// End is the last window's end, which is what was actually queried
	End     time.Time
	Windows []Window
}

// Planner computes the windows to harvest
type Planner struct {
	policy Policy
	now    func() time.Time
}

// NewPlanner creates a planner for a policy. now defaults to time.Now.
func NewPlanner(policy Policy, now func() time.Time) (*Planner, error) {
	if policy.Period <= 0 || policy.Period%day != 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, policy.Period)
	}

	if policy.Align == "" {
		policy.Align = AlignWeek
	}

	if err := policy.Align.Validate(); err != nil {
		return nil, err
	}

	if now == nil {
		now = time.Now
	}

	return &Planner{policy: policy, now: now}, nil
}

// Plan resolves the effective range and splits it into contiguous windows.
// Explicit bounds are used verbatim; otherwise start comes from the watermark
// (or the fallback lookback) aligned to its period, and end is today at midnight.
func (p *Planner) Plan(explicitStart, explicitEnd, watermark *time.Time) (Plan, error) {
	start, end, err := p.bounds(explicitStart, explicitEnd, watermark)
	if err != nil {
		return Plan{}, err
	}

	windows, err := Split(start, end, p.policy.Period)
	if err != nil {
		return Plan{}, err
	}

	return Plan{
		Start:   windows[0].Start,
		End:     windows[len(windows)-1].End,
		Windows: windows,
	}, nil
}

func (p *Planner) bounds(explicitStart, explicitEnd, watermark *time.Time) (time.Time, time.Time, error) {
	if explicitStart != nil && explicitEnd != nil {
		return Midnight(*explicitStart), Midnight(*explicitEnd), nil
	}

	now := p.now()
	end := Midnight(now)

	var start time.Time

	switch {
	case watermark != nil:
		start = *watermark
	case p.policy.FallbackLookback > 0:
		start = now.Add(-p.policy.FallbackLookback)
	default:
		return time.Time{}, time.Time{}, ErrNoWatermark
	}

	return p.align(start), end, nil
}

func (p *Planner) align(t time.Time) time.Time {
	switch p.policy.Align {
	case AlignWeek:
		return StartOfWeek(t)
	case AlignNone:
		return t.UTC()
	default:
		return Midnight(t)
	}
}

// Split steps from start by period until the next window start would reach end.
// Each window covers [s, s+period-1day]. start >= end is ErrInvalidRange.
func Split(start, end time.Time, period time.Duration) ([]Window, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange, start.Format(DateFormat), end.Format(DateFormat))
	}

	days := int(period / day)

	var windows []Window
	for s := start; s.Before(end); s = s.AddDate(0, 0, days) {
		windows = append(windows, Window{
			Start: s,
			End:   s.AddDate(0, 0, days-1),
		})
	}

	return windows, nil
}
