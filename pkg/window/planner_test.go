package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func weekly(t *testing.T, now time.Time, fallback time.Duration) *Planner {
	t.Helper()

	p, err := NewPlanner(Policy{Period: 7 * day, Align: AlignWeek, FallbackLookback: fallback}, func() time.Time { return now })
	require.NoError(t, err)

	return p
}

func TestPlanner_ExplicitBounds(t *testing.T) {
	p := weekly(t, date(2024, 1, 1), 0)

	plan, err := p.Plan(ptr(date(2023, 1, 2)), ptr(date(2023, 1, 16)), nil)
	require.NoError(t, err)

	assert.Equal(t, []Window{
		{Start: date(2023, 1, 2), End: date(2023, 1, 8)},
		{Start: date(2023, 1, 9), End: date(2023, 1, 15)},
	}, plan.Windows)
	assert.Equal(t, date(2023, 1, 2), plan.Start)
	assert.Equal(t, date(2023, 1, 15), plan.End)
}

func TestPlanner_ExplicitBoundsIgnoreWatermark(t *testing.T) {
	p := weekly(t, date(2024, 1, 1), 0)

	plan, err := p.Plan(ptr(date(2023, 1, 4)), ptr(date(2023, 1, 10)), ptr(date(2022, 6, 1)))
	require.NoError(t, err)

	// Explicit bounds are not realigned.
	require.Len(t, plan.Windows, 1)
	assert.Equal(t, date(2023, 1, 4), plan.Start)
	assert.Equal(t, date(2023, 1, 10), plan.End)
}

func TestPlanner_FromWatermark(t *testing.T) {
	// Wednesday 2023-01-18 at 15:04, watermark is Thursday 2023-01-05.
	now := time.Date(2023, 1, 18, 15, 4, 0, 0, time.UTC)
	p := weekly(t, now, 0)

	plan, err := p.Plan(nil, nil, ptr(date(2023, 1, 5)))
	require.NoError(t, err)

	assert.Equal(t, date(2023, 1, 2), plan.Start, "watermark aligned to Monday")
	assert.Equal(t, []Window{
		{Start: date(2023, 1, 2), End: date(2023, 1, 8)},
		{Start: date(2023, 1, 9), End: date(2023, 1, 15)},
		{Start: date(2023, 1, 16), End: date(2023, 1, 22)},
	}, plan.Windows)
	assert.Equal(t, date(2023, 1, 22), plan.End)
}

func TestPlanner_NoWatermark(t *testing.T) {
	now := date(2023, 6, 15)

	t.Run("without fallback is a caller error", func(t *testing.T) {
		_, err := weekly(t, now, 0).Plan(nil, nil, nil)
		require.ErrorIs(t, err, ErrNoWatermark)
	})

	t.Run("with fallback uses trailing lookback", func(t *testing.T) {
		plan, err := weekly(t, now, 365*day).Plan(nil, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, StartOfWeek(now.Add(-365*day)), plan.Start)
		assert.True(t, plan.End.Add(7*day).After(now) || plan.End.Equal(now))
	})

	t.Run("only one explicit bound falls back to watermark", func(t *testing.T) {
		_, err := weekly(t, now, 0).Plan(ptr(date(2023, 1, 1)), nil, nil)
		require.ErrorIs(t, err, ErrNoWatermark)
	})
}

func TestPlanner_InvalidRange(t *testing.T) {
	p := weekly(t, date(2024, 1, 1), 0)

	tests := []struct {
		name       string
		start, end time.Time
	}{
		{name: "start equals end", start: date(2023, 1, 2), end: date(2023, 1, 2)},
		{name: "start after end", start: date(2023, 2, 1), end: date(2023, 1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Plan(ptr(tt.start), ptr(tt.end), nil)
			require.ErrorIs(t, err, ErrInvalidRange)
		})
	}

	t.Run("watermark already at today", func(t *testing.T) {
		now := date(2023, 1, 2) // a Monday
		_, err := weekly(t, now, 0).Plan(nil, nil, ptr(now))
		require.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestSplit_Properties(t *testing.T) {
	periods := []int{1, 3, 7, 14, 30}
	starts := []time.Time{date(2022, 12, 26), date(2023, 1, 5), date(2024, 2, 27)}
	spans := []int{1, 2, 6, 7, 8, 29, 90, 366}

	for _, pd := range periods {
		for _, start := range starts {
			for _, span := range spans {
				end := start.AddDate(0, 0, span)
				period := time.Duration(pd) * day

				windows, err := Split(start, end, period)
				require.NoError(t, err)
				require.NotEmpty(t, windows)

				assert.Equal(t, start, windows[0].Start)

				for i, w := range windows {
					assert.False(t, w.End.Before(w.Start))

					if i > 0 {
						assert.Equal(t, windows[i-1].End.AddDate(0, 0, 1), w.Start, "windows are contiguous")
					}
				}

				last := windows[len(windows)-1]
				assert.True(t, last.Start.Before(end))
				assert.False(t, last.End.Before(end.Add(-period)), "final window reaches end minus one period")
			}
		}
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "7d", want: 7 * day},
		{in: "1w", want: 7 * day},
		{in: "1d", want: day},
		{in: "48h", want: 2 * day},
		{in: "365d", want: 365 * day},
		{in: "", wantErr: true},
		{in: "0d", wantErr: true},
		{in: "-3d", wantErr: true},
		{in: "90m", wantErr: true},
		{in: "xd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2023-01-02")
	require.NoError(t, err)
	assert.Equal(t, date(2023, 1, 2), got)

	_, err = ParseDate("01/02/2023")
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{in: date(2023, 1, 2), want: date(2023, 1, 2)},
		{in: date(2023, 1, 8), want: date(2023, 1, 2)},
		{in: time.Date(2023, 1, 5, 23, 59, 0, 0, time.UTC), want: date(2023, 1, 2)},
		{in: date(2023, 1, 1), want: date(2022, 12, 26)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StartOfWeek(tt.in), tt.in.String())
	}
}

func TestWindow_Timeframe(t *testing.T) {
	w := Window{Start: date(2023, 1, 2), End: date(2023, 1, 8)}
	assert.Equal(t, "2023-01-02 2023-01-08", w.Timeframe())
	assert.Equal(t, "[2023-01-02..2023-01-08]", w.String())
}
