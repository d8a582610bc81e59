package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("rate limited")
	errPermanent = errors.New("bad request")
)

func classify(err error) Class {
	if errors.Is(err, errPermanent) {
		return Permanent
	}

	return Transient
}

type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func TestDo_TransientExhaustsAttempts(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0

	err := Do(context.Background(), Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Classify:    classify,
		Sleep:       sleeper.sleep,
	}, func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestDo_PermanentCalledOnce(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0

	err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Classify:    classify,
		Sleep:       sleeper.sleep,
	}, func(context.Context) error {
		calls++
		return errPermanent
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, errPermanent, err, "permanent errors propagate unchanged")
	assert.Empty(t, sleeper.delays)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0

	var retried []int

	err := Do(context.Background(), Policy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		Classify:    classify,
		Sleep:       sleeper.sleep,
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			retried = append(retried, attempt)
		},
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0

	err := Do(context.Background(), Policy{Sleep: (&fakeSleeper{}).sleep}, func(context.Context) error {
		calls++
		return errTransient
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Classify:    classify,
	}, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errTransient)
}

func TestPolicy_DelayIsNonDecreasing(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{name: "plain", policy: Policy{BaseDelay: 100 * time.Millisecond}},
		{name: "capped", policy: Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}},
		{name: "jitter", policy: Policy{BaseDelay: 100 * time.Millisecond, Jitter: true}},
		{name: "jitter capped", policy: Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Jitter: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := time.Duration(0)
			for n := 0; n < 10; n++ {
				d := tt.policy.Delay(n)
				assert.GreaterOrEqual(t, d, prev, "attempt %d", n)

				if tt.policy.MaxDelay > 0 {
					assert.LessOrEqual(t, d, tt.policy.MaxDelay)
				}

				prev = d
			}
		})
	}
}

func TestValue(t *testing.T) {
	calls := 0

	v, err := Value(context.Background(), Policy{MaxAttempts: 3, Sleep: (&fakeSleeper{}).sleep}, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
