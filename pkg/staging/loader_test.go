package staging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/ethpandaops/trendsync/pkg/store/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*memory.Store
	failures int
	err      error
	calls    int
}

func (f *flakyStore) LoadAppend(ctx context.Context, spec store.TableSpec, rows []store.Observation) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, f.err
	}

	return f.Store.LoadAppend(ctx, spec, rows)
}

func testSpec() store.TableSpec {
	return store.TableSpec{
		Name:    "InterestByRegion",
		Staging: "_stage_InterestByRegion",
		Columns: []store.Column{
			{Name: "keyword", Type: store.TypeString},
			{Name: "geo_code", Type: store.TypeString},
			{Name: store.BatchedAtColumn, Type: store.TypeTimestamp},
		},
		Key: []string{"keyword", "geo_code"},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: noSleep}
}

func TestLoader_StampsOneBatchTime(t *testing.T) {
	s := memory.New()
	now := time.Date(2023, 1, 16, 10, 30, 15, 987654321, time.UTC)

	l := NewLoader(logrus.New(), s, testPolicy(), func() time.Time { return now })

	rows := []store.Observation{{Keyword: "Zoom", GeoCode: "US"}, {Keyword: "Zoom", GeoCode: "VN"}}

	receipt, err := l.Append(context.Background(), testSpec(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), receipt.Rows)
	assert.Equal(t, now.Truncate(time.Second), receipt.BatchedAt)

	staged := s.Rows("_stage_InterestByRegion")
	require.Len(t, staged, 2)

	for _, row := range staged {
		assert.Equal(t, receipt.BatchedAt, row.BatchedAt)
	}

	assert.True(t, rows[0].BatchedAt.IsZero(), "input rows are not mutated")
}

func TestLoader_RetriesTransientWrites(t *testing.T) {
	s := &flakyStore{Store: memory.New(), failures: 2, err: fmt.Errorf("%w: connection reset", store.ErrStoreWrite)}

	l := NewLoader(logrus.New(), s, testPolicy(), nil)

	receipt, err := l.Append(context.Background(), testSpec(), []store.Observation{{Keyword: "Zoom"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.Rows)
	assert.Equal(t, 3, s.calls)
}

func TestLoader_Exhausted(t *testing.T) {
	s := &flakyStore{Store: memory.New(), failures: 10, err: store.ErrStoreWrite}

	l := NewLoader(logrus.New(), s, testPolicy(), nil)

	_, err := l.Append(context.Background(), testSpec(), []store.Observation{{Keyword: "Zoom"}})
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, store.ErrStoreWrite)
	assert.Equal(t, 3, s.calls)
}

func TestLoader_PermanentNotRetried(t *testing.T) {
	s := &flakyStore{Store: memory.New(), failures: 10, err: store.ErrPermanentWrite}

	l := NewLoader(logrus.New(), s, testPolicy(), nil)

	_, err := l.Append(context.Background(), testSpec(), []store.Observation{{Keyword: "Zoom"}})
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.False(t, errors.Is(err, retry.ErrExhausted))
	assert.Equal(t, 1, s.calls)
}
