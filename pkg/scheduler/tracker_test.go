package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/trendsync/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisScheduleTracker(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	tracker := newScheduleTracker(logrus.New(), client)
	ctx := context.Background()

	t.Run("never run is zero", func(t *testing.T) {
		lastRun, err := tracker.GetLastRun(ctx, "InterestByRegion")
		require.NoError(t, err)
		assert.True(t, lastRun.IsZero())
	})

	t.Run("set and get", func(t *testing.T) {
		at := time.Date(2023, 1, 9, 6, 0, 0, 0, time.UTC)

		require.NoError(t, tracker.SetLastRun(ctx, "InterestByRegion", at))

		lastRun, err := tracker.GetLastRun(ctx, "InterestByRegion")
		require.NoError(t, err)
		assert.Equal(t, at, lastRun)

		raw, err := mr.Get(lastRunKeyPrefix + "InterestByRegion")
		require.NoError(t, err)
		assert.Equal(t, "2023-01-09T06:00:00Z", raw)
	})

	t.Run("tables and delete", func(t *testing.T) {
		require.NoError(t, tracker.SetLastRun(ctx, "InterestOverTime", time.Now()))

		tables, err := tracker.Tables(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"InterestByRegion", "InterestOverTime"}, tables)

		require.NoError(t, tracker.DeleteLastRun(ctx, "InterestOverTime"))

		tables, err = tracker.Tables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"InterestByRegion"}, tables)
	})

	t.Run("corrupt value", func(t *testing.T) {
		require.NoError(t, mr.Set(lastRunKeyPrefix+"bad", "yesterday"))

		_, err := tracker.GetLastRun(ctx, "bad")
		require.Error(t, err)
	})
}
