package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() store.TableSpec {
	return store.TableSpec{
		Name:    "InterestOverTime",
		Staging: "_stage_InterestOverTime",
		Columns: []store.Column{
			{Name: "keyword", Type: store.TypeString},
			{Name: "geo_code", Type: store.TypeString},
			{Name: "value", Type: store.TypeFloat},
			{Name: "date", Type: store.TypeDate},
			{Name: "start", Type: store.TypeDate},
			{Name: store.BatchedAtColumn, Type: store.TypeTimestamp},
		},
		Key:             []string{"keyword", "geo_code", "date"},
		WatermarkColumn: "start",
	}
}

func TestStore_WatermarkAbsent(t *testing.T) {
	s := New()

	w, err := s.Watermark(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestStore_Watermark(t *testing.T) {
	s := New()
	spec := testSpec()

	s.Seed(spec.Name, []store.Observation{
		{Keyword: "Zoom", Start: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)},
		{Keyword: "Zoom", Start: time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)},
	})

	w, err := s.Watermark(context.Background(), spec)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC), *w)

	spec.WatermarkColumn = "keyword"
	_, err = s.Watermark(context.Background(), spec)
	require.ErrorIs(t, err, store.ErrUnknownColumn)
}

func TestStore_LoadAndReplace(t *testing.T) {
	ctx := context.Background()
	s := New()
	spec := testSpec()
	day := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	at := time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.EnsureStaging(ctx, spec))
	require.NoError(t, s.EnsureStaging(ctx, spec), "creating staging twice is a no-op")

	n, err := s.LoadAppend(ctx, spec, []store.Observation{
		{Keyword: "Zoom", GeoCode: "US", Date: day, Value: 1, BatchedAt: at},
		{Keyword: "Zoom", GeoCode: "US", Date: day, Value: 2, BatchedAt: at.Add(time.Minute)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.AtomicReplace(ctx, spec))

	rows := s.Rows(spec.Name)
	require.Len(t, rows, 1)
	assert.InDelta(t, 2, rows[0].Value, 0)
}
