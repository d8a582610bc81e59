package clickhouse

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/trendsync/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers queries by substring and records every statement
type fakeServer struct {
	mu      sync.Mutex
	queries []string
	answers map[string]string
	status  int
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, string(body))

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte("Code: 241. Memory limit exceeded"))

		return
	}

	for substr, answer := range f.answers {
		if strings.Contains(string(body), substr) {
			_, _ = w.Write([]byte(answer))
			return
		}
	}
}

func regionSpec() store.TableSpec {
	return store.TableSpec{
		Name:    "InterestByRegion",
		Staging: "_stage_InterestByRegion",
		Columns: []store.Column{
			{Name: "keyword", Type: store.TypeString},
			{Name: "geo_code", Type: store.TypeString},
			{Name: "geo_name", Type: store.TypeString},
			{Name: "value", Type: store.TypeFloat},
			{Name: "start", Type: store.TypeDate},
			{Name: "end", Type: store.TypeDate},
			{Name: store.BatchedAtColumn, Type: store.TypeTimestamp},
		},
		Key:             []string{"keyword", "geo_name", "geo_code", "start", "end"},
		WatermarkColumn: "start",
	}
}

func newTestStore(t *testing.T, f *fakeServer) *Store {
	t.Helper()

	s, err := NewStore(logrus.New(), newTestClient(t, f.handle), "trends")
	require.NoError(t, err)

	return s
}

func TestStore_WatermarkMissingTable(t *testing.T) {
	f := &fakeServer{answers: map[string]string{"system.tables": `{"data":[{"n":"0"}]}`}}
	s := newTestStore(t, f)

	w, err := s.Watermark(context.Background(), regionSpec())
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Len(t, f.queries, 1)
	assert.Contains(t, f.queries[0], "database = 'trends' AND name = 'InterestByRegion'")
}

func TestStore_Watermark(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   *time.Time
	}{
		{name: "date", answer: `{"data":[{"watermark":"2023-01-09"}]}`, want: ptrTime(time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC))},
		{name: "timestamp", answer: `{"data":[{"watermark":"2023-01-09 12:00:00"}]}`, want: ptrTime(time.Date(2023, 1, 9, 12, 0, 0, 0, time.UTC))},
		{name: "empty table", answer: `{"data":[{"watermark":null}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeServer{answers: map[string]string{
				"system.tables": `{"data":[{"n":"1"}]}`,
				"maxOrNull":     tt.answer,
			}}
			s := newTestStore(t, f)

			w, err := s.Watermark(context.Background(), regionSpec())
			require.NoError(t, err)
			assert.Equal(t, tt.want, w)

			require.Len(t, f.queries, 2)
			assert.Equal(t, "SELECT toString(maxOrNull(`start`)) AS watermark FROM `trends`.`InterestByRegion` FORMAT JSON", f.queries[1])
		})
	}
}

func TestStore_EnsureStaging(t *testing.T) {
	f := &fakeServer{}
	s := newTestStore(t, f)

	require.NoError(t, s.EnsureStaging(context.Background(), regionSpec()))
	require.Len(t, f.queries, 1)

	q := f.queries[0]
	assert.True(t, strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS `trends`.`_stage_InterestByRegion` ("))
	assert.Contains(t, q, "`value` Float64")
	assert.Contains(t, q, "`start` Date")
	assert.Contains(t, q, "`_batched_at` DateTime")
	assert.Contains(t, q, "ORDER BY (`keyword`, `geo_name`, `geo_code`, `start`, `end`)")
}

func TestStore_LoadAppend(t *testing.T) {
	f := &fakeServer{}
	s := newTestStore(t, f)

	rows := []store.Observation{{
		Keyword:   "Zoom",
		GeoCode:   "US",
		GeoName:   "United States",
		Value:     42,
		Start:     time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
		BatchedAt: time.Date(2023, 1, 16, 10, 0, 0, 0, time.UTC),
	}}

	n, err := s.LoadAppend(context.Background(), regionSpec(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, f.queries, 1)
	lines := strings.Split(strings.TrimSpace(f.queries[0]), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "INSERT INTO `trends`.`_stage_InterestByRegion` FORMAT JSONEachRow", lines[0])
	assert.JSONEq(t, `{"keyword":"Zoom","geo_code":"US","geo_name":"United States","value":42,"start":"2023-01-02","end":"2023-01-08","_batched_at":"2023-01-16 10:00:00"}`, lines[1])
}

func TestStore_AtomicReplace(t *testing.T) {
	f := &fakeServer{}
	s := newTestStore(t, f)

	require.NoError(t, s.AtomicReplace(context.Background(), regionSpec()))
	require.Len(t, f.queries, 1)

	want := "CREATE OR REPLACE TABLE `trends`.`InterestByRegion`\n" +
		"ENGINE = MergeTree ORDER BY (`keyword`, `geo_name`, `geo_code`, `start`, `end`)\n" +
		"AS SELECT `keyword`, `geo_code`, `geo_name`, `value`, `start`, `end`, `_batched_at`\n" +
		"FROM `trends`.`_stage_InterestByRegion`\n" +
		"ORDER BY `_batched_at` DESC, `value` DESC\n" +
		"LIMIT 1 BY `keyword`, `geo_name`, `geo_code`, `start`, `end`"
	assert.Equal(t, want, f.queries[0])
}

func TestStore_ErrorClassification(t *testing.T) {
	f := &fakeServer{status: http.StatusInternalServerError}
	s := newTestStore(t, f)

	_, err := s.LoadAppend(context.Background(), regionSpec(), []store.Observation{{Keyword: "Zoom"}})
	require.ErrorIs(t, err, store.ErrStoreWrite)

	f.status = http.StatusBadRequest
	err = s.AtomicReplace(context.Background(), regionSpec())
	require.ErrorIs(t, err, store.ErrPermanentWrite)
}

func TestStore_UnknownColumnType(t *testing.T) {
	s := newTestStore(t, &fakeServer{})

	spec := regionSpec()
	spec.Columns[0].Type = "uuid"

	require.ErrorIs(t, s.EnsureStaging(context.Background(), spec), store.ErrUnknownColumnType)
}

func TestEscapeLiteral(t *testing.T) {
	assert.Equal(t, `it\'s`, escapeLiteral("it's"))
	assert.Equal(t, "`a\\`b`", quoteIdent("a`b"))
}

func ptrTime(t time.Time) *time.Time { return &t }
