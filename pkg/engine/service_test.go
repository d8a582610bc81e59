package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ethpandaops/trendsync/pkg/fanout"
	"github.com/ethpandaops/trendsync/pkg/harvest"
	"github.com/ethpandaops/trendsync/pkg/provider"
	"github.com/ethpandaops/trendsync/pkg/store/memory"
	"github.com/ethpandaops/trendsync/pkg/tasks"
	"github.com/ethpandaops/trendsync/pkg/window"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (p *published) sinks(table string) fanout.Sink {
	return fanout.SinkFunc(func(_ context.Context, data []byte) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.messages[table] = append(p.messages[table], string(data))
		return nil
	})
}

func regionProvider() provider.Provider {
	return provider.Func(func(_ context.Context, req provider.Request) (*provider.Response, error) {
		values := make(map[string]float64, len(req.Keywords))
		for i, kw := range req.Keywords {
			values[kw] = float64(10 * (i + 1))
		}

		return &provider.Response{Rows: []provider.Row{{GeoCode: "US", GeoName: "United States", Values: values}}}, nil
	})
}

func newTestService(t *testing.T) (*Service, *memory.Store, *published) {
	t.Helper()

	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	mem := memory.New()
	pub := &published{messages: map[string][]string{}}

	svc, err := NewService(context.Background(), log, cfg,
		WithStore(mem),
		WithProvider(regionProvider()),
		WithSinks(pub.sinks),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = svc.Close() })

	return svc, mem, pub
}

func TestService_RunHarvestsIntoStore(t *testing.T) {
	svc, mem, _ := newTestService(t)

	assert.Equal(t, "InterestByRegion", svc.DefaultTable())

	start, err := window.ParseDate("2023-01-02")
	require.NoError(t, err)
	end, err := window.ParseDate("2023-01-08")
	require.NoError(t, err)

	result, err := svc.Run(context.Background(), "InterestByRegion", harvest.Request{Start: &start, End: &end})
	require.NoError(t, err)

	require.NotNil(t, result.OutputRows)
	assert.Equal(t, int64(2), *result.OutputRows)
	assert.Len(t, mem.Rows("InterestByRegion"), 2)
}

func TestService_BroadcastPublishesGeos(t *testing.T) {
	svc, _, pub := newTestService(t)

	summary, err := svc.Broadcast(context.Background(), "InterestByRegion")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.MessagesSent)
	assert.Equal(t, []string{`{"geo":"US"}`, `{"geo":"GB"}`, `{"geo":"DE"}`}, pub.messages["InterestByRegion"])

	_, err = svc.Broadcast(context.Background(), "Unknown")
	require.ErrorIs(t, err, fanout.ErrUnknownTable)
}

func TestService_RouterRoutesParsedMessages(t *testing.T) {
	svc, mem, pub := newTestService(t)

	req, err := tasks.ParseRequest([]byte(`{"broadcast":"InterestByRegion"}`), svc.DefaultTable())
	require.NoError(t, err)

	out, err := svc.Router().Route(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, fanout.Summary{MessagesSent: 3}, out)
	assert.Empty(t, mem.Rows("InterestByRegion"), "a broadcast never harvests")

	req, err = tasks.ParseRequest([]byte(pub.messages["InterestByRegion"][0]+"\n"), svc.DefaultTable())
	require.NoError(t, err)

	var msg struct {
		Geo string `json:"geo"`
	}
	require.NoError(t, json.Unmarshal([]byte(pub.messages["InterestByRegion"][0]), &msg))
	assert.Equal(t, "US", msg.Geo)

	harvestReq, ok := req.(tasks.HarvestRequest)
	require.True(t, ok)
	assert.Equal(t, "InterestByRegion", harvestReq.Table)
}

func TestNewService_InvalidConfig(t *testing.T) {
	_, err := NewService(context.Background(), logrus.New(), &Config{})
	require.Error(t, err)
}
