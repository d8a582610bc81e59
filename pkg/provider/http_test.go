package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethpandaops/trendsync/pkg/retry"
	"github.com/ethpandaops/trendsync/pkg/window"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow() window.Window {
	return window.Window{
		Start: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC),
	}
}

func TestHTTPClient_FetchRegion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interest_by_region", r.URL.Path)
		assert.Equal(t, "AnyDesk,Zoom", r.URL.Query().Get("keywords"))
		assert.Equal(t, "2023-01-02 2023-01-08", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "COUNTRY", r.URL.Query().Get("resolution"))
		assert.Equal(t, "US", r.URL.Query().Get("geo"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows":[{"geoCode":"US-CA","geoName":"California","values":{"AnyDesk":10,"Zoom":90}}]}`))
	}))
	defer server.Close()

	c := NewHTTPClient(logrus.New(), server.URL)

	resp, err := c.Fetch(context.Background(), Request{
		Keywords: []string{"AnyDesk", "Zoom"},
		Window:   testWindow(),
		Geo:      "US",
		Kind:     KindRegion,
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "US-CA", resp.Rows[0].GeoCode)
	assert.InDelta(t, 90, resp.Rows[0].Values["Zoom"], 0)
}

func TestHTTPClient_FetchTimeSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interest_over_time", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("resolution"))
		assert.Empty(t, r.URL.Query().Get("geo"))

		_, _ = w.Write([]byte(`{"rows":[{"date":"2023-01-02","isPartial":true,"values":{"Zoom":5}}]}`))
	}))
	defer server.Close()

	c := NewHTTPClient(logrus.New(), server.URL+"/")

	resp, err := c.Fetch(context.Background(), Request{
		Keywords: []string{"Zoom"},
		Window:   testWindow(),
		Kind:     KindTimeSeries,
	})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.True(t, resp.Rows[0].IsPartial)
	assert.Equal(t, "2023-01-02", resp.Rows[0].Date)
}

func TestHTTPClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantClass retry.Class
	}{
		{name: "throttled", status: http.StatusTooManyRequests, wantErr: ErrTransient, wantClass: retry.Transient},
		{name: "server error", status: http.StatusBadGateway, wantErr: ErrTransient, wantClass: retry.Transient},
		{name: "timeout", status: http.StatusRequestTimeout, wantErr: ErrTransient, wantClass: retry.Transient},
		{name: "bad request", status: http.StatusBadRequest, wantErr: ErrPermanent, wantClass: retry.Permanent},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrPermanent, wantClass: retry.Permanent},
		{name: "undecodable", status: http.StatusOK, body: "<html>", wantErr: ErrPermanent, wantClass: retry.Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewHTTPClient(logrus.New(), server.URL)

			_, err := c.Fetch(context.Background(), Request{Keywords: []string{"Zoom"}, Window: testWindow(), Kind: KindRegion})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantClass, Classify(err))
		})
	}
}

func TestHTTPClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewHTTPClient(logrus.New(), url)

	_, err := c.Fetch(context.Background(), Request{Keywords: []string{"Zoom"}, Window: testWindow(), Kind: KindRegion})
	require.ErrorIs(t, err, ErrTransient)
}

func TestHTTPClient_UnknownKind(t *testing.T) {
	c := NewHTTPClient(logrus.New(), "http://localhost")

	_, err := c.Fetch(context.Background(), Request{Kind: "weekly"})
	require.ErrorIs(t, err, ErrPermanent)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, retry.Transient, Classify(errors.New("boom")))
	assert.Equal(t, retry.Permanent, Classify(context.Canceled))
	assert.Equal(t, retry.Permanent, Classify(ErrPermanent))
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(logrus.New(), &Config{})
	require.ErrorIs(t, err, ErrURLRequired)

	c, err := NewFromConfig(logrus.New(), &Config{URL: "http://trends.local", Timeout: time.Second, Language: "de-DE", TZOffset: 60})
	require.NoError(t, err)
	assert.Equal(t, "de-DE", c.language)
	assert.Equal(t, 60, c.tzOffset)
}
