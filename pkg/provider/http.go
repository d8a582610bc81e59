package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	regionPath     = "/interest_by_region"
	timeSeriesPath = "/interest_over_time"
	maxErrorBody   = 512
)

// Config configures the HTTP provider
type Config struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
	Language string        `yaml:"language" default:"en-US"`
	// TZOffset is the provider timezone offset in minutes
	TZOffset int `yaml:"tzOffset"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid provider url: %w", err)
	}

	return nil
}

// HTTPClient queries a JSON popularity API
type HTTPClient struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	baseURL    string
	language   string
	tzOffset   int
}

// Option customizes an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithLanguage sets the hl parameter
func WithLanguage(lang string) Option {
	return func(c *HTTPClient) {
		c.language = lang
	}
}

// WithTZOffset sets the tz parameter in minutes
func WithTZOffset(minutes int) Option {
	return func(c *HTTPClient) {
		c.tzOffset = minutes
	}
}

// NewHTTPClient creates a provider client for baseURL
func NewHTTPClient(log logrus.FieldLogger, baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		log:        log.WithField("component", "provider"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   "en-US",
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// NewFromConfig creates a provider client from configuration
func NewFromConfig(log logrus.FieldLogger, cfg *Config) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return NewHTTPClient(log, cfg.URL,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithLanguage(cfg.Language),
		WithTZOffset(cfg.TZOffset),
	), nil
}

// Fetch runs one query. Throttling, 5xx and network errors wrap ErrTransient,
// other non-2xx statuses and undecodable bodies wrap ErrPermanent.
func (c *HTTPClient) Fetch(ctx context.Context, req Request) (*Response, error) {
	endpoint, err := c.endpoint(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrPermanent, err)
	}

	httpReq.Header.Set("Accept", "application/json")

	started := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: request failed: %v", ErrTransient, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransient, err)
	}

	c.log.WithFields(logrus.Fields{
		"kind":     req.Kind,
		"keywords": len(req.Keywords),
		"window":   req.Window.String(),
		"geo":      req.Geo,
		"status":   resp.StatusCode,
		"duration": time.Since(started),
	}).Debug("Provider responded")

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrPermanent, err)
	}

	return &out, nil
}

func (c *HTTPClient) endpoint(req Request) (string, error) {
	var path string

	switch req.Kind {
	case KindRegion:
		path = regionPath
	case KindTimeSeries:
		path = timeSeriesPath
	default:
		return "", fmt.Errorf("%w: unknown query kind %q", ErrPermanent, req.Kind)
	}

	q := url.Values{}
	q.Set("keywords", strings.Join(req.Keywords, ","))
	q.Set("timeframe", req.Window.Timeframe())
	q.Set("hl", c.language)
	q.Set("tz", fmt.Sprintf("%d", c.tzOffset))

	if req.Geo != "" {
		q.Set("geo", req.Geo)
	}

	if req.Kind == KindRegion {
		resolution := req.Resolution
		if resolution == "" {
			resolution = "COUNTRY"
		}

		q.Set("resolution", resolution)
		q.Set("inc_low_vol", "true")
		q.Set("inc_geo_code", "true")
	}

	return c.baseURL + path + "?" + q.Encode(), nil
}

func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}

	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return fmt.Errorf("%w (status %d): %s", ErrTransient, status, msg)
	}

	return fmt.Errorf("%w (status %d): %s", ErrPermanent, status, msg)
}

var _ Provider = (*HTTPClient)(nil)
