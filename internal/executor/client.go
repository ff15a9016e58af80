// Package executor is the HTTP client for the external test-execution
// service that runs a single query against a data source.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
	"github.com/sells-group/discovery-console/internal/resilience"
)

// Options configures the executor client.
type Options struct {
	BaseURL   string
	UserAgent string
	// Timeout bounds one HTTP round trip. The runner applies its own
	// per-test deadline on top of this.
	Timeout time.Duration
	// RateLimit is requests per second across all sources. Default: 5.
	RateLimit float64
	Burst     int
	// Credentials maps catalog entry id to the token sent for that source.
	Credentials map[string]string
	Breaker     resilience.BreakerConfig
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client implements discovery.Executor over HTTP.
type Client struct {
	baseURL     string
	userAgent   string
	http        *http.Client
	limiter     *AdaptiveLimiter
	breakers    *resilience.SourceBreakers
	credentials map[string]string
}

var _ discovery.Executor = (*Client)(nil)

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, eris.New("executor: base url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RateLimit)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "discovery-console/1.0"
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	creds := make(map[string]string, len(opts.Credentials))
	for id, tok := range opts.Credentials {
		creds[id] = tok
	}

	return &Client{
		baseURL:     base,
		userAgent:   opts.UserAgent,
		http:        client,
		limiter:     NewAdaptiveLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		breakers:    resilience.NewSourceBreakers(opts.Breaker),
		credentials: creds,
	}, nil
}

// testRequest is the body posted to {base}/tests.
type testRequest struct {
	CatalogEntryID   string                 `json:"catalog_entry_id"`
	Parameters       model.QueryParameters  `json:"parameters"`
	AdvancedSettings model.AdvancedSettings `json:"advanced_settings"`
}

// RunTest posts one test to the executor and returns its result. Transport
// failures, 429 and 5xx responses come back as errors; transient ones are
// wrapped in resilience.TransientError and count against the source's
// circuit breaker.
func (c *Client) RunTest(ctx context.Context, entryID string, params model.QueryParameters, settings model.AdvancedSettings) (*model.TestResult, error) {
	if err := c.breakers.Allow(entryID); err != nil {
		return nil, eris.Wrapf(err, "executor: %s", entryID)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "executor: rate limiter wait")
	}

	res, err := c.do(ctx, entryID, params, settings)
	if errors.Is(ctx.Err(), context.Canceled) {
		// A caller cancelling says nothing about the source's health.
		return nil, eris.Wrapf(ctx.Err(), "executor: %s", entryID)
	}
	c.breakers.Record(entryID, err)
	return res, err
}

func (c *Client) do(ctx context.Context, entryID string, params model.QueryParameters, settings model.AdvancedSettings) (*model.TestResult, error) {
	body, err := json.Marshal(testRequest{
		CatalogEntryID:   entryID,
		Parameters:       params,
		AdvancedSettings: settings,
	})
	if err != nil {
		return nil, eris.Wrap(err, "executor: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tests", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "executor: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if tok := c.credentials[entryID]; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "executor: post test for %s", entryID), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.OnRateLimit()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("executor: http %d for %s: %s", resp.StatusCode, entryID, strings.TrimSpace(string(snippet)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out model.TestResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrapf(err, "executor: decode result for %s", entryID)
	}
	if out.CatalogEntryID != "" && out.CatalogEntryID != entryID {
		zap.L().Warn("executor: result for a different entry",
			zap.String("requested", entryID),
			zap.String("returned", out.CatalogEntryID),
		)
		out.CatalogEntryID = entryID
	}

	c.limiter.OnSuccess()
	return &out, nil
}

// BreakerState reports the circuit state for a source.
func (c *Client) BreakerState(entryID string) resilience.CircuitState {
	return c.breakers.State(entryID)
}
