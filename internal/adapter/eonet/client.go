// Package eonet fetches natural events from the NASA EONET v3 API.
package eonet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/config"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

const maxErrorBody = 512

// APIError represents a non-2xx response from the events endpoint.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eonet API error: HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client implements domain.EventFetcher against the EONET events endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// NewClient creates an EONET client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    cfg.EONETBaseURL,
		httpClient: &http.Client{Timeout: cfg.EONETTimeout},
		maxRetries: cfg.EONETMaxRetries,
		backoff:    cfg.EONETBackoff,
		maxBackoff: cfg.EONETMaxBackoff,
		logger:     logger,
		metrics:    metrics,
		sleep:      sleepContext,
		jitter:     rand.Int64N,
	}
}

// FetchEvents issues one GET for the query's date range and decodes the
// response. Transient failures are retried with exponential backoff.
func (c *Client) FetchEvents(ctx context.Context, q domain.Query) (domain.EventsDocument, error) {
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := c.get(ctx, "/events", queryParams(q))
	if err != nil {
		return domain.EventsDocument{}, fmt.Errorf("fetch events %s: %w", q.Range, err)
	}

	var doc domain.EventsDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.EventsDocument{}, fmt.Errorf("decode events response: %w", err)
	}
	doc.Raw = body

	c.metrics.EventsFetched.Add(float64(len(doc.Events)))
	c.logger.Info("events fetched",
		"start", q.Range.StartString(),
		"end", q.Range.EndString(),
		"events", len(doc.Events),
		"duration", time.Since(start),
	)
	return doc, nil
}

func queryParams(q domain.Query) url.Values {
	params := url.Values{
		"start": {q.Range.StartString()},
		"end":   {q.Range.EndString()},
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params
}

// get performs a GET with retries on 429, 5xx and transport errors.
// Other 4xx responses fail immediately.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffDelay(attempt, lastErr)
			c.metrics.FetchRetries.Inc()
			c.logger.Warn("retrying eonet request",
				"attempt", attempt,
				"wait", wait,
				"error", lastErr,
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		body, err := c.do(ctx, fullURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("events request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			retryAfter: resp.Header.Get("Retry-After"),
		}
	}
	return body, nil
}

// backoffDelay returns the wait before a retry attempt. A Retry-After header
// on a 429 wins; otherwise the delay is drawn uniformly from zero up to the
// exponential ceiling (full jitter).
func (c *Client) backoffDelay(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		if d, ok := parseRetryAfter(apiErr.retryAfter); ok {
			return d
		}
	}

	ceiling := c.backoff << (attempt - 1)
	if ceiling <= 0 || ceiling > c.maxBackoff {
		ceiling = c.maxBackoff
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(c.jitter(int64(ceiling) + 1))
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if !sharedretry.SleepWithContext(ctx, d) {
		return ctx.Err()
	}
	return nil
}
