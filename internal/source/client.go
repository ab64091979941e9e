// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

/*
client.go - Upstream data API client

Client issues the authenticated data query for one equipment reference over
a time window and decodes the tabular response into long-format readings.

Request:

	POST {root_url}{api_url}{dataset}
	Authorization: Bearer <token>
	{"from":"2024-01-10T00:00:00.000Z","to":"2024-01-11T00:00:00.000Z","selection":["EQ-1"]}

Response:

	{"tables":[{"columns":[{"reference":"Timestamp"},...],"rows":[[...],...]}]}

Resilience:
  - Request timeout from source.request_timeout
  - Client-side rate limiting (source.rate_limit / source.rate_burst)
  - HTTP 429 handling with Retry-After and exponential backoff
  - Circuit breaker (see circuit_breaker.go)
*/

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/metrics"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/timeseries"
)

// WindowFormat is the timestamp layout of the query window. The minute is
// the finest resolution the upstream accepts.
const WindowFormat = "2006-01-02T15:04:00.000Z"

const maxErrorBodySize = 64 * 1024 // 64KB

// ErrRateLimited is returned when the upstream keeps answering 429.
var ErrRateLimited = errors.New("rate limit exceeded")

// FetchError reports a failed data query. It is fatal to the sync of the
// reference it names.
type FetchError struct {
	Reference  string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.Reference, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Reference, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client queries the upstream data API.
type Client struct {
	endpoint       string
	columns        config.SourceColumns
	zone           timeseries.ZonePolicy
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int           // Maximum retries for rate limiting
	retryBaseDelay time.Duration // Base delay for exponential backoff
}

// NewClient builds a client for the dataset named in cfg. Timestamps in
// responses are normalised with zone.
func NewClient(cfg *config.SourceConfig, zone timeseries.ZonePolicy) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return &Client{
		endpoint:       cfg.RootURL + cfg.APIURL + cfg.Dataset,
		columns:        cfg.Columns,
		zone:           zone,
		client:         &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: baseDelay,
	}
}

type queryRequest struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Selection []string `json:"selection"`
}

// Fetch returns the readings of reference between start and end. An empty
// upstream result is an empty table, not an error.
func (c *Client) Fetch(ctx context.Context, reference string, start, end time.Time, token string) (*models.LongTable, error) {
	fail := func(status int, err error) (*models.LongTable, error) {
		return nil, &FetchError{Reference: reference, StatusCode: status, Err: err}
	}

	body, err := json.Marshal(queryRequest{
		From:      start.Format(WindowFormat),
		To:        end.Format(WindowFormat),
		Selection: []string{reference},
	})
	if err != nil {
		return fail(0, fmt.Errorf("encode query: %w", err))
	}

	logging.Ctx(ctx).Debug().
		Str("from", start.Format(WindowFormat)).
		Str("to", end.Format(WindowFormat)).
		Msg("Querying data API")

	begin := time.Now()
	resp, err := c.doRequestWithRateLimit(ctx, body, token)
	if err != nil {
		metrics.RecordUpstreamRequest("data", 0, time.Since(begin))
		return fail(0, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest("data", resp.StatusCode, time.Since(begin))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", readBodyForError(resp.Body)))
	}

	var payload queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	table, err := c.decodeTables(payload)
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	return table, nil
}

// doRequestWithRateLimit performs the query with automatic rate limit
// handling. HTTP 429 responses are retried with exponential backoff
// (base, 2*base, 4*base, ...) unless Retry-After names a delay. The context
// cancels both the request and the backoff waits.
func (c *Client) doRequestWithRateLimit(ctx context.Context, body []byte, token string) (*http.Response, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()
		if attempt == c.maxRetries {
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		logging.Ctx(ctx).Warn().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Data API rate limited, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d retries (HTTP 429)", ErrRateLimited, c.maxRetries)
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize+1))
	if err != nil {
		return []byte(fmt.Sprintf("(failed to read body: %v)", err))
	}
	if len(body) > maxErrorBodySize {
		return append(body[:maxErrorBodySize], []byte("... (truncated)")...)
	}
	return body
}
