// Package tmdb is a minimal client for the TMDB v3 read-only API. It
// owns the three per-call concerns every fetch shares: the token-bucket
// rate limit, outcome classification, and bounded retry with backoff.
package tmdb

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/cinefetch/progress"
)

// DefaultHost is the TMDB v3 API root.
const DefaultHost = "https://api.themoviedb.org/3"

// Options configures a Client. Zero fields fall back to the defaults
// the ingestion jobs have always run with.
type Options struct {
	Host        string
	Bearer      string
	UserAgent   string
	RPS         int           // shared token bucket, acquisitions per second
	Timeout     time.Duration // per-request socket timeout
	MaxRetries  int           // attempt budget per call, transient failures only
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (o *Options) withDefaults() {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.UserAgent == "" {
		o.UserAgent = "cinefetch/etl"
	}
	if o.RPS <= 0 {
		o.RPS = 50
	}
	if o.Timeout <= 0 {
		o.Timeout = 45 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 6
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 200 * time.Millisecond
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 60 * time.Second
	}
}

// Client issues rate-limited GETs against the API. Safe for concurrent
// use; all workers of a run share one Client so the rate limit bounds
// the aggregate call rate.
type Client struct {
	host        string
	bearer      string
	userAgent   string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	errs        *progress.ErrorCounter
}

// NewClient builds a client counting failures into errs.
func NewClient(opts Options, errs *progress.ErrorCounter) *Client {
	opts.withDefaults()
	return &Client{
		host:        opts.Host,
		bearer:      opts.Bearer,
		userAgent:   opts.UserAgent,
		http:        &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RPS), opts.RPS),
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		errs:        errs,
	}
}

// Get fetches one endpoint and returns the raw response body.
//
// Outcomes: 404 counted and ErrNotFound; 401 *AuthError (fatal for the
// run); 429 and network errors retried with backoff up to the budget,
// honoring a numeric Retry-After, then counted and ErrRetriesExhausted;
// any other status counted and *StatusError.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.host + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	backoff := c.backoffBase
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, retryAfter, err := c.do(ctx, u)
		switch {
		case err == nil && status < 300:
			return body, nil

		case status == http.StatusNotFound:
			c.errs.Inc("404")
			return nil, ErrNotFound

		case status == http.StatusUnauthorized:
			return nil, &AuthError{Status: status}

		case status == http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				c.errs.Inc("HTTP_429_exceeded_retries")
				return nil, ErrRetriesExhausted
			}
			wait := backoff
			if retryAfter > 0 {
				wait = retryAfter
			}
			if err := c.sleep(ctx, min(wait, c.backoffCap)); err != nil {
				return nil, err
			}
			backoff = c.nextBackoff(backoff)

		case status != 0:
			c.errs.Inc("HTTP_" + strconv.Itoa(status))
			return nil, &StatusError{Status: status}

		default: // network error or timeout
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= c.maxRetries {
				c.errs.Inc("network_error")
				return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			}
			if err := c.sleep(ctx, min(backoff, c.backoffCap)); err != nil {
				return nil, err
			}
			backoff = c.nextBackoff(backoff)
		}
	}
}

// do performs a single attempt. retryAfter is zero unless the server
// sent a parseable Retry-After value.
func (c *Client) do(ctx context.Context, u string) (body []byte, status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	if status >= 300 {
		io.Copy(io.Discard, resp.Body)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, perr := strconv.ParseFloat(ra, 64); perr == nil && secs > 0 {
				retryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, status, retryAfter, fmt.Errorf("http status %d", status)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, err
	}
	return body, status, 0, nil
}

// nextBackoff grows the delay by a jittered factor in [1.5, 2.0).
func (c *Client) nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * (1.5 + rand.Float64()*0.5))
	return min(next, c.backoffCap)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
