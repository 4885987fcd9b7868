package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/anatolykoptev/go_tube/internal/store"
	"golang.org/x/time/rate"
)

const (
	// Quota cost schedule of the YouTube Data API: search.list costs 100
	// units, every other read endpoint used here costs 1.
	searchCost int64 = 100
	readCost   int64 = 1

	maxBodyBytes = 8 * 1024 * 1024
	maxErrBytes  = 4096

	defaultTransferTimeout = 30 * time.Second
)

// URLBuilder returns the request URL for an API key, or nil when it cannot
// build one.
type URLBuilder func(key string) *url.URL

// Client performs GETs against the YouTube Data API, rotating through a pool
// of API keys when one runs out of quota.
type Client struct {
	mu   sync.RWMutex
	keys []string

	settings        *store.Settings
	usage           *Usage
	http            *http.Client
	limiter         *rate.Limiter
	transferTimeout time.Duration
	userAgent       string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit throttles outbound requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTransferTimeout bounds a whole request including the body transfer.
func WithTransferTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.transferTimeout = d
		}
	}
}

// NewClient creates a Client over keys. The rotation index lives in
// settings; quota bookkeeping goes through usage.
func NewClient(keys []string, settings *store.Settings, usage *Usage, opts ...ClientOption) *Client {
	c := &Client{
		keys:            keys,
		settings:        settings,
		usage:           usage,
		http:            NewHTTPClient(10 * time.Second),
		limiter:         rate.NewLimiter(rate.Inf, 0),
		transferTimeout: defaultTransferTimeout,
		userAgent:       UserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ParseKeys splits a comma-delimited key list, trimming blanks.
func ParseKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Keys returns a copy of the pool in rotation order.
func (c *Client) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

// SetKeys replaces the pool.
func (c *Client) SetKeys(keys []string) {
	c.mu.Lock()
	c.keys = append([]string(nil), keys...)
	c.mu.Unlock()
}

// Usage returns the quota ledger the client accounts against.
func (c *Client) Usage() *Usage { return c.usage }

// FetchWithRotation GETs the URL built for the first eligible key, starting
// at the persisted rotation index. A 403 marks the key exhausted and moves on
// to the next one; any other failure is returned as is. At most one pass over
// the pool is made.
func (c *Client) FetchWithRotation(ctx context.Context, build URLBuilder) ([]byte, error) {
	keys := c.Keys()
	n := len(keys)
	if n == 0 {
		return nil, ErrNoCredentials
	}

	if err := c.usage.Rollover(ctx); err != nil {
		slog.Warn("rotate: usage rollover failed", slog.Any("error", err))
	}

	current, err := c.settings.CurrentKeyIndex(ctx)
	if err != nil {
		slog.Warn("rotate: read key index failed", slog.Any("error", err))
		current = 0
	}
	if current < 0 || current >= n {
		current = 0
	}

	var lastErr error
	badURL := false
	for i := 0; i < n; i++ {
		idx := (current + i) % n
		key := keys[idx]

		if !c.usage.Eligible(ctx, key) {
			slog.Debug("rotate: key exhausted, skipping", slog.String("key", MaskKey(key)))
			continue
		}

		u := build(key)
		if u == nil {
			badURL = true
			continue
		}

		metrics.APIRequests.Add(1)
		body, err := c.get(ctx, u)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusForbidden {
				metrics.QuotaErrors.Add(1)
				slog.Warn("rotate: key rejected, rotating",
					slog.String("key", MaskKey(key)),
					slog.String("reason", httpErr.Reason))
				if mErr := c.usage.MarkExhausted(ctx, key); mErr != nil {
					slog.Warn("rotate: mark exhausted failed", slog.Any("error", mErr))
				}
				lastErr = err
				continue
			}
			metrics.APIErrors.Add(1)
			return nil, err
		}

		if idx != current {
			metrics.Rotations.Add(1)
			if err := c.settings.SetCurrentKeyIndex(ctx, idx); err != nil {
				slog.Warn("rotate: persist key index failed", slog.Any("error", err))
			}
		}
		if err := c.usage.Increment(ctx, key, requestCost(u)); err != nil {
			slog.Warn("rotate: usage increment failed", slog.Any("error", err))
		}
		if err := c.usage.AddBytes(ctx, int64(len(body))); err != nil {
			slog.Warn("rotate: byte accounting failed", slog.Any("error", err))
		}
		metrics.BytesReceived.Add(int64(len(body)))
		return body, nil
	}

	switch {
	case lastErr != nil:
		return nil, lastErr
	case badURL:
		return nil, ErrInvalidURL
	default:
		return nil, ErrKeysExhausted
	}
}

// get issues one GET. Cancellation of ctx is returned as ctx.Err(); deadline
// and connectivity failures become TransportError.
func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	if err := c.limiter.Wait(reqCtx); err != nil {
		return nil, transportErr(ctx, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr(ctx, redactURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBytes))
		return nil, newHTTPError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportErr(ctx, err)
	}
	return body, nil
}

func transportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return ctxErr
	}
	return &TransportError{Err: err}
}

// redactURLError strips the request URL, which carries the API key, from
// net/http errors.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// requestCost estimates the quota units a request consumes.
func requestCost(u *url.URL) int64 {
	if path.Base(u.Path) == "search" {
		return searchCost
	}
	return readCost
}
