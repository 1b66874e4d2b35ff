// Package radiko is the upstream client: token handshake, premium login,
// station and program feeds, and playlist resolution.
package radiko

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/metrics"
)

// maxResponseBytes bounds upstream response bodies; program documents for a
// full area day stay well below this.
const maxResponseBytes = 8 << 20

// Fixed device identification the upstream expects on auth and playlist
// requests.
const (
	headerApp        = "pc_html5"
	headerAppVersion = "0.0.1"
	headerUser       = "dummy_user"
	headerDevice     = "pc"
)

// Account carries premium credentials. Both fields are required for a login
// attempt.
type Account struct {
	Mail string
	Pass string
}

// Options configures the upstream client behaviour.
type Options struct {
	Endpoints  Endpoints
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	UserAgent  string
	RateLimit  rate.Limit
	RateBurst  int
	Account    *Account
}

const (
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
	defaultRateLimit  = 10
	defaultRateBurst  = 20
)

func normalizeOptions(opts Options) Options {
	if opts.Endpoints == (Endpoints{}) {
		opts.Endpoints = DefaultEndpoints()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = defaultRateBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "radigw"
	}
	return opts
}

// Client talks to the radiko upstream. It owns the auth session: the token,
// the resolved area and the premium flag are mutated only here and exposed
// as snapshots.
type Client struct {
	endpoints  Endpoints
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
	account    *Account
	logger     zerolog.Logger
	rnd        *rand.Rand
	rndMu      sync.Mutex

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	token   string
	areaID  string
	premium bool
}

// New creates an upstream client. The cookie jar carries the premium login
// session across requests.
func New(opts Options) (*Client, error) {
	opts = normalizeOptions(opts)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		endpoints: opts.Endpoints,
		http: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
		},
		limiter:    rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		userAgent:  opts.UserAgent,
		account:    opts.Account,
		logger:     log.WithComponent("radiko"),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
		state:      StateUninitialized,
	}, nil
}

// Endpoints returns the endpoint table in use.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Radiko-App", headerApp)
	req.Header.Set("X-Radiko-App-Version", headerAppVersion)
	req.Header.Set("X-Radiko-User", headerUser)
	req.Header.Set("X-Radiko-Device", headerDevice)
}

// doGet performs a GET with rate limiting, bounded retries and jittered
// backoff. extra headers are applied after the device headers.
func (c *Client) doGet(ctx context.Context, endpoint, rawURL string, extra http.Header) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		c.applyHeaders(req)
		for k, vs := range extra {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			metrics.ObserveUpstreamRequest(endpoint, time.Since(start), true)
			return resp, nil
		}
		metrics.ObserveUpstreamRequest(endpoint, time.Since(start), false)

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			_ = resp.Body.Close()
		}
		c.logger.Debug().
			Str("event", "upstream.retry").
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("upstream request failed")

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.jitteredBackoff(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, endpoint, lastErr)
}

func (c *Client) jitteredBackoff(attempt int) time.Duration {
	backoff := c.backoff << (attempt - 1)
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	c.rndMu.Lock()
	jitter := time.Duration(c.rnd.Int63n(int64(backoff)/2 + 1))
	c.rndMu.Unlock()
	return backoff + jitter
}

// GetXML fetches and decodes an upstream XML document. The decoder is
// strict, entity expansion is disabled and the body is size-bounded.
func (c *Client) GetXML(ctx context.Context, endpoint, rawURL string, v any) error {
	resp, err := c.doGet(ctx, endpoint, rawURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	dec := xml.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.Strict = true
	dec.Entity = make(map[string]string)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUpstream, endpoint, err)
	}
	return nil
}

// getText fetches a small upstream text body, such as a top-level playlist.
func (c *Client) getText(ctx context.Context, endpoint, rawURL string, extra http.Header) (string, error) {
	resp, err := c.doGet(ctx, endpoint, rawURL, extra)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %s: read: %v", ErrUpstream, endpoint, err)
	}
	return string(body), nil
}
