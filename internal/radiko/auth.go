package radiko

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/metrics"
)

// Member types the CHECK document may report for an area-free account.
var areafreeMemberTypes = map[string]bool{
	"premium":  true,
	"areafree": true,
}

type checkDocument struct {
	Status     string `json:"status"`
	MemberType struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"member_type"`
	Expired  string `json:"expired"`
	UserKey  string `json:"user_key"`
	AreaFree string `json:"areafree"`
}

// Init performs the optional premium login followed by a guaranteed token
// handshake. On a nil error return, Token and AreaID are populated. A login
// failure is reported as ErrLogin but does not prevent the handshake: the
// caller may inspect the error with errors.Is and continue non-premium.
func (c *Client) Init(ctx context.Context) error {
	var loginErr error
	if c.account != nil {
		loginErr = c.login(ctx)
		if loginErr != nil {
			c.logger.Warn().
				Str("event", "auth.login.failed").
				Err(loginErr).
				Msg("premium login failed, continuing without premium")
		}
	}

	c.setState(StateHandshaking)
	if err := c.handshake(ctx); err != nil {
		c.setState(StateFailed)
		return err
	}
	c.setState(StateReady)

	if loginErr != nil {
		return loginErr
	}
	return nil
}

// Token returns a snapshot of the current auth token. It never blocks; an
// empty string means no handshake has succeeded yet.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// AreaID returns the geographic area resolved by the last handshake.
func (c *Client) AreaID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.areaID
}

// PremiumActive reports whether the premium login succeeded and the account
// carries cross-area privileges.
func (c *Client) PremiumActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.premium
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old != s {
		c.logger.Debug().
			Str("event", "auth.state").
			Str(log.FieldOldState, old.String()).
			Str(log.FieldNewState, s.String()).
			Msg("auth state changed")
	}
}

// Refresh forces a new token handshake. Concurrent callers are coalesced:
// at most one handshake is in flight and every waiter observes the same
// resulting token or the same error.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("handshake", func() (any, error) {
		c.setState(StateRefreshing)
		if err := c.handshake(ctx); err != nil {
			c.setState(StateFailed)
			return nil, err
		}
		c.setState(StateReady)
		return nil, nil
	})
	return err
}

// login posts the premium credentials. The upstream answers a 302 on
// success (the session cookie is set either way); any 2xx is also accepted.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("mail", c.account.Mail)
	form.Set("pass", c.account.Pass)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Login, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	// Redirects must not be followed here: the 302 itself is the success
	// signal and its Set-Cookie belongs to the jar.
	transport := c.http.Transport
	client := &http.Client{
		Timeout:   c.http.Timeout,
		Jar:       c.http.Jar,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	ok := resp.StatusCode == http.StatusFound ||
		(resp.StatusCode >= 200 && resp.StatusCode < 300)
	if !ok {
		return fmt.Errorf("%w: status %d", ErrLogin, resp.StatusCode)
	}

	c.checkPremium(ctx)
	return nil
}

// checkPremium queries the member CHECK endpoint and records whether the
// logged-in account is area-free. Failures leave premium unset; the relay
// then behaves as a normal regional client.
func (c *Client) checkPremium(ctx context.Context) {
	resp, err := c.doGet(ctx, "check", c.endpoints.Check, nil)
	if err != nil {
		c.logger.Warn().
			Str("event", "auth.check.failed").
			Err(err).
			Msg("member check failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	var doc checkDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&doc); err != nil {
		c.logger.Warn().
			Str("event", "auth.check.failed").
			Err(err).
			Msg("member check decode failed")
		return
	}

	premium := areafreeMemberTypes[strings.ToLower(doc.MemberType.Type)] || doc.AreaFree == "1"

	c.mu.Lock()
	c.premium = premium
	c.mu.Unlock()

	c.logger.Info().
		Str("event", "auth.check.done").
		Str("member_type", doc.MemberType.Type).
		Bool("premium", premium).
		Msg("member check completed")
}

// handshake runs the two-stage challenge/response. Each attempt is a full
// re-handshake; after maxRetries failed attempts it reports ErrAuth.
func (c *Client) handshake(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		token, areaID, err := c.handshakeOnce(ctx)
		if err == nil {
			c.mu.Lock()
			c.token = token
			c.areaID = areaID
			c.mu.Unlock()

			metrics.IncAuthHandshake(true)
			c.logger.Info().
				Str("event", "auth.handshake.done").
				Str(log.FieldAreaID, areaID).
				Str("token", truncateToken(token)).
				Int("attempt", attempt).
				Msg("handshake completed")
			return nil
		}
		lastErr = err
		metrics.IncAuthHandshake(false)
		c.logger.Warn().
			Str("event", "auth.handshake.retry").
			Int("attempt", attempt).
			Err(err).
			Msg("handshake attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %v", ErrAuth, lastErr)
}

func (c *Client) handshakeOnce(ctx context.Context) (token, areaID string, err error) {
	// Stage 1: the response headers carry the token and the slice of the
	// fixed application key to prove possession of.
	resp, err := c.doGetOnce(ctx, "auth1", c.endpoints.Auth1, nil)
	if err != nil {
		return "", "", fmt.Errorf("auth1: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	token = resp.Header.Get("x-radiko-authtoken")
	offsetStr := resp.Header.Get("x-radiko-keyoffset")
	lengthStr := resp.Header.Get("x-radiko-keylength")
	if token == "" || offsetStr == "" || lengthStr == "" {
		return "", "", errors.New("auth1: response missing token headers")
	}

	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		return "", "", fmt.Errorf("auth1: key offset %q: %w", offsetStr, err)
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil {
		return "", "", fmt.Errorf("auth1: key length %q: %w", lengthStr, err)
	}
	if offset < 0 || length <= 0 || offset+length > len(authKey) {
		return "", "", fmt.Errorf("auth1: key slice [%d:%d) out of range", offset, offset+length)
	}
	partialKey := base64.StdEncoding.EncodeToString([]byte(authKey[offset : offset+length]))

	// Stage 2: echo the token plus the partial key; the CSV body's first
	// field is the resolved area.
	extra := http.Header{}
	extra.Set("X-Radiko-AuthToken", token)
	extra.Set("X-Radiko-Partialkey", partialKey)

	resp2, err := c.doGetOnce(ctx, "auth2", c.endpoints.Auth2, extra)
	if err != nil {
		return "", "", fmt.Errorf("auth2: %w", err)
	}
	defer func() { _ = resp2.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp2.Body, 4096))
	if err != nil {
		return "", "", fmt.Errorf("auth2: read: %w", err)
	}
	areaID = strings.TrimSpace(strings.Split(string(body), ",")[0])
	if areaID == "" {
		return "", "", errors.New("auth2: empty area id")
	}
	return token, areaID, nil
}

// doGetOnce is doGet without the retry loop: the handshake retries as a
// whole, not per stage.
func (c *Client) doGetOnce(ctx context.Context, endpoint, rawURL string, extra http.Header) (*http.Response, error) {
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
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstream, endpoint, resp.StatusCode)
	}
	return resp, nil
}

func truncateToken(tok string) string {
	if len(tok) <= 8 {
		return tok
	}
	return tok[:8] + "…"
}
