// Package fetch downloads raw page and feed bodies over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultAttempts  = 3
	DefaultUserAgent = "Mozilla/5.0 (compatible; changewatch/1.0; +https://github.com/ppiankov/changewatch)"
)

// maxBodyBytes caps a downloaded body. Larger bodies fail with ErrBodyTooLarge.
var maxBodyBytes int64 = 32 << 20

// ErrBodyTooLarge is returned when a response body exceeds the size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusForbidden
}

// Client downloads URLs with a bounded number of attempts.
type Client struct {
	http      *http.Client
	userAgent string
	attempts  int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent sent on normal attempts.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		attempts:  DefaultAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// waitFunc blocks for a retry backoff delay or until ctx is done.
// Tests replace it to skip the delay.
var waitFunc = wait

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Download returns the body of url. Failed attempts are retried; when the
// final attempt is refused with 403 the request is repeated once with an
// empty User-Agent, since some sites block anything that looks like a bot.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.attempts {
		body, err := c.get(ctx, url, c.userAgent)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrBodyTooLarge) {
			return nil, lastErr
		}
		if attempt == c.attempts-1 {
			if IsForbidden(err) {
				return c.get(ctx, url, "")
			}
			break
		}
		if err := waitFunc(ctx, time.Duration(1<<uint(attempt))*time.Second); err != nil { // 1s, 2s
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	// An explicitly empty User-Agent makes net/http omit the header.
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", url, ErrBodyTooLarge, maxBodyBytes)
	}
	return body, nil
}
