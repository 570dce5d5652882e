// Package upstream is the HTTP client shared by every fetcher. It bounds each
// call with a timeout and a rate limit and turns every failure into a FetchError.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/codebyem/IndiaLimaYankee/internal/pkg/redact"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
	maxDetailBytes = 512
	userAgent      = "aviation-dashboard/1.0"
)

// Request describes one GET against a provider.
type Request struct {
	// Source names the provider in errors, metrics and spans.
	Source string
	URL    string
	Query  url.Values
	Header http.Header
}

func (r Request) fullURL() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Client performs bounded, rate limited upstream calls.
type Client struct {
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit installs a token bucket shared by every call of the client.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithHTTPClient replaces the underlying client. Tests use it with httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient returns a Client whose transport is traced.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "upstream " + r.Method + " " + r.URL.Host
				}),
			),
		},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-call bound.
func (c *Client) Timeout() time.Duration { return c.timeout }

// HTTPClient exposes the underlying client for libraries that take one.
func (c *Client) HTTPClient() *http.Client { return c.http }

// begin bounds the call by the client timeout, including any wait for the limiter.
func (c *Client) begin(ctx context.Context, source string) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			cancel()
			return nil, nil, Unavailable(source, fmt.Errorf("rate limit: %w", err))
		}
	}
	return ctx, cancel, nil
}

func (c *Client) do(ctx context.Context, method string, req Request) (*http.Response, error) {
	target, err := req.fullURL()
	if err != nil {
		return nil, Unavailable(req.Source, fmt.Errorf("bad url: %w", err))
	}
	hr, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, Unavailable(req.Source, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if hr.Header.Get("User-Agent") == "" {
		hr.Header.Set("User-Agent", userAgent)
	}
	if method == http.MethodGet && hr.Header.Get("Accept") == "" {
		hr.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		err = redact.Error(err)
		// Prefer the context error so deadlines are recognisable.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Unavailable(req.Source, fmt.Errorf("%w: %v", ctxErr, err))
		}
		return nil, Unavailable(req.Source, err)
	}
	return resp, nil
}

// GetJSON issues a GET and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, req Request, out interface{}) error {
	ctx, cancel, err := c.begin(ctx, req.Source)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Rejected(req.Source, resp.StatusCode, readDetail(resp.Body))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Unavailable(req.Source, fmt.Errorf("%w: %v", ctxErr, err))
		}
		if errors.Is(err, io.EOF) {
			return Malformed(req.Source, errors.New("empty body"))
		}
		return Malformed(req.Source, err)
	}
	return nil
}

// Head checks that rawURL answers 200. Image validation uses it.
func (c *Client) Head(ctx context.Context, source, rawURL string) error {
	ctx, cancel, err := c.begin(ctx, source)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := c.do(ctx, http.MethodHead, Request{Source: source, URL: rawURL})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDetailBytes))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Rejected(source, resp.StatusCode, "HEAD "+redact.URL(rawURL))
	}
	return nil
}

func readDetail(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxDetailBytes))
	return strings.TrimSpace(string(b))
}
