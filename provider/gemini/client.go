package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/keyrelay"
)

const (
	defaultBaseURL = keyrelay.DefaultUpstreamBaseURL
	defaultTimeout = keyrelay.DefaultUpstreamTimeout

	// CredentialHeader carries the upstream API key.
	CredentialHeader = "x-goog-api-key"
)

// Client is the upstream HTTP client for the Gemini API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ keyrelay.Upstream = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds the wait for response headers and then every gap between
// body reads. A stream that keeps sending data may run longer.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a new Gemini client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// headers never forwarded upstream.
var droppedRequestHeaders = []string{
	"Authorization",
	"X-Goog-Api-Key",
	"X-Api-Key",
	"Host",
	"Content-Length",
	"Accept-Encoding",
	"Connection",
	"Transfer-Encoding",
}

// Do sends call with credential. Non-2xx statuses are returned as responses.
// Transport failures wrap keyrelay.ErrUpstream; a timeout or an expired caller
// deadline additionally wraps keyrelay.ErrUpstreamTimeout. The same applies to
// body reads that stall for longer than the timeout.
func (c *Client) Do(ctx context.Context, credential string, call keyrelay.Call) (*keyrelay.Response, error) {
	method := call.Method
	if method == "" {
		method = http.MethodPost
	}

	target := c.baseURL + call.Path
	if len(call.Query) > 0 {
		q := cloneValues(call.Query)
		q.Del("key")
		if enc := q.Encode(); enc != "" {
			target += "?" + enc
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(c.timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, fmt.Errorf("%w: create gemini request: %w", keyrelay.ErrUpstream, err)
	}

	for k, vs := range call.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for _, h := range droppedRequestHeaders {
		httpReq.Header.Del(h)
	}
	if call.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(CredentialHeader, credential)

	resp, err := c.httpClient.Do(httpReq)
	stopped := timer.Stop()
	if err != nil {
		cancel()
		if timedOut.Load() {
			return nil, fmt.Errorf("%w: %w: no response within %s", keyrelay.ErrUpstream, keyrelay.ErrUpstreamTimeout, c.timeout)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w: %w", keyrelay.ErrUpstream, keyrelay.ErrUpstreamTimeout, ctxErr)
			}
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", keyrelay.ErrUpstream, err)
	}
	if !stopped {
		// Timer fired as the headers arrived; the body is already cancelled.
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %w: no response within %s", keyrelay.ErrUpstream, keyrelay.ErrUpstreamTimeout, c.timeout)
	}

	timer.Reset(c.timeout)
	return &keyrelay.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body: &idleBody{
			rc:       resp.Body,
			timeout:  c.timeout,
			timer:    timer,
			timedOut: &timedOut,
			cancel:   cancel,
		},
	}, nil
}

// idleBody cancels the request when no data arrives within timeout and
// releases the request context once closed.
type idleBody struct {
	rc       io.ReadCloser
	timeout  time.Duration
	timer    *time.Timer
	timedOut *atomic.Bool
	cancel   context.CancelFunc
	once     sync.Once
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if b.timedOut.Load() {
		if err != nil && !errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: %w: no data within %s", keyrelay.ErrUpstream, keyrelay.ErrUpstreamTimeout, b.timeout)
		}
		return n, err
	}
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.rc.Close()
	b.once.Do(b.cancel)
	return err
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
