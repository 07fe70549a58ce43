package mock

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/keyrelay"
)

// DefaultBody is the body returned by a successful mock call.
const DefaultBody = `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello from mock upstream"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":20,"totalTokenCount":30}}`

// Upstream is a mock upstream for testing.
type Upstream struct {
	latency      time.Duration
	staticErr    error
	body         string
	statuses     map[string]int
	responseFunc func(credential string, call keyrelay.Call) (*keyrelay.Response, error)

	callCount atomic.Int64
	mu        sync.Mutex
	calls     []Recorded
}

// Recorded is a call seen by the mock.
type Recorded struct {
	Credential string
	Call       keyrelay.Call
}

var _ keyrelay.Upstream = (*Upstream)(nil)

// Option configures a mock Upstream.
type Option func(*Upstream)

// New creates a mock upstream with the given options.
func New(opts ...Option) *Upstream {
	u := &Upstream{
		body:     DefaultBody,
		statuses: make(map[string]int),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(u *Upstream) { u.latency = d }
}

// WithError makes the upstream always return this error.
func WithError(err error) Option {
	return func(u *Upstream) { u.staticErr = err }
}

// WithStatus makes calls with credential answer with status.
func WithStatus(credential string, status int) Option {
	return func(u *Upstream) { u.statuses[credential] = status }
}

// WithBody sets the body of non-custom responses.
func WithBody(body string) Option {
	return func(u *Upstream) { u.body = body }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(credential string, call keyrelay.Call) (*keyrelay.Response, error)) Option {
	return func(u *Upstream) { u.responseFunc = fn }
}

func (u *Upstream) Do(ctx context.Context, credential string, call keyrelay.Call) (*keyrelay.Response, error) {
	u.callCount.Add(1)
	u.mu.Lock()
	u.calls = append(u.calls, Recorded{Credential: credential, Call: call})
	u.mu.Unlock()

	if u.latency > 0 {
		select {
		case <-time.After(u.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if u.staticErr != nil {
		return nil, u.staticErr
	}

	if u.responseFunc != nil {
		return u.responseFunc(credential, call)
	}

	status, ok := u.statuses[credential]
	if !ok {
		status = http.StatusOK
	}
	return NewResponse(status, u.body), nil
}

// CallCount returns the number of calls made to the upstream.
func (u *Upstream) CallCount() int64 { return u.callCount.Load() }

// Calls returns every recorded call in order.
func (u *Upstream) Calls() []Recorded {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Recorded(nil), u.calls...)
}

// Credentials returns the credential used by each call in order.
func (u *Upstream) Credentials() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.calls))
	for i, c := range u.calls {
		out[i] = c.Credential
	}
	return out
}

// NewResponse builds a response with a JSON body.
func NewResponse(status int, body string) *keyrelay.Response {
	return &keyrelay.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// NewStreamResponse builds a 200 response whose body is the given SSE events.
func NewStreamResponse(events ...string) *keyrelay.Response {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString("data: ")
		sb.WriteString(e)
		sb.WriteString("\r\n\r\n")
	}
	return &keyrelay.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/event-stream"}},
		Body:       io.NopCloser(strings.NewReader(sb.String())),
	}
}
