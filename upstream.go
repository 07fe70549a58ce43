package keyrelay

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Upstream is the interface the outbound client must implement.
type Upstream interface {
	// Do issues call using credential and returns the upstream response.
	// A non-nil error means no usable response was received (transport failure, timeout).
	// Non-2xx statuses are returned as responses, not errors.
	Do(ctx context.Context, credential string, call Call) (*Response, error)
}

// Call is an upstream request in the upstream's native dialect.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	Stream bool

	// EstimatedTokens is reported to the Meter only.
	EstimatedTokens int64
}

// Response is the upstream's answer. Body must be closed by the receiver.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// QuotaSignal decides whether a response means the credential's quota is exhausted.
type QuotaSignal func(resp *Response) bool

// StatusQuotaSignal treats any of the given status codes as quota exhaustion.
// With no codes it defaults to 429 Too Many Requests.
func StatusQuotaSignal(codes ...int) QuotaSignal {
	if len(codes) == 0 {
		codes = []int{http.StatusTooManyRequests}
	}
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return func(resp *Response) bool {
		return resp != nil && set[resp.StatusCode]
	}
}
