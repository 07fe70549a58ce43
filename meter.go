package keyrelay

import "time"

// Meter observes dispatch events for monitoring/logging.
type Meter interface {
	// OnRoute is called for every candidate the dispatcher looks at.
	OnRoute(event RouteEvent)

	// OnResult is called when an upstream call completes or fails.
	OnResult(event ResultEvent)

	// OnStream is called when a translated stream is closed.
	OnStream(event StreamEvent)
}

// RouteEvent describes a credential selection.
type RouteEvent struct {
	Credential  string // masked
	AttemptNum  int
	Skipped     bool // already exhausted today, no call made
	Path        string
	Stream      bool
	EstimatedIn int64
}

// ResultEvent describes the outcome of an upstream call.
type ResultEvent struct {
	Credential string // masked
	AttemptNum int
	StatusCode int
	Quota      bool
	Success    bool
	Duration   time.Duration
	Error      error
}

// StreamEvent describes a finished client-facing stream.
type StreamEvent struct {
	Model    string
	Chunks   int
	Duration time.Duration
	Error    error // nil when the stream ended cleanly
}
