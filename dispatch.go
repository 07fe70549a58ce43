package keyrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// drainLimit caps how much of a discarded response body is read so the
// connection can be reused.
const drainLimit = 64 << 10

// Dispatcher sends upstream calls through the key pool, retrying on quota exhaustion.
type Dispatcher struct {
	mu       sync.Mutex // guards pool cursor + exhaustion check
	pool     *KeyPool
	usage    *UsageStore
	upstream Upstream
	isQuota  QuotaSignal
	meter    Meter
	health   *HealthTracker
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(d *Dispatcher) { d.meter = m }
}

// WithQuotaSignal sets the predicate that recognizes quota exhaustion.
func WithQuotaSignal(q QuotaSignal) Option {
	return func(d *Dispatcher) { d.isQuota = q }
}

// WithHealthTracker sets the health tracker.
func WithHealthTracker(h *HealthTracker) Option {
	return func(d *Dispatcher) { d.health = h }
}

// Result is a completed dispatch.
type Result struct {
	Response   *Response
	Credential string // masked
	Attempts   int
}

// NewDispatcher creates a Dispatcher.
// Unless overridden, quota exhaustion is HTTP 429 and events go to a no-op meter.
func NewDispatcher(pool *KeyPool, usage *UsageStore, upstream Upstream, opts ...Option) (*Dispatcher, error) {
	if pool == nil || usage == nil {
		return nil, fmt.Errorf("%w: pool and usage store are required", ErrConfiguration)
	}
	if upstream == nil {
		return nil, fmt.Errorf("%w: upstream is required", ErrConfiguration)
	}

	d := &Dispatcher{
		pool:     pool,
		usage:    usage,
		upstream: upstream,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.isQuota == nil {
		d.isQuota = StatusQuotaSignal()
	}
	if d.meter == nil {
		d.meter = noopMeter{}
	}
	if d.health == nil {
		d.health = NewHealthTracker()
	}

	return d, nil
}

// Pool returns the dispatcher's key pool.
func (d *Dispatcher) Pool() *KeyPool { return d.pool }

// Usage returns the dispatcher's usage store.
func (d *Dispatcher) Usage() *UsageStore { return d.usage }

// Health returns the dispatcher's health tracker.
func (d *Dispatcher) Health() *HealthTracker { return d.health }

// Dispatch issues call with the next usable credential.
//
// Credentials already exhausted today are skipped without a network call. A
// quota signal marks the credential exhausted and moves on to the next one. Any
// other outcome, success or failure, is returned immediately. When every
// candidate is exhausted the error wraps ErrServiceUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (*Result, error) {
	d.usage.EnsureCurrentDay()

	attempts := 0
	for i := 0; i < d.pool.Size(); i++ {
		candidate, skip := d.nextCandidate()
		masked := MaskCredential(candidate)

		if skip {
			d.meter.OnRoute(RouteEvent{
				Credential: masked,
				AttemptNum: attempts,
				Skipped:    true,
				Path:       call.Path,
				Stream:     call.Stream,
			})
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, &DispatchError{Err: err, Attempts: attempts}
		}

		attempts++
		d.meter.OnRoute(RouteEvent{
			Credential:  masked,
			AttemptNum:  attempts,
			Path:        call.Path,
			Stream:      call.Stream,
			EstimatedIn: call.EstimatedTokens,
		})

		start := time.Now()
		resp, err := d.upstream.Do(ctx, candidate, call)
		duration := time.Since(start)

		if err != nil {
			d.usage.RecordUse(candidate)
			if !errors.Is(err, context.Canceled) {
				d.health.RecordFailure(candidate)
			}
			if !errors.Is(err, ErrUpstream) && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%w: %w", ErrUpstream, err)
			}
			d.meter.OnResult(ResultEvent{
				Credential: masked,
				AttemptNum: attempts,
				Duration:   duration,
				Error:      err,
			})
			return nil, &DispatchError{Err: err, Credential: masked, Attempts: attempts}
		}

		if d.isQuota(resp) {
			drain(resp)
			d.usage.MarkExhausted(candidate)
			d.usage.RecordUse(candidate)
			d.meter.OnResult(ResultEvent{
				Credential: masked,
				AttemptNum: attempts,
				StatusCode: resp.StatusCode,
				Quota:      true,
				Duration:   duration,
				Error:      ErrQuotaExhausted,
			})
			continue
		}

		d.usage.RecordUse(candidate)
		if resp.StatusCode >= 500 {
			d.health.RecordFailure(candidate)
		} else {
			d.health.RecordSuccess(candidate)
		}
		d.meter.OnResult(ResultEvent{
			Credential: masked,
			AttemptNum: attempts,
			StatusCode: resp.StatusCode,
			Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
			Duration:   duration,
		})

		return &Result{
			Response:   resp,
			Credential: masked,
			Attempts:   attempts,
		}, nil
	}

	return nil, &DispatchError{Err: ErrServiceUnavailable, Attempts: attempts}
}

// nextCandidate advances the rotation and checks exhaustion as one step so
// concurrent dispatches never pick the same position twice.
func (d *Dispatcher) nextCandidate() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.pool.Next()
	return c, d.usage.IsExhausted(c)
}

func drain(resp *Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnRoute(RouteEvent)   {}
func (noopMeter) OnResult(ResultEvent) {}
func (noopMeter) OnStream(StreamEvent) {}
