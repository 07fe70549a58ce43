package keyrelay_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kr "github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/usage"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	// Noon local time keeps ±hours adjustments inside the same calendar day.
	return &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Date() string {
	return c.Now().Format("2006-01-02")
}

func newPool(t *testing.T, creds ...string) *kr.KeyPool {
	t.Helper()
	p, err := kr.NewKeyPool(creds)
	require.NoError(t, err)
	return p
}

func newUsage(t *testing.T, pool *kr.KeyPool, clock *fakeClock) (*kr.UsageStore, *usage.MemoryStore) {
	t.Helper()
	store := usage.NewMemoryStore()
	return kr.NewUsageStore(pool, store, kr.WithClock(clock.Now)), store
}

// recordingMeter captures events for assertions.
type recordingMeter struct {
	mu      sync.Mutex
	routes  []kr.RouteEvent
	results []kr.ResultEvent
	streams []kr.StreamEvent
}

func (m *recordingMeter) OnRoute(e kr.RouteEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, e)
}

func (m *recordingMeter) OnResult(e kr.ResultEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, e)
}

func (m *recordingMeter) OnStream(e kr.StreamEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, e)
}
