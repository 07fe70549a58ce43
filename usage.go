package keyrelay

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// dateLayout is the ISO calendar date used for the tracking day.
const dateLayout = "2006-01-02"

// Snapshot is the persisted form of a day's usage.
type Snapshot struct {
	Date      string           `json:"date"`
	Counts    map[string]int64 `json:"counts"`
	Exhausted []string         `json:"exhausted_keys"`
}

// SnapshotStore persists usage snapshots.
type SnapshotStore interface {
	// Load returns the last saved snapshot. Returns ErrSnapshotNotFound if none exists.
	Load() (Snapshot, error)

	// Save replaces the stored snapshot.
	Save(snap Snapshot) error
}

// UsageStore owns the per-credential usage counters and the exhausted set for
// the current tracking day. Every mutation is written through to the SnapshotStore.
type UsageStore struct {
	mu        sync.Mutex
	pool      *KeyPool
	store     SnapshotStore
	now       func() time.Time
	logger    *slog.Logger
	date      string
	counts    map[string]int64
	exhausted map[string]struct{}
}

// UsageOption configures a UsageStore.
type UsageOption func(*UsageStore)

// WithClock sets the time source used for the daily rollover.
func WithClock(now func() time.Time) UsageOption {
	return func(u *UsageStore) { u.now = now }
}

// WithUsageLogger sets the logger for rollover and persistence events.
func WithUsageLogger(l *slog.Logger) UsageOption {
	return func(u *UsageStore) { u.logger = l }
}

// NewUsageStore creates a UsageStore for pool and restores today's state from store.
// A missing, unreadable, or stale snapshot starts a fresh day.
func NewUsageStore(pool *KeyPool, store SnapshotStore, opts ...UsageOption) *UsageStore {
	u := &UsageStore{
		pool:      pool,
		store:     store,
		now:       time.Now,
		logger:    slog.Default(),
		counts:    make(map[string]int64),
		exhausted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}

	u.date = u.today()
	u.restore()
	return u
}

func (u *UsageStore) today() string {
	return TrackingDate(u.now())
}

// TrackingDate returns the local calendar date that t is counted under.
func TrackingDate(t time.Time) string {
	return t.Local().Format(dateLayout)
}

func (u *UsageStore) restore() {
	snap, err := u.store.Load()
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		u.logger.Info("usage snapshot not found, starting fresh", "date", u.date)
		return
	case err != nil:
		u.logger.Error("usage snapshot unreadable, starting fresh", "date", u.date, "error", err)
		return
	}

	if snap.Date != u.date {
		u.logger.Info("usage snapshot is from another day, starting fresh",
			"snapshot_date", snap.Date, "date", u.date)
		return
	}

	for cred, n := range snap.Counts {
		if !u.pool.Contains(cred) {
			u.logger.Warn("dropping usage for unknown credential", "credential", MaskCredential(cred))
			continue
		}
		if n < 0 {
			n = 0
		}
		u.counts[cred] = n
	}
	for _, cred := range snap.Exhausted {
		if !u.pool.Contains(cred) {
			continue
		}
		u.exhausted[cred] = struct{}{}
	}

	u.logger.Info("usage snapshot restored",
		"date", u.date, "credentials", len(u.counts), "exhausted", len(u.exhausted))
}

// EnsureCurrentDay clears counters and the exhausted set when the calendar date
// has moved past the tracking date. Returns true if it cleared state.
func (u *UsageStore) EnsureCurrentDay() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rolloverLocked()
}

// rolloverLocked must be called with mu held.
func (u *UsageStore) rolloverLocked() bool {
	today := u.today()
	// ISO dates order lexically; a clock stepping backwards never rewinds the day.
	if today <= u.date {
		return false
	}

	u.logger.Info("tracking day changed, resetting usage", "from", u.date, "to", today)
	u.date = today
	u.counts = make(map[string]int64)
	u.exhausted = make(map[string]struct{})
	u.persistLocked()
	return true
}

// RecordUse increments the usage count for credential.
func (u *UsageStore) RecordUse(credential string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rolloverLocked()
	if !u.pool.Contains(credential) {
		u.logger.Warn("ignoring usage for unknown credential", "credential", MaskCredential(credential))
		return
	}

	u.counts[credential]++
	u.persistLocked()
}

// MarkExhausted adds credential to today's exhausted set.
func (u *UsageStore) MarkExhausted(credential string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rolloverLocked()
	if !u.pool.Contains(credential) {
		u.logger.Warn("ignoring exhaustion for unknown credential", "credential", MaskCredential(credential))
		return
	}

	u.exhausted[credential] = struct{}{}
	u.persistLocked()
}

// IsExhausted reports whether credential hit its quota today.
func (u *UsageStore) IsExhausted(credential string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rolloverLocked()
	_, ok := u.exhausted[credential]
	return ok
}

// AllExhausted reports whether every pool credential hit its quota today.
func (u *UsageStore) AllExhausted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rolloverLocked()
	for _, c := range u.pool.credentials {
		if _, ok := u.exhausted[c]; !ok {
			return false
		}
	}
	return true
}

// Count returns today's usage count for credential.
func (u *UsageStore) Count(credential string) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rolloverLocked()
	return u.counts[credential]
}

// Snapshot returns a copy of today's state.
func (u *UsageStore) Snapshot() Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.rolloverLocked()
	return u.snapshotLocked()
}

func (u *UsageStore) snapshotLocked() Snapshot {
	counts := make(map[string]int64, len(u.counts))
	for k, v := range u.counts {
		counts[k] = v
	}
	exhausted := make([]string, 0, len(u.exhausted))
	for k := range u.exhausted {
		exhausted = append(exhausted, k)
	}
	sort.Strings(exhausted)

	return Snapshot{
		Date:      u.date,
		Counts:    counts,
		Exhausted: exhausted,
	}
}

// persistLocked writes the current state. Failures are logged; in-memory
// state stays authoritative until the next successful write.
func (u *UsageStore) persistLocked() {
	if err := u.store.Save(u.snapshotLocked()); err != nil {
		u.logger.Error("failed to persist usage snapshot", "date", u.date, "error", err)
	}
}
