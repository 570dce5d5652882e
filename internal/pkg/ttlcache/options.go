package ttlcache

import "time"

const defaultMaxEntries = 1024

// Option configures a Store before it becomes active.
type Option func(*options)

type options struct {
	now             func() time.Time
	maxEntries      int
	cleanupInterval time.Duration
	staleGrace      time.Duration
	observer        Observer
}

func defaultOptions() options {
	return options{
		now:        time.Now,
		maxEntries: defaultMaxEntries,
		observer:   NopObserver{},
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxEntries bounds the number of stored entries. Least recently used
// entries are dropped first once the bound is reached.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithCleanupInterval starts a janitor that drops entries that can no longer
// be served, even stale. d <= 0 disables it.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = d
	}
}

// WithStaleGrace lets an expired entry be served, marked Stale, for up to d
// after expiry while its recomputation keeps failing.
func WithStaleGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleGrace = d
		}
	}
}

// WithObserver installs an observability hook.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}
