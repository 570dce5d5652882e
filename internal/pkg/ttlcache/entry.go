package ttlcache

import "time"

// Entry is the last successful computation stored for a key. Entries are
// replaced on refresh, never mutated in place.
type Entry[V any] struct {
	Key        string
	Value      V
	ComputedAt time.Time
	TTL        time.Duration
}

// ExpiresAt is the instant after which the entry is no longer fresh.
func (e *Entry[V]) ExpiresAt() time.Time {
	return e.ComputedAt.Add(e.TTL)
}

// Fresh reports whether now < ComputedAt + TTL.
func (e *Entry[V]) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt())
}

// servable reports whether the entry may still be returned as a stale fallback.
func (e *Entry[V]) servable(now time.Time, grace time.Duration) bool {
	return now.Before(e.ExpiresAt().Add(grace))
}

// Result is what a lookup hands back to callers.
type Result[V any] struct {
	Value      V
	ComputedAt time.Time
	ExpiresAt  time.Time
	// Hit is true when the value came from a fresh entry without computing.
	Hit bool
	// Shared is true when the outcome of one computation went to more than one caller.
	Shared bool
	// Stale is true when the computation failed and a previous success was served instead.
	Stale bool
}

func (e *Entry[V]) result() Result[V] {
	return Result[V]{
		Value:      e.Value,
		ComputedAt: e.ComputedAt,
		ExpiresAt:  e.ExpiresAt(),
	}
}

// EntryInfo is a value-free view of an entry, used for diagnostics.
type EntryInfo struct {
	Key        string    `json:"key"`
	ComputedAt time.Time `json:"computed_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Fresh      bool      `json:"fresh"`
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Computes  uint64 `json:"computes"`
	Failures  uint64 `json:"failures"`
	StaleHits uint64 `json:"stale_hits"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}
