package ttlcache

import "time"

// Eviction reasons reported to observers.
const (
	EvictReasonExplicit = "explicit"
	EvictReasonPrefix   = "prefix"
	EvictReasonAll      = "all"
	EvictReasonCapacity = "capacity"
	EvictReasonExpired  = "expired"
)

// Observer receives events at fixed points of the cache lifecycle. Calls are
// synchronous, so implementations must be cheap and must not call back into
// the cache.
type Observer interface {
	CacheHit(key string)
	CacheMiss(key string)
	CacheEvicted(reason string, n int)
	Computed(key string, took time.Duration, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) CacheHit(string)                       {}
func (NopObserver) CacheMiss(string)                      {}
func (NopObserver) CacheEvicted(string, int)              {}
func (NopObserver) Computed(string, time.Duration, error) {}

// Observers fans every event out to each member.
type Observers []Observer

func (os Observers) CacheHit(key string) {
	for _, o := range os {
		o.CacheHit(key)
	}
}

func (os Observers) CacheMiss(key string) {
	for _, o := range os {
		o.CacheMiss(key)
	}
}

func (os Observers) CacheEvicted(reason string, n int) {
	for _, o := range os {
		o.CacheEvicted(reason, n)
	}
}

func (os Observers) Computed(key string, took time.Duration, err error) {
	for _, o := range os {
		o.Computed(key, took, err)
	}
}
