package ttlcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type recordingObserver struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions map[string]int
	computed  []error
}

func (r *recordingObserver) CacheHit(string) {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *recordingObserver) CacheMiss(string) {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}

func (r *recordingObserver) CacheEvicted(reason string, n int) {
	r.mu.Lock()
	if r.evictions == nil {
		r.evictions = map[string]int{}
	}
	r.evictions[reason] += n
	r.mu.Unlock()
}

func (r *recordingObserver) Computed(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	r.computed = append(r.computed, err)
	r.mu.Unlock()
}

func counting(calls *atomic.Int32, value string) ComputeFunc[string] {
	return func(context.Context) (string, error) {
		n := calls.Add(1)
		return fmt.Sprintf("%s-%d", value, n), nil
	}
}

func TestGetOrCompute_TTLTimeline(t *testing.T) {
	clock := newFakeClock()
	c := New[string](WithClock(clock.Now))
	ctx := context.Background()
	var calls atomic.Int32
	ttl := 300 * time.Second

	r, err := c.GetOrCompute(ctx, "metar|EDLP", ttl, counting(&calls, "payload"))
	require.NoError(t, err)
	assert.Equal(t, "payload-1", r.Value)
	assert.False(t, r.Hit)

	clock.Advance(100 * time.Second)
	r, err = c.GetOrCompute(ctx, "metar|EDLP", ttl, counting(&calls, "payload"))
	require.NoError(t, err)
	assert.Equal(t, "payload-1", r.Value)
	assert.True(t, r.Hit)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(201 * time.Second)
	r, err = c.GetOrCompute(ctx, "metar|EDLP", ttl, counting(&calls, "payload"))
	require.NoError(t, err)
	assert.Equal(t, "payload-2", r.Value)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_ExpiryBoundaryIsExclusive(t *testing.T) {
	clock := newFakeClock()
	c := New[string](WithClock(clock.Now))
	var calls atomic.Int32

	_, err := c.GetOrCompute(context.Background(), "k", time.Minute, counting(&calls, "v"))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = c.GetOrCompute(context.Background(), "k", time.Minute, counting(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "entry must not be fresh at computedAt+ttl")
}

func TestGetOrCompute_FailureIsNotStored(t *testing.T) {
	c := New[string]()
	upstreamDown := errors.New("upstream down")
	var calls atomic.Int32
	failing := func(context.Context) (string, error) {
		calls.Add(1)
		return "", upstreamDown
	}

	_, err := c.GetOrCompute(context.Background(), "taf|EDLP", time.Minute, failing)
	assert.ErrorIs(t, err, upstreamDown)
	assert.Equal(t, 0, c.Stats().Entries)

	_, err = c.GetOrCompute(context.Background(), "taf|EDLP", time.Minute, failing)
	assert.ErrorIs(t, err, upstreamDown)
	assert.Equal(t, int32(2), calls.Load(), "a failure must not be served from cache")
}

func TestRefresh_FailureKeepsPriorSuccess(t *testing.T) {
	c := New[string]()
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "apod|2026-10-19", time.Hour, func(context.Context) (string, error) {
		return "hubble", nil
	})
	require.NoError(t, err)

	r, err := c.Refresh(ctx, "apod|2026-10-19", time.Hour, func(context.Context) (string, error) {
		return "", errors.New("503")
	})
	require.NoError(t, err)
	assert.Equal(t, "hubble", r.Value)
	assert.True(t, r.Stale)

	r, err = c.GetOrCompute(ctx, "apod|2026-10-19", time.Hour, func(context.Context) (string, error) {
		t.Fatal("fresh entry must be served without computing")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hubble", r.Value)
	assert.True(t, r.Hit)
}

func TestGetOrCompute_StaleGrace(t *testing.T) {
	clock := newFakeClock()
	c := New[string](WithClock(clock.Now), WithStaleGrace(10*time.Minute))
	ctx := context.Background()
	fail := func(context.Context) (string, error) { return "", errors.New("timeout") }

	_, err := c.GetOrCompute(ctx, "sun|1,2", time.Minute, func(context.Context) (string, error) {
		return "06:55", nil
	})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	r, err := c.GetOrCompute(ctx, "sun|1,2", time.Minute, fail)
	require.NoError(t, err)
	assert.Equal(t, "06:55", r.Value)
	assert.True(t, r.Stale)

	clock.Advance(10 * time.Minute)
	_, err = c.GetOrCompute(ctx, "sun|1,2", time.Minute, fail)
	assert.Error(t, err, "past the grace window the failure must surface")
}

func TestGetOrCompute_NoGraceMeansNoStaleServe(t *testing.T) {
	clock := newFakeClock()
	c := New[string](WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) (string, error) { return "old", nil })
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) (string, error) {
		return "", errors.New("down")
	})
	assert.Error(t, err)
}

func TestEvict_ForcesRecompute(t *testing.T) {
	c := New[string]()
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.GetOrCompute(ctx, "metar|EDLP", time.Hour, counting(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Evict("metar|EDLP"))
	assert.Equal(t, 0, c.Evict("metar|EDLP"))

	r, err := c.GetOrCompute(ctx, "metar|EDLP", time.Hour, counting(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, "v-2", r.Value)
	assert.False(t, r.Hit)
}

func TestGetOrCompute_SingleFlight(t *testing.T) {
	c := New[string]()
	gate := make(chan struct{})
	var calls atomic.Int32
	slow := func(context.Context) (string, error) {
		calls.Add(1)
		<-gate
		return "shared", nil
	}

	const callers = 32
	var wg sync.WaitGroup
	values := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.GetOrCompute(context.Background(), "epic|natural", time.Hour, slow)
			values[i], errs[i] = r.Value, err
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "shared", values[i])
	}
}

func TestGetOrCompute_UnrelatedKeysDoNotBlock(t *testing.T) {
	c := New[string]()
	gate := make(chan struct{})
	defer close(gate)

	go func() {
		_, _ = c.GetOrCompute(context.Background(), "slow", time.Hour, func(context.Context) (string, error) {
			<-gate
			return "late", nil
		})
	}()

	done := make(chan string, 1)
	go func() {
		r, _ := c.GetOrCompute(context.Background(), "fast", time.Hour, func(context.Context) (string, error) {
			return "quick", nil
		})
		done <- r.Value
	}()

	select {
	case v := <-done:
		assert.Equal(t, "quick", v)
	case <-time.After(time.Second):
		t.Fatal("a slow key blocked an unrelated key")
	}
}

func TestEvict_DuringComputationDoesNotStore(t *testing.T) {
	c := New[string]()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(context.Context) (string, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-release
		}
		return fmt.Sprintf("v%d", n), nil
	}

	type outcome struct {
		r   Result[string]
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := c.GetOrCompute(context.Background(), "metar|EDLP", time.Hour, compute)
		done <- outcome{r, err}
	}()

	<-started
	c.Evict("metar|EDLP")
	close(release)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, "v1", out.r.Value, "in-flight reader completes with its own snapshot")

	_, ok := c.Peek("metar|EDLP")
	assert.False(t, ok, "result computed across an eviction must not be stored")

	r, err := c.GetOrCompute(context.Background(), "metar|EDLP", time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, "v2", r.Value)
}

func TestEvictPrefix_LeavesOtherDomains(t *testing.T) {
	obs := &recordingObserver{}
	c := New[string](WithObserver(obs))
	ctx := context.Background()
	for _, k := range []string{"metar|EDLP", "metar|EDDF", "taf|EDLP", "apod|2026-10-19"} {
		_, err := c.GetOrCompute(ctx, k, time.Hour, func(context.Context) (string, error) { return k, nil })
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.EvictPrefix("metar|"))
	_, ok := c.Peek("taf|EDLP")
	assert.True(t, ok)
	_, ok = c.Peek("apod|2026-10-19")
	assert.True(t, ok)
	_, ok = c.Peek("metar|EDDF")
	assert.False(t, ok)
	assert.Equal(t, 2, obs.evictions[EvictReasonPrefix])
}

func TestEvictAll(t *testing.T) {
	c := New[string]()
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrCompute(ctx, k, time.Hour, func(context.Context) (string, error) { return k, nil })
		require.NoError(t, err)
	}

	assert.Equal(t, 3, c.EvictAll())
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, 0, c.EvictAll(), "evicting an empty cache is a no-op")
}

func TestGetOrCompute_CallerCancellationStillPopulates(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	started := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "strava|activities", time.Hour, func(computeCtx context.Context) (string, error) {
			close(started)
			<-release
			if computeCtx.Err() != nil {
				return "", computeCtx.Err()
			}
			return "activities", nil
		})
		errc <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := c.Peek("strava|activities")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestGetOrCompute_PanicBecomesError(t *testing.T) {
	c := New[string]()
	_, err := c.GetOrCompute(context.Background(), "boom", time.Minute, func(context.Context) (string, error) {
		panic("parser exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parser exploded")
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestGetOrCompute_ZeroTTLIsNotStored(t *testing.T) {
	c := New[string]()
	var calls atomic.Int32
	for i := 0; i < 2; i++ {
		_, err := c.GetOrCompute(context.Background(), "k", 0, counting(&calls, "v"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestMaxEntries_EvictsLeastRecentlyUsed(t *testing.T) {
	obs := &recordingObserver{}
	c := New[string](WithMaxEntries(2), WithObserver(obs))
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, err := c.GetOrCompute(ctx, k, time.Hour, func(context.Context) (string, error) { return k, nil })
		require.NoError(t, err)
	}

	_, ok := c.Peek("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Stats().Entries)
	assert.Equal(t, 1, obs.evictions[EvictReasonCapacity])
}

func TestDeleteExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[string](WithClock(clock.Now))
	ctx := context.Background()
	_, _ = c.GetOrCompute(ctx, "short", time.Minute, func(context.Context) (string, error) { return "s", nil })
	_, _ = c.GetOrCompute(ctx, "long", time.Hour, func(context.Context) (string, error) { return "l", nil })

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.deleteExpired())

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "long", entries[0].Key)
	assert.True(t, entries[0].Fresh)
}

func TestStatsAndObserver(t *testing.T) {
	obs := &recordingObserver{}
	c := New[string](WithObserver(obs))
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = c.GetOrCompute(ctx, "k", time.Hour, counting(&calls, "v"))
	_, _ = c.GetOrCompute(ctx, "k", time.Hour, counting(&calls, "v"))
	_, _ = c.GetOrCompute(ctx, "bad", time.Hour, func(context.Context) (string, error) {
		return "", errors.New("nope")
	})

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(2), s.Misses)
	assert.Equal(t, uint64(2), s.Computes)
	assert.Equal(t, uint64(1), s.Failures)
	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 2, obs.misses)
	require.Len(t, obs.computed, 2)
	assert.NoError(t, obs.computed[0])
	assert.Error(t, obs.computed[1])
}

func TestStop_Idempotent(t *testing.T) {
	c := New[string](WithCleanupInterval(time.Millisecond))
	c.Stop()
	c.Stop()
}
